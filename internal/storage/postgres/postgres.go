// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"github.com/rovshanmuradov/solana-tracker/internal/storage"
	"github.com/rovshanmuradov/solana-tracker/internal/storage/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// gormLogger adapts zap to the gorm logger.Interface.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStorage connects to postgres and configures the shared connection pool.
func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(zapLogger),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger,
	}, nil
}

// RunMigrations applies the schema under a postgres advisory lock so that
// concurrently starting replicas do not race each other.
func (p *postgresStorage) RunMigrations() error {
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(102)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(102)")

	err = p.db.AutoMigrate(
		&models.Group{},
		&models.Wallet{},
		&models.Token{},
		&models.Transaction{},
		&models.TokenOperation{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// PersistEvent writes the event and its token operations in one transaction.
// The duplicate re-check runs under the same transaction that inserts.
func (p *postgresStorage) PersistEvent(ctx context.Context, event *domain.Event) (bool, error) {
	duplicate := false

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Transaction{}).
			Where("signature = ? AND wallet_id = ?", event.Signature, event.Wallet.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if count > 0 {
			duplicate = true
			return nil
		}

		row := &models.Transaction{
			WalletID:        event.Wallet.ID,
			Signature:       event.Signature,
			BlockTime:       event.BlockTime,
			TransactionType: string(event.Type),
			SolSpent:        event.SolSpent,
			SolReceived:     event.SolReceived,
			USDSpent:        event.USDSpent,
			USDReceived:     event.USDReceived,
		}
		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				duplicate = true
				return nil
			}
			return fmt.Errorf("insert transaction: %w", err)
		}

		for _, change := range event.Changes {
			token, err := upsertToken(tx, &domain.TokenMeta{
				Mint:     change.Mint,
				Symbol:   change.Symbol,
				Name:     change.Name,
				Decimals: change.Decimals,
			})
			if err != nil {
				return fmt.Errorf("upsert token %s: %w", change.Mint, err)
			}

			op := &models.TokenOperation{
				TransactionID: row.ID,
				TokenID:       token.ID,
				Amount:        change.Amount,
				OperationType: string(event.Type),
			}
			if err := tx.Create(op).Error; err != nil {
				return fmt.Errorf("insert token operation: %w", err)
			}
		}

		return nil
	})

	return duplicate, err
}

func (p *postgresStorage) HasTransaction(ctx context.Context, signature string, walletID uint) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("signature = ? AND wallet_id = ?", signature, walletID).
		Count(&count).Error
	return count > 0, err
}

func (p *postgresStorage) ListRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := p.db.WithContext(ctx).
		Preload("Operations").
		Preload("Operations.Token").
		Preload("Wallet").
		Order("block_time desc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

func (p *postgresStorage) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := p.db.WithContext(ctx).
		Preload("Group").
		Where("address = ?", address).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (p *postgresStorage) ListActiveWallets(ctx context.Context) ([]*models.Wallet, error) {
	var wallets []*models.Wallet
	err := p.db.WithContext(ctx).
		Preload("Group").
		Where("is_active = ?", true).
		Order("id").
		Find(&wallets).Error
	return wallets, err
}

// ImportWallets inserts wallets in bulk, skipping addresses already present.
// Returns the number of newly created rows.
func (p *postgresStorage) ImportWallets(ctx context.Context, wallets []*models.Wallet) (int, error) {
	if len(wallets) == 0 {
		return 0, nil
	}
	result := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&wallets)
	return int(result.RowsAffected), result.Error
}

func (p *postgresStorage) SetWalletActive(ctx context.Context, address string, active bool) error {
	return p.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("address = ?", address).
		Update("is_active", active).Error
}

func (p *postgresStorage) SetWalletGroup(ctx context.Context, address string, groupID *string) error {
	return p.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("address = ?", address).
		Update("group_id", groupID).Error
}

func (p *postgresStorage) CreateGroup(ctx context.Context, name, createdBy string) (*models.Group, error) {
	group := &models.Group{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedBy: createdBy,
	}
	if err := p.db.WithContext(ctx).Create(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

func (p *postgresStorage) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var group models.Group
	err := p.db.WithContext(ctx).Where("id = ?", id).First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// DeleteGroup soft-deletes a group; it refuses while wallets still reference it.
func (p *postgresStorage) DeleteGroup(ctx context.Context, id string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.Wallet{}).
			Where("group_id = ?", id).
			Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return storage.ErrGroupReferenced
		}
		return tx.Model(&models.Group{}).
			Where("id = ?", id).
			Update("deleted_at", time.Now()).Error
	})
}

func (p *postgresStorage) UpsertToken(ctx context.Context, meta *domain.TokenMeta) (*models.Token, error) {
	var token *models.Token
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		token, err = upsertToken(tx, meta)
		return err
	})
	return token, err
}

// upsertToken writes token metadata keyed on mint. Mutable fields are updated;
// deployment_time keeps the earliest non-null value ever stored.
func upsertToken(tx *gorm.DB, meta *domain.TokenMeta) (*models.Token, error) {
	if err := tokenUpsert(tx, meta).Error; err != nil {
		return nil, err
	}

	// The conflict path does not report the surviving row id; read it back.
	var token models.Token
	if err := tx.Where("mint = ?", meta.Mint).First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// tokenUpsert issues the INSERT .. ON CONFLICT for one token. The stored
// deployment_time comes first in the COALESCE, so a non-null value can never
// be replaced by a later observation.
func tokenUpsert(tx *gorm.DB, meta *domain.TokenMeta) *gorm.DB {
	row := &models.Token{
		Mint:           meta.Mint,
		Symbol:         meta.Symbol,
		Name:           meta.Name,
		Decimals:       meta.Decimals,
		DeploymentTime: meta.DeployedAt,
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "mint"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"symbol":          meta.Symbol,
			"name":            meta.Name,
			"decimals":        meta.Decimals,
			"deployment_time": gorm.Expr("COALESCE(tokens.deployment_time, EXCLUDED.deployment_time)"),
			"updated_at":      time.Now(),
		}),
	}).Create(row)
}

func (p *postgresStorage) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
