// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"github.com/rovshanmuradov/solana-tracker/internal/storage/models"
)

// ErrGroupReferenced is returned when deleting a group that still has wallets.
var ErrGroupReferenced = errors.New("group is referenced by wallets")

// Storage defines the persistence interface of the pipeline.
type Storage interface {
	// Events
	PersistEvent(ctx context.Context, event *domain.Event) (duplicate bool, err error)
	HasTransaction(ctx context.Context, signature string, walletID uint) (bool, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error)

	// Wallets
	GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error)
	ListActiveWallets(ctx context.Context) ([]*models.Wallet, error)
	ImportWallets(ctx context.Context, wallets []*models.Wallet) (int, error)
	SetWalletActive(ctx context.Context, address string, active bool) error
	SetWalletGroup(ctx context.Context, address string, groupID *string) error

	// Groups
	CreateGroup(ctx context.Context, name, createdBy string) (*models.Group, error)
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	DeleteGroup(ctx context.Context, id string) error

	// Tokens
	UpsertToken(ctx context.Context, meta *domain.TokenMeta) (*models.Token, error)

	// Migrations
	RunMigrations() error
	Close() error
}
