package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newDryRunDB builds statements against the postgres dialect without ever
// touching a server.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(postgres.Open("host=localhost user=tracker dbname=tracker sslmode=disable"), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	if err != nil {
		t.Fatalf("failed to open dry-run db: %v", err)
	}
	return db
}

func TestTokenUpsertPreservesStoredDeploymentTime(t *testing.T) {
	db := newDryRunDB(t)

	later := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	result := tokenUpsert(db, &domain.TokenMeta{
		Mint:       "6GCgqQvHVhmNaTvpXnD6BC4yRXMcfr6ZYZ6YNk6wpump",
		Symbol:     "PEP",
		Name:       "Pepper",
		Decimals:   6,
		DeployedAt: &later,
	})
	if result.Error != nil {
		t.Fatalf("statement build failed: %v", result.Error)
	}

	sql := result.Statement.SQL.String()
	if !strings.Contains(sql, `ON CONFLICT ("mint") DO UPDATE`) {
		t.Fatalf("expected an upsert keyed on mint, got: %s", sql)
	}
	// The stored value must survive any later observation: the existing
	// column leads the COALESCE, the incoming value only fills a null.
	if !strings.Contains(sql, "COALESCE(tokens.deployment_time, EXCLUDED.deployment_time)") {
		t.Errorf("deployment_time assignment must keep the earliest stored value, got: %s", sql)
	}
	for _, column := range []string{`"symbol"`, `"name"`, `"decimals"`} {
		if !strings.Contains(sql, column) {
			t.Errorf("conflict update must refresh %s, got: %s", column, sql)
		}
	}
}

func TestTokenUpsertWithoutDeploymentTime(t *testing.T) {
	db := newDryRunDB(t)

	result := tokenUpsert(db, &domain.TokenMeta{
		Mint:     "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
		Symbol:   "DOG",
		Name:     "Doggo",
		Decimals: 5,
	})
	if result.Error != nil {
		t.Fatalf("statement build failed: %v", result.Error)
	}

	// A nil deployment time on the incoming row must still route through the
	// COALESCE rather than overwrite the column.
	sql := result.Statement.SQL.String()
	if !strings.Contains(sql, "COALESCE(tokens.deployment_time, EXCLUDED.deployment_time)") {
		t.Errorf("deployment_time assignment missing from upsert: %s", sql)
	}
}
