// internal/tracker/watchlist.go
package tracker

import (
	"context"
	"fmt"

	"github.com/rovshanmuradov/solana-tracker/internal/export"
	"github.com/rovshanmuradov/solana-tracker/internal/storage/models"
	"go.uber.org/zap"
)

// ImportWallets inserts wallet rows in bulk, skipping addresses that already
// exist, and subscribes the new set. Returns the number of rows inserted.
func (s *Service) ImportWallets(ctx context.Context, wallets []*models.Wallet) (int, error) {
	inserted, err := s.store.ImportWallets(ctx, wallets)
	if err != nil {
		return 0, fmt.Errorf("failed to import wallets: %w", err)
	}

	addresses := make([]string, 0, len(wallets))
	for _, wallet := range wallets {
		if wallet.IsActive {
			addresses = append(addresses, wallet.Address)
		}
	}
	s.manager.Subscribe(addresses)
	s.dispatcher.FlushWallets()

	s.logger.Info("Imported wallets",
		zap.Int("requested", len(wallets)),
		zap.Int("inserted", inserted))
	return inserted, nil
}

// Watch re-activates wallets and adds them to the live subscriptions.
func (s *Service) Watch(ctx context.Context, addresses []string) error {
	for _, address := range addresses {
		if err := s.store.SetWalletActive(ctx, address, true); err != nil {
			return fmt.Errorf("failed to activate wallet %s: %w", address, err)
		}
	}
	s.manager.Subscribe(addresses)
	s.dispatcher.FlushWallets()
	return nil
}

// Unwatch deactivates wallets and removes them from the live subscriptions.
func (s *Service) Unwatch(ctx context.Context, addresses []string) error {
	for _, address := range addresses {
		if err := s.store.SetWalletActive(ctx, address, false); err != nil {
			return fmt.Errorf("failed to deactivate wallet %s: %w", address, err)
		}
	}
	s.manager.Unsubscribe(addresses)
	s.dispatcher.FlushWallets()
	return nil
}

// SwitchGroup narrows event persistence and fan-out to one group, or lifts
// the filter when groupID is nil. Subscriptions stay on the full watchlist.
func (s *Service) SwitchGroup(ctx context.Context, groupID *string) error {
	if groupID != nil {
		if _, err := s.store.GetGroup(ctx, *groupID); err != nil {
			return fmt.Errorf("unknown group %s: %w", *groupID, err)
		}
	}

	s.manager.SwitchGroup(groupID)
	s.dispatcher.FlushWallets()

	if groupID != nil {
		s.logger.Info("Switched active group", zap.String("group_id", *groupID))
	} else {
		s.logger.Info("Cleared active group filter")
	}
	return nil
}

// CreateGroup creates a named wallet group.
func (s *Service) CreateGroup(ctx context.Context, name, createdBy string) (*models.Group, error) {
	return s.store.CreateGroup(ctx, name, createdBy)
}

// DeleteGroup soft-deletes a group. Groups still referenced by wallets are
// refused.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	return s.store.DeleteGroup(ctx, id)
}

// AssignGroup moves a wallet into a group, or out of all groups when groupID
// is nil.
func (s *Service) AssignGroup(ctx context.Context, address string, groupID *string) error {
	if err := s.store.SetWalletGroup(ctx, address, groupID); err != nil {
		return err
	}
	s.dispatcher.FlushWallets()
	return nil
}

// RecentTransactions returns the newest persisted events, for the bulk fetch
// consumers do on connect.
func (s *Service) RecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	return s.store.ListRecentTransactions(ctx, limit)
}

// ExportTransactions writes the newest persisted transactions to disk in the
// requested format and returns the output path.
func (s *Service) ExportTransactions(ctx context.Context, limit int, options export.Options) (string, error) {
	transactions, err := s.store.ListRecentTransactions(ctx, limit)
	if err != nil {
		return "", fmt.Errorf("failed to load transactions for export: %w", err)
	}
	return export.NewExporter(s.logger).Export(transactions, options)
}

// ForceCleanup runs the processed-set sweeps immediately.
func (s *Service) ForceCleanup() {
	s.dispatcher.ForceCleanup()
	s.logger.Info("Forced dedup cleanup")
}
