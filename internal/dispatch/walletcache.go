// internal/dispatch/walletcache.go
package dispatch

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"github.com/rovshanmuradov/solana-tracker/internal/storage"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// DefaultWalletTTL keeps wallet records hot long enough for bursts while
// letting admin-side group changes surface within minutes.
const DefaultWalletTTL = 5 * time.Minute

// ErrWalletNotWatched marks an address with no active wallet row.
var ErrWalletNotWatched = errors.New("address is not a watched wallet")

// WalletCache serves wallet records keyed by address with a short TTL and
// per-address single-flight on the miss path.
type WalletCache struct {
	store storage.Storage
	cache *gocache.Cache
	group singleflight.Group
}

func NewWalletCache(store storage.Storage, ttl time.Duration) *WalletCache {
	if ttl <= 0 {
		ttl = DefaultWalletTTL
	}
	return &WalletCache{
		store: store,
		cache: gocache.New(ttl, ttl),
	}
}

// Get returns the wallet record for the address, consulting the store on a
// cache miss. Unwatched addresses are cached negatively for the TTL.
func (w *WalletCache) Get(ctx context.Context, address string) (domain.WalletRecord, error) {
	if cached, ok := w.cache.Get(address); ok {
		record, watched := cached.(domain.WalletRecord)
		if !watched {
			return domain.WalletRecord{}, ErrWalletNotWatched
		}
		return record, nil
	}

	value, err, _ := w.group.Do(address, func() (interface{}, error) {
		wallet, err := w.store.GetWalletByAddress(ctx, address)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				w.cache.SetDefault(address, false)
				return nil, ErrWalletNotWatched
			}
			return nil, err
		}

		record := domain.WalletRecord{
			ID:       wallet.ID,
			Address:  wallet.Address,
			Name:     wallet.Name,
			GroupID:  wallet.GroupID,
			IsActive: wallet.IsActive,
		}
		if wallet.Group != nil {
			record.GroupName = wallet.Group.Name
		}
		w.cache.SetDefault(address, record)
		return record, nil
	})
	if err != nil {
		return domain.WalletRecord{}, err
	}
	return value.(domain.WalletRecord), nil
}

// Flush drops every cached record, forcing fresh reads. Called when group
// assignments change so the new filter takes effect on the next message.
func (w *WalletCache) Flush() {
	w.cache.Flush()
}
