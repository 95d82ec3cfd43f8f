// internal/metadata/resolver.go
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"github.com/rovshanmuradov/solana-tracker/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL caches positive and degraded entries alike; caching
	// failures prevents a thundering herd on permanently broken mints.
	DefaultTTL = 24 * time.Hour

	kvKeyPrefix = "token:meta:"
)

// Resolver answers mint → TokenMeta through a two-tier cache (process-local,
// shared KV) with an on-chain miss path. Concurrent lookups of the same mint
// collapse to one upstream fetch.
type Resolver struct {
	local  *gocache.Cache
	kv     redis.Cmdable
	chain  ChainClient
	store  storage.Storage
	group  singleflight.Group
	ttl    time.Duration
	logger *zap.Logger
}

func NewResolver(chain ChainClient, kv redis.Cmdable, store storage.Storage, ttl time.Duration, logger *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		local:  gocache.New(ttl, ttl/2),
		kv:     kv,
		chain:  chain,
		store:  store,
		ttl:    ttl,
		logger: logger.Named("metadata"),
	}
}

// ResolveMany resolves metadata for each requested mint. Every requested mint
// is present in the result; unresolvable mints carry synthetic placeholders.
func (r *Resolver) ResolveMany(ctx context.Context, mints []string) (map[string]domain.TokenMeta, error) {
	result := make(map[string]domain.TokenMeta, len(mints))
	for _, mint := range mints {
		meta, err := r.Resolve(ctx, mint)
		if err != nil {
			return nil, err
		}
		result[mint] = meta
	}
	return result, nil
}

// Resolve resolves one mint through the cache hierarchy.
func (r *Resolver) Resolve(ctx context.Context, mint string) (domain.TokenMeta, error) {
	if cached, ok := r.local.Get(mint); ok {
		return cached.(domain.TokenMeta), nil
	}

	if meta, ok := r.fromKV(ctx, mint); ok {
		r.local.Set(mint, meta, r.ttl)
		return meta, nil
	}

	value, err, _ := r.group.Do(mint, func() (interface{}, error) {
		return r.fetch(ctx, mint), nil
	})
	if err != nil {
		return domain.TokenMeta{}, err
	}
	return value.(domain.TokenMeta), nil
}

func (r *Resolver) fromKV(ctx context.Context, mint string) (domain.TokenMeta, bool) {
	if r.kv == nil {
		return domain.TokenMeta{}, false
	}

	raw, err := r.kv.Get(ctx, kvKeyPrefix+mint).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Debug("KV cache read failed",
				zap.String("mint", mint),
				zap.Error(err))
		}
		return domain.TokenMeta{}, false
	}

	var meta domain.TokenMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		r.logger.Warn("Corrupt KV cache entry",
			zap.String("mint", mint),
			zap.Error(err))
		return domain.TokenMeta{}, false
	}
	return meta, true
}

// fetch performs the full miss path: on-chain lookup, first-deployment
// discovery, then population of both cache tiers and the tokens table.
// Failures degrade to a synthetic placeholder which is cached all the same.
func (r *Resolver) fetch(ctx context.Context, mint string) domain.TokenMeta {
	meta := r.fromChain(ctx, mint)
	meta.DeployedAt = r.firstDeploymentTime(ctx, mint)

	r.local.Set(mint, meta, r.ttl)
	if r.kv != nil {
		encoded, err := json.Marshal(meta)
		if err == nil {
			if err := r.kv.Set(ctx, kvKeyPrefix+mint, encoded, r.ttl).Err(); err != nil {
				r.logger.Debug("KV cache write failed",
					zap.String("mint", mint),
					zap.Error(err))
			}
		}
	}

	if r.store != nil {
		if _, err := r.store.UpsertToken(ctx, &meta); err != nil {
			r.logger.Warn("Token upsert failed",
				zap.String("mint", mint),
				zap.Error(err))
		}
	}

	return meta
}

func (r *Resolver) fromChain(ctx context.Context, mint string) domain.TokenMeta {
	meta := syntheticMeta(mint)

	decimals, err := r.chain.GetMintDecimals(ctx, mint)
	if err != nil {
		r.logger.Debug("Mint account lookup failed, using placeholder",
			zap.String("mint", mint),
			zap.Error(err))
		return meta
	}
	meta.Decimals = decimals

	symbol, name, err := r.chain.GetTokenMetadata(ctx, mint)
	if err != nil {
		r.logger.Debug("Metadata program lookup failed, keeping placeholder names",
			zap.String("mint", mint),
			zap.Error(err))
		return meta
	}
	if symbol != "" {
		meta.Symbol = symbol
	}
	if name != "" {
		meta.Name = name
	}
	return meta
}

// syntheticMeta is the placeholder used when on-chain data is unavailable.
func syntheticMeta(mint string) domain.TokenMeta {
	symbol := mint
	if len(symbol) > 4 {
		symbol = symbol[:4]
	}
	name := mint
	if len(name) > 8 {
		name = name[:8]
	}
	return domain.TokenMeta{
		Mint:     mint,
		Symbol:   strings.ToUpper(symbol),
		Name:     "Token " + name + "...",
		Decimals: 6,
	}
}
