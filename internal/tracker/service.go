// internal/tracker/service.go
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rovshanmuradov/solana-tracker/internal/classifier"
	"github.com/rovshanmuradov/solana-tracker/internal/config"
	"github.com/rovshanmuradov/solana-tracker/internal/dedup"
	"github.com/rovshanmuradov/solana-tracker/internal/dispatch"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"github.com/rovshanmuradov/solana-tracker/internal/fanout"
	"github.com/rovshanmuradov/solana-tracker/internal/logger"
	"github.com/rovshanmuradov/solana-tracker/internal/metadata"
	"github.com/rovshanmuradov/solana-tracker/internal/price"
	"github.com/rovshanmuradov/solana-tracker/internal/storage"
	"github.com/rovshanmuradov/solana-tracker/internal/storage/postgres"
	"github.com/rovshanmuradov/solana-tracker/internal/stream"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Service wires the streaming pipeline together: geyser shards feed the
// dispatcher, which classifies against wallet records and token metadata,
// persists to Postgres and fans out over Redis.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	store      storage.Storage
	redis      *redis.Client
	resolver   *metadata.Resolver
	oracle     price.Oracle
	dispatcher *dispatch.Dispatcher
	manager    *stream.Manager
	shutdown   *ShutdownHandler
}

// New builds every component from the config. Nothing is started yet; Run
// does that.
func New(cfg *config.Config, log *logger.Logger) (*Service, error) {
	svcLogger := log.WithComponent("tracker")

	store, err := postgres.NewStorage(cfg.PostgresURL, log.WithComponent("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := store.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		// Redis only carries the metadata cache and the fan-out; the
		// pipeline keeps ingesting while it is down.
		svcLogger.Warn("Redis unreachable at startup", zap.Error(err))
	}

	chain := metadata.NewRPCChainClient(cfg.RPCURL, log.WithComponent("chain"))
	resolver := metadata.NewResolver(chain, redisClient, store, cfg.MetadataTTL(), log.WithComponent("metadata"))
	oracle := price.NewHTTPOracle(cfg.PriceURL, log.WithComponent("price"))

	cls := classifier.New(classifier.Thresholds{
		Buy:  cfg.BuyThreshold,
		Sell: cfg.SellThreshold,
	}, resolver, log.WithComponent("classifier"))

	hotSet := dedup.NewHotSet(dedup.DefaultCap, log.WithComponent("dedup"))
	tracker := dedup.NewTracker(log.WithComponent("dedup"))
	wallets := dispatch.NewWalletCache(store, cfg.WalletTTL())
	publisher := fanout.NewRedisPublisher(redisClient, log.WithComponent("fanout"))

	geyser, err := stream.NewGeyserClient(cfg.GRPCEndpoint, cfg.GRPCToken, log.WithComponent("geyser"))
	if err != nil {
		return nil, fmt.Errorf("failed to create geyser client: %w", err)
	}

	svc := &Service{
		cfg:      cfg,
		logger:   svcLogger,
		store:    store,
		redis:    redisClient,
		resolver: resolver,
		oracle:   oracle,
		shutdown: NewShutdownHandler(svcLogger, shutdownTimeout),
	}

	// The manager's sink and the dispatcher's subscription view reference
	// each other, so the sink closes over the service.
	svc.manager = stream.NewManager(geyser, func(payload *domain.Payload) {
		svc.dispatcher.Enqueue(payload)
	}, cfg.GRPCChunkSize, log.WithComponent("stream"))

	svc.dispatcher = dispatch.NewDispatcher(
		hotSet,
		tracker,
		wallets,
		cls,
		store,
		publisher,
		oracle,
		svc.manager,
		dispatch.Options{
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout(),
			Workers:      cfg.Workers,
		},
		log.WithComponent("dispatch"),
	)

	return svc, nil
}

// Run loads the active watchlist and starts the shard set. It returns once
// the pipeline is streaming; WaitForShutdown blocks until a signal.
func (s *Service) Run(ctx context.Context) error {
	s.dispatcher.Start(ctx)

	wallets, err := s.store.ListActiveWallets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load watchlist: %w", err)
	}

	addresses := make([]string, 0, len(wallets))
	for _, wallet := range wallets {
		addresses = append(addresses, wallet.Address)
	}

	s.logger.Info("Starting tracker",
		zap.Int("wallets", len(addresses)),
		zap.Int("chunk_size", s.cfg.GRPCChunkSize))

	if err := s.manager.Start(ctx, addresses); err != nil {
		return fmt.Errorf("failed to start subscriptions: %w", err)
	}

	s.shutdown.Add("storage", s.store)
	s.shutdown.AddFunc("redis", s.redis.Close)
	s.shutdown.Add("dispatcher", s.dispatcher)
	s.shutdown.Add("subscription_manager", s.manager)
	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then closes everything in
// reverse start order.
func (s *Service) WaitForShutdown() {
	s.shutdown.HandleShutdown()
}

// Healthy reports whether the shard set is still serviceable.
func (s *Service) Healthy() bool {
	return s.manager.Healthy()
}

// RestartFailedShards rebuilds the shard set after terminal failures.
func (s *Service) RestartFailedShards() {
	s.manager.RestartFailed()
}

// Stats aggregates pipeline counters and shard states for operators.
func (s *Service) Stats() map[string]interface{} {
	stats := s.dispatcher.Stats()

	states := s.manager.ShardStates()
	shardStates := make([]string, len(states))
	for i, state := range states {
		shardStates[i] = state.String()
	}

	stats["watched_wallets"] = len(s.manager.Snapshot())
	stats["shards"] = shardStates
	stats["healthy"] = s.manager.Healthy()
	if group := s.manager.ActiveGroup(); group != nil {
		stats["active_group"] = *group
	}
	return stats
}
