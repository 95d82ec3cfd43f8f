// internal/stream/shard.go
package stream

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"go.uber.org/zap"
)

// ShardState is the lifecycle state of one subscription shard.
type ShardState int32

const (
	StateConnecting ShardState = iota
	StateStreaming
	StateBackoff
	StateFailed
	StateStopped
)

func (s ShardState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	reconnectInitialInterval = 5 * time.Second
	reconnectMaxInterval     = 30 * time.Second
	reconnectMultiplier      = 1.5

	// DefaultMaxAttempts bounds consecutive reconnect attempts per shard
	// before it parks in FAILED. Reset by any successfully received message.
	DefaultMaxAttempts = 10
)

// Shard owns one long-lived stream over a fixed slice of the watched set.
// A failed shard never poisons its siblings.
type Shard struct {
	id          int
	addresses   []string
	client      StreamClient
	sink        func(*domain.Payload)
	maxAttempts int
	logger      *zap.Logger

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
}

func newShard(id int, addresses []string, client StreamClient, sink func(*domain.Payload), maxAttempts int, logger *zap.Logger) *Shard {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Shard{
		id:          id,
		addresses:   addresses,
		client:      client,
		sink:        sink,
		maxAttempts: maxAttempts,
		logger:      logger.With(zap.Int("shard_id", id)),
		done:        make(chan struct{}),
	}
}

// Addresses returns the shard's slice of the watched set.
func (s *Shard) Addresses() []string {
	return s.addresses
}

// State returns the shard's current lifecycle state.
func (s *Shard) State() ShardState {
	return ShardState(s.state.Load())
}

func (s *Shard) setState(state ShardState) {
	s.state.Store(int32(state))
}

// start launches the shard's connect/stream/backoff loop.
func (s *Shard) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	go s.run(ctx)
}

// stop ends the shard's stream best-effort and waits for the loop to exit.
func (s *Shard) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Shard) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if s.State() != StateFailed {
			s.setState(StateStopped)
		}
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectInitialInterval
	bo.MaxInterval = reconnectMaxInterval
	bo.Multiplier = reconnectMultiplier
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		stream, err := s.client.OpenStream(ctx, s.addresses)
		if err != nil {
			s.logger.Warn("Failed to open stream",
				zap.Int("attempt", attempts+1),
				zap.Error(err))
			if !s.backoffOrFail(ctx, bo, &attempts) {
				return
			}
			continue
		}

		s.setState(StateStreaming)
		s.logger.Info("Shard streaming", zap.Int("addresses", len(s.addresses)))

		err = s.readLoop(ctx, stream, bo, &attempts)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("Stream ended, reconnecting", zap.Error(err))
		if !s.backoffOrFail(ctx, bo, &attempts) {
			return
		}
	}
}

// readLoop pumps messages into the sink until the stream errors or ends.
// In-flight messages already handed to the sink drain through the dispatcher
// regardless of what happens to this stream.
func (s *Shard) readLoop(ctx context.Context, stream Stream, bo *backoff.ExponentialBackOff, attempts *int) error {
	for {
		payload, err := stream.Recv()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Any successful message proves the connection good again.
		*attempts = 0
		bo.Reset()

		s.sink(payload)
	}
}

// backoffOrFail sleeps the backoff interval. It reports false once the shard
// exhausted its attempts and parked in FAILED (manual restart only).
func (s *Shard) backoffOrFail(ctx context.Context, bo *backoff.ExponentialBackOff, attempts *int) bool {
	*attempts++
	if *attempts >= s.maxAttempts {
		s.setState(StateFailed)
		s.logger.Error("Shard failed after max reconnect attempts",
			zap.Int("attempts", *attempts))
		return false
	}

	s.setState(StateBackoff)
	wait := bo.NextBackOff()
	s.logger.Info("Backing off before reconnect",
		zap.Duration("wait", wait),
		zap.Int("attempt", *attempts))

	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}
