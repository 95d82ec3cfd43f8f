// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rovshanmuradov/solana-tracker/internal/classifier"
	"github.com/rovshanmuradov/solana-tracker/internal/dedup"
	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"github.com/rovshanmuradov/solana-tracker/internal/fanout"
	"github.com/rovshanmuradov/solana-tracker/internal/price"
	"github.com/rovshanmuradov/solana-tracker/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize    = 50
	DefaultBatchTimeout = 200 * time.Millisecond
	DefaultWorkers      = 10

	drainTimeout = 30 * time.Second
)

// Subscriptions is the view of the Subscription Manager the dispatcher needs:
// fast watched-set membership and the active group filter.
type Subscriptions interface {
	Watches(address string) bool
	ActiveGroup() *string
}

// Dispatcher micro-batches inbound payloads and drives each through the
// classify → dedup → persist → publish pipeline on a bounded worker pool.
type Dispatcher struct {
	hotSet     *dedup.HotSet
	tracker    *dedup.Tracker
	wallets    *WalletCache
	classifier *classifier.Classifier
	store      storage.Storage
	publisher  fanout.Publisher
	oracle     price.Oracle
	subs       Subscriptions
	logger     *zap.Logger

	batchSize    int
	batchTimeout time.Duration
	workers      int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	batch  map[string]*domain.Payload
	timer  *time.Timer
	closed bool

	flushWG sync.WaitGroup

	received   atomic.Uint64
	malformed  atomic.Uint64
	dropped    atomic.Uint64
	duplicates atomic.Uint64
	persisted  atomic.Uint64
	failures   atomic.Uint64
}

type Options struct {
	BatchSize    int
	BatchTimeout time.Duration
	Workers      int
}

func NewDispatcher(
	hotSet *dedup.HotSet,
	tracker *dedup.Tracker,
	wallets *WalletCache,
	cls *classifier.Classifier,
	store storage.Storage,
	publisher fanout.Publisher,
	oracle price.Oracle,
	subs Subscriptions,
	opts Options,
	logger *zap.Logger,
) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultBatchTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Dispatcher{
		hotSet:       hotSet,
		tracker:      tracker,
		wallets:      wallets,
		classifier:   cls,
		store:        store,
		publisher:    publisher,
		oracle:       oracle,
		subs:         subs,
		logger:       logger.Named("dispatcher"),
		batchSize:    opts.BatchSize,
		batchTimeout: opts.BatchTimeout,
		workers:      opts.Workers,
		batch:        make(map[string]*domain.Payload),
	}
}

// Start arms the dispatcher's processing context and cleanup timers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.tracker.StartSweeps(d.ctx)
}

// Enqueue accepts one inbound payload. Keying the batch by signature makes
// bursts of the same transaction collapse before any real work happens.
func (d *Dispatcher) Enqueue(payload *domain.Payload) {
	d.received.Add(1)

	signature, ok := NormalizeSignature(payload.Signature)
	if !ok {
		d.malformed.Add(1)
		return
	}
	payload.Signature = signature

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	if len(d.batch) == 0 {
		d.timer = time.AfterFunc(d.batchTimeout, d.flushOnTimeout)
	}
	d.batch[signature] = payload

	var batch map[string]*domain.Payload
	if len(d.batch) >= d.batchSize {
		batch = d.takeBatchLocked()
	}
	d.mu.Unlock()

	if batch != nil {
		d.flushWG.Add(1)
		go d.process(batch)
	}
}

func (d *Dispatcher) flushOnTimeout() {
	d.mu.Lock()
	batch := d.takeBatchLocked()
	d.mu.Unlock()

	if batch != nil {
		d.flushWG.Add(1)
		go d.process(batch)
	}
}

// takeBatchLocked detaches the current batch and disarms the timer.
func (d *Dispatcher) takeBatchLocked() map[string]*domain.Payload {
	if len(d.batch) == 0 {
		return nil
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	batch := d.batch
	d.batch = make(map[string]*domain.Payload)
	return batch
}

// process runs one detached batch through the worker pool.
func (d *Dispatcher) process(batch map[string]*domain.Payload) {
	defer d.flushWG.Done()

	solPrice, err := d.oracle.SolPriceUSD(d.ctx)
	if err != nil {
		d.logger.Warn("SOL price unavailable, using zero for USD valuation", zap.Error(err))
		solPrice = 0
	}

	g, ctx := errgroup.WithContext(d.ctx)
	g.SetLimit(d.workers)

	for _, payload := range batch {
		payload := payload
		g.Go(func() error {
			d.processOne(ctx, payload, solPrice)
			return nil
		})
	}
	_ = g.Wait()
}

// processOne handles one message end to end. Every watched wallet the payload
// touches gets its own classification and its own persisted event.
func (d *Dispatcher) processOne(ctx context.Context, payload *domain.Payload, solPrice float64) {
	signature := payload.Signature

	if d.hotSet.CheckAndMark(signature) {
		d.duplicates.Add(1)
		return
	}
	if d.tracker.WasProcessed(signature) {
		d.duplicates.Add(1)
		return
	}

	activeGroup := d.subs.ActiveGroup()
	handled := false
	failed := false

	for _, key := range payload.AccountKeys {
		if !d.subs.Watches(key) {
			continue
		}

		record, err := d.wallets.Get(ctx, key)
		if err != nil {
			if err == ErrWalletNotWatched {
				continue
			}
			d.logger.Warn("Wallet lookup failed",
				zap.String("address", key),
				zap.Error(err))
			failed = true
			continue
		}
		if !record.IsActive {
			continue
		}

		if activeGroup != nil {
			if record.GroupID == nil || *record.GroupID != *activeGroup {
				d.dropped.Add(1)
				continue
			}
		}

		event, err := d.classifier.Classify(ctx, payload, record, solPrice)
		if err != nil {
			d.logger.Warn("Classification failed",
				zap.String("signature", signature),
				zap.Error(err))
			failed = true
			continue
		}
		if event == nil {
			d.dropped.Add(1)
			continue
		}

		duplicate, err := d.store.PersistEvent(ctx, event)
		if err != nil {
			// Not published; the hot-set entry stays so a near-immediate
			// replay is suppressed while a later delivery retries.
			d.failures.Add(1)
			failed = true
			d.logger.Error("Failed to persist event",
				zap.String("signature", signature),
				zap.String("wallet", record.Address),
				zap.Error(err))
			continue
		}
		if duplicate {
			d.duplicates.Add(1)
			continue
		}

		handled = true
		d.persisted.Add(1)

		if err := d.publisher.Publish(ctx, event); err != nil {
			// The event is durable; live consumers recover via their
			// initial bulk fetch on reconnect.
			d.failures.Add(1)
			d.logger.Error("Failed to publish event",
				zap.String("signature", signature),
				zap.Error(err))
		}
	}

	if handled && !failed {
		d.tracker.MarkProcessed(signature)
	}
}

// FlushWallets drops the wallet record cache, used after group changes.
func (d *Dispatcher) FlushWallets() {
	d.wallets.Flush()
}

// ForceCleanup triggers the processed-set sweeps immediately.
func (d *Dispatcher) ForceCleanup() {
	d.tracker.ForceCleanup()
}

// Close drains the in-flight batch within the drain deadline.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	batch := d.takeBatchLocked()
	d.mu.Unlock()

	if batch != nil {
		d.flushWG.Add(1)
		go d.process(batch)
	}

	done := make(chan struct{})
	go func() {
		d.flushWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		d.logger.Warn("Drain deadline exceeded, abandoning in-flight batch")
	}

	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

// Stats reports the dispatcher's operational counters.
func (d *Dispatcher) Stats() map[string]interface{} {
	recent, longTerm := d.tracker.Sizes()
	return map[string]interface{}{
		"received":      d.received.Load(),
		"malformed":     d.malformed.Load(),
		"dropped":       d.dropped.Load(),
		"duplicates":    d.duplicates.Load(),
		"persisted":     d.persisted.Load(),
		"failures":      d.failures.Load(),
		"hot_set":       d.hotSet.Len(),
		"recent_set":    recent,
		"long_term_set": longTerm,
	}
}
