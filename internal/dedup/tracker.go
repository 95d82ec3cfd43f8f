// internal/dedup/tracker.go
package dedup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	recentSweepThreshold   = 5_000
	longTermSweepThreshold = 50_000

	recentSweepInterval   = time.Hour
	longTermSweepInterval = 24 * time.Hour
)

// Tracker remembers fully processed signatures across batches. The recent set
// is swept hourly, the long-term set daily; both are halved when they exceed
// their thresholds so memory stays bounded on a busy stream.
type Tracker struct {
	mu       sync.Mutex
	recent   map[string]struct{}
	longTerm map[string]struct{}
	logger   *zap.Logger
}

func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		recent:   make(map[string]struct{}),
		longTerm: make(map[string]struct{}),
		logger:   logger.Named("dedup_tracker"),
	}
}

// WasProcessed reports whether the signature completed the pipeline before.
func (t *Tracker) WasProcessed(signature string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.recent[signature]; ok {
		return true
	}
	_, ok := t.longTerm[signature]
	return ok
}

// MarkProcessed records a signature that was persisted and published.
func (t *Tracker) MarkProcessed(signature string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent[signature] = struct{}{}
	t.longTerm[signature] = struct{}{}
}

// StartSweeps runs the periodic cleanup timers until the context ends.
func (t *Tracker) StartSweeps(ctx context.Context) {
	go t.sweepLoop(ctx, recentSweepInterval, func() { t.sweepRecent() })
	go t.sweepLoop(ctx, longTermSweepInterval, func() { t.sweepLongTerm() })
}

func (t *Tracker) sweepLoop(ctx context.Context, interval time.Duration, sweep func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// ForceCleanup runs both sweeps immediately. Exposed for operators.
func (t *Tracker) ForceCleanup() {
	t.sweepRecent()
	t.sweepLongTerm()
}

func (t *Tracker) sweepRecent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.recent) > recentSweepThreshold {
		t.recent = halve(t.recent)
		t.logger.Debug("Swept recent processed set", zap.Int("size", len(t.recent)))
	}
}

func (t *Tracker) sweepLongTerm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.longTerm) > longTermSweepThreshold {
		t.longTerm = halve(t.longTerm)
		t.logger.Debug("Swept long-term processed set", zap.Int("size", len(t.longTerm)))
	}
}

func halve(set map[string]struct{}) map[string]struct{} {
	target := len(set) / 2
	next := make(map[string]struct{}, target)
	for sig := range set {
		if len(next) >= target {
			break
		}
		next[sig] = struct{}{}
	}
	return next
}

// Sizes returns the current set sizes, for stats reporting.
func (t *Tracker) Sizes() (recent, longTerm int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.recent), len(t.longTerm)
}
