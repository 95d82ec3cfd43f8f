// internal/dedup/hotset.go
package dedup

import (
	"sync"

	"go.uber.org/zap"
)

// HotSet is the in-memory fast path of signature deduplication. Misses are
// acceptable (the database unique constraint catches them); false positives
// are not, so entries are only ever dropped wholesale during reduction.
type HotSet struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	cap    int
	logger *zap.Logger
}

// DefaultCap bounds the hot set before it is reduced to half size.
const DefaultCap = 10_000

func NewHotSet(capacity int, logger *zap.Logger) *HotSet {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &HotSet{
		seen:   make(map[string]struct{}, capacity),
		cap:    capacity,
		logger: logger.Named("dedup"),
	}
}

// SeenRecently reports whether the signature is already in the hot set.
func (h *HotSet) SeenRecently(signature string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.seen[signature]
	return ok
}

// MarkRecent inserts the signature, reducing the set when it exceeds the cap.
func (h *HotSet) MarkRecent(signature string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seen[signature] = struct{}{}
	if len(h.seen) > h.cap {
		h.reduceLocked(h.cap / 2)
	}
}

// CheckAndMark atomically reports prior presence and inserts the signature.
func (h *HotSet) CheckAndMark(signature string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.seen[signature]; ok {
		return true
	}
	h.seen[signature] = struct{}{}
	if len(h.seen) > h.cap {
		h.reduceLocked(h.cap / 2)
	}
	return false
}

// Reduce drops entries down to the target size if the set exceeds it.
func (h *HotSet) Reduce(target int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.seen) > target {
		h.reduceLocked(target)
	}
}

func (h *HotSet) reduceLocked(target int) {
	before := len(h.seen)
	for sig := range h.seen {
		if len(h.seen) <= target {
			break
		}
		delete(h.seen, sig)
	}
	h.logger.Debug("Reduced signature hot set",
		zap.Int("before", before),
		zap.Int("after", len(h.seen)))
}

// Len returns the current number of tracked signatures.
func (h *HotSet) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}
