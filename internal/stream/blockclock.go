// internal/stream/blockclock.go
package stream

import (
	"sync"
	"time"
)

// blockClockCapacity bounds how many recent slots keep a block time. At
// Solana's slot cadence this covers several minutes of stream skew.
const blockClockCapacity = 1024

// blockClock joins block-meta updates to transaction updates by slot. The
// stream interleaves the two with no ordering promise, so lookups are best
// effort.
type blockClock struct {
	mu       sync.Mutex
	times    map[uint64]time.Time
	order    []uint64
	capacity int
}

func newBlockClock(capacity int) *blockClock {
	if capacity <= 0 {
		capacity = blockClockCapacity
	}
	return &blockClock{
		times:    make(map[uint64]time.Time, capacity),
		capacity: capacity,
	}
}

// Observe records the block time for a slot, evicting the oldest observation
// once the capacity is reached.
func (c *blockClock) Observe(slot uint64, blockTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.times[slot]; !ok {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.times, oldest)
		}
		c.order = append(c.order, slot)
	}
	c.times[slot] = blockTime
}

// At returns the recorded block time for a slot.
func (c *blockClock) At(slot uint64) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blockTime, ok := c.times[slot]
	return blockTime, ok
}
