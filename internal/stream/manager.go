// internal/stream/manager.go
package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rovshanmuradov/solana-tracker/internal/domain"
	"go.uber.org/zap"
)

// DefaultShardMax is the upstream-imposed ceiling on addresses per stream.
const DefaultShardMax = 1000

// shardStagger spaces out shard starts so a rebuild does not slam the node.
const shardStagger = 100 * time.Millisecond

// Manager owns the shard set of streaming subscriptions. Rebuilds are
// serialised through rebuildMu and run outside mu, so the per-message
// Watches lookup never waits behind a staggered shard start.
type Manager struct {
	client      StreamClient
	sink        func(*domain.Payload)
	chunkSize   int
	maxAttempts int
	logger      *zap.Logger

	rebuildMu sync.Mutex

	mu          sync.RWMutex
	addresses   map[string]struct{}
	shards      []*Shard
	activeGroup *string
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewManager(client StreamClient, sink func(*domain.Payload), chunkSize int, logger *zap.Logger) *Manager {
	if chunkSize <= 0 {
		chunkSize = DefaultShardMax
	}
	return &Manager{
		client:      client,
		sink:        sink,
		chunkSize:   chunkSize,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger.Named("subscription_manager"),
		addresses:   make(map[string]struct{}),
	}
}

// Start builds the initial shard set for the given addresses.
func (m *Manager) Start(ctx context.Context, addresses []string) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.addresses = make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		m.addresses[addr] = struct{}{}
	}
	m.mu.Unlock()

	m.rebuild()
	return nil
}

// Subscribe adds addresses to the watched set, rebuilding live streams.
func (m *Manager) Subscribe(addresses []string) {
	m.mu.Lock()
	changed := false
	for _, addr := range addresses {
		if _, ok := m.addresses[addr]; !ok {
			m.addresses[addr] = struct{}{}
			changed = true
		}
	}
	rebuild := changed && m.running
	m.mu.Unlock()

	if rebuild {
		m.rebuild()
	}
}

// Unsubscribe removes addresses from the watched set, rebuilding live streams.
func (m *Manager) Unsubscribe(addresses []string) {
	m.mu.Lock()
	changed := false
	for _, addr := range addresses {
		if _, ok := m.addresses[addr]; ok {
			delete(m.addresses, addr)
			changed = true
		}
	}
	rebuild := changed && m.running
	m.mu.Unlock()

	if rebuild {
		m.rebuild()
	}
}

// ReplaceAddressSet swaps the whole watched set in one stop-and-rebuild.
func (m *Manager) ReplaceAddressSet(addresses []string) {
	m.mu.Lock()
	m.addresses = make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		m.addresses[addr] = struct{}{}
	}
	rebuild := m.running
	m.mu.Unlock()

	if rebuild {
		m.rebuild()
	}
}

// SwitchGroup sets the active group filter consulted by the dispatcher. The
// upstream subscriptions stay on the global set.
func (m *Manager) SwitchGroup(groupID *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeGroup = groupID
}

// ActiveGroup returns the current group filter, nil meaning no filtering.
func (m *Manager) ActiveGroup() *string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeGroup
}

// Watches reports whether the address is in the watched set. Called on the
// hot path for every account key of every message.
func (m *Manager) Watches(address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.addresses[address]
	return ok
}

// Snapshot returns the watched set, sorted.
func (m *Manager) Snapshot() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

// ShardStates reports the state of every shard, in shard order.
func (m *Manager) ShardStates() []ShardState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]ShardState, len(m.shards))
	for i, shard := range m.shards {
		states[i] = shard.State()
	}
	return states
}

// Healthy reports whether at least one shard is still serviceable. A manager
// with no addresses is trivially healthy.
func (m *Manager) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.shards) == 0 {
		return true
	}
	for _, shard := range m.shards {
		if shard.State() != StateFailed {
			return true
		}
	}
	return false
}

// RestartFailed rebuilds the shard set, the manual way out of FAILED.
func (m *Manager) RestartFailed() {
	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if running {
		m.rebuild()
	}
}

// Close stops every shard and marks the manager stopped.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.running = false
	if m.cancel != nil {
		m.cancel()
	}
	old := m.shards
	m.shards = nil
	m.mu.Unlock()

	for _, shard := range old {
		shard.stop()
	}
	return nil
}

// rebuild is the single mutation path for the shard list: stop all current
// streams best-effort, partition the watched set, start new shards with a
// short stagger. rebuildMu serialises concurrent rebuilds; mu is held only
// for the snapshot and the final swap so hot-path readers never wait out the
// stagger.
func (m *Manager) rebuild() {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	chunks := Partition(m.sortedLocked(), m.chunkSize)
	old := m.shards
	m.shards = nil
	m.mu.Unlock()

	for _, shard := range old {
		shard.stop()
	}

	m.logger.Info("Rebuilding subscription shards",
		zap.Int("shards", len(chunks)))

	shards := make([]*Shard, 0, len(chunks))
	for i, chunk := range chunks {
		shard := newShard(i, chunk, m.client, m.sink, m.maxAttempts, m.logger)
		shard.start(ctx)
		shards = append(shards, shard)

		if i < len(chunks)-1 {
			time.Sleep(shardStagger)
		}
	}

	m.mu.Lock()
	if !m.running {
		// Closed mid-rebuild; the fresh shards must not outlive the manager.
		m.mu.Unlock()
		for _, shard := range shards {
			shard.stop()
		}
		return
	}
	m.shards = shards
	m.mu.Unlock()
}

func (m *Manager) sortedLocked() []string {
	addrs := make([]string, 0, len(m.addresses))
	for addr := range m.addresses {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// Partition splits addresses into chunks of at most chunkSize, preserving
// order. The chunks are pairwise disjoint and cover the input exactly.
func Partition(addresses []string, chunkSize int) [][]string {
	if chunkSize <= 0 || len(addresses) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(addresses)+chunkSize-1)/chunkSize)
	for start := 0; start < len(addresses); start += chunkSize {
		end := start + chunkSize
		if end > len(addresses) {
			end = len(addresses)
		}
		chunks = append(chunks, addresses[start:end])
	}
	return chunks
}
