package group

import (
	"sync"
	"time"

	"github.com/ehrlich-b/bqlog/internal/constants"
)

// Manager owns every producer's write group for a single buffer,
// guarded by its own short-lived lock touched only on group creation,
// quiescence GC, and shutdown — never on the per-entry hot path, since
// each group's own mutex handles that.
type Manager struct {
	ttl time.Duration

	mu     sync.Mutex
	groups map[uint64]*Group
}

// NewManager builds a Manager with the given GC TTL; a zero ttl falls
// back to constants.DefaultGroupGCTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = constants.DefaultGroupGCTTL
	}
	return &Manager{ttl: ttl, groups: make(map[uint64]*Group)}
}

// Acquire returns the group for producerID, creating it lazily on first
// use.
func (m *Manager) Acquire(producerID uint64) *Group {
	m.mu.Lock()
	g, ok := m.groups[producerID]
	if !ok {
		g = &Group{producerID: producerID, lastActive: time.Now()}
		m.groups[producerID] = g
	}
	m.mu.Unlock()
	return g
}

// Len reports how many groups are currently tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.groups)
}

// Sweep prunes every group that has been idle for at least the
// configured TTL. For each pruned group with unclaimed blocks left in
// its run, rollback is invoked with those block indices so the caller
// can push them back onto the free list; blocks already handed out by
// TryClaim are not passed. Returns the number of groups pruned.
func (m *Manager) Sweep(now time.Time, rollback func(run []uint32)) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, g := range m.groups {
		if g.idleSince(now) < m.ttl {
			continue
		}
		run := g.drainRun()
		if len(run) > 0 && rollback != nil {
			rollback(run)
		}
		delete(m.groups, id)
		pruned++
	}
	return pruned
}

// Seqs returns every tracked group's (producerID, seq) pair. The ring
// buffer does not call it, so these values are not written to the
// recovery header's per-group table.
func (m *Manager) Seqs() map[uint64]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]uint64, len(m.groups))
	for id, g := range m.groups {
		out[id] = g.Seq()
	}
	return out
}
