package oversize

import (
	"sync"
	"time"

	"github.com/ehrlich-b/bqlog/internal/constants"
)

// pendingRun is a returned oversize buffer sitting out its release
// deadline: a producer bursting again soon after can reclaim it without
// the pool's Get/New overhead; once the deadline passes, GarbageCollect
// frees it back to the underlying pool.
type pendingRun struct {
	buf      []byte
	deadline time.Time
}

// Allocator serves oversize chunk requests and defers their actual
// release back to the pool until a configured deadline has elapsed,
// matching the "rare, bursty, large log entries must not cause
// head-of-line blocking" rationale: consecutive oversize bursts reuse
// the same outstanding memory instead of round-tripping through the
// pool each time.
type Allocator struct {
	pool     *Pool
	deadline time.Duration

	mu      sync.Mutex
	pending []pendingRun
}

// NewAllocator builds an Allocator with the given release deadline. A
// zero deadline falls back to constants.DefaultOversizeReleaseDeadline.
func NewAllocator(deadline time.Duration) *Allocator {
	if deadline <= 0 {
		deadline = constants.DefaultOversizeReleaseDeadline
	}
	return &Allocator{pool: NewPool(), deadline: deadline}
}

// Alloc returns a buffer of at least size bytes, preferring a
// not-yet-expired pending run over a fresh pool Get.
func (a *Allocator) Alloc(size uint32) []byte {
	a.mu.Lock()
	for i, p := range a.pending {
		if cap(p.buf) >= int(size) {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			a.mu.Unlock()
			return p.buf[:size]
		}
	}
	a.mu.Unlock()
	return a.pool.Get(size)
}

// Release marks buf as returned by the consumer, starting its release
// deadline rather than freeing it immediately.
func (a *Allocator) Release(buf []byte, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, pendingRun{buf: buf, deadline: now.Add(a.deadline)})
}

// GarbageCollect frees every pending run whose deadline has passed back
// to the underlying pool, returning the count freed.
func (a *Allocator) GarbageCollect(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	freed := 0
	kept := a.pending[:0]
	for _, p := range a.pending {
		if !now.Before(p.deadline) {
			a.pool.Put(p.buf)
			freed++
			continue
		}
		kept = append(kept, p)
	}
	a.pending = kept
	return freed
}

// Outstanding reports how many runs are currently pending release,
// used to check P3 conservation at quiescent points.
func (a *Allocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
