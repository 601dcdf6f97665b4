package block

import (
	"runtime"
	"sync/atomic"
)

// spinlock is a minimal test-and-test-and-set lock: contention is rare
// (producers operate primarily on their own write-group run) so a bare
// CAS loop with Gosched beats a full mutex's syscall path under load.
type spinlock struct {
	locked atomic.Bool
}

func (s *spinlock) Lock() {
	for !s.locked.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (s *spinlock) Unlock() {
	s.locked.Store(false)
}

// List is a LIFO-ordered collection of blocks with O(1) push/pop and a
// tail-eviction operation, serialized by a single spinlock. The ring
// buffer keeps one List, for blocks the consumer has returned and
// GarbageCollect has not yet reset; it keeps no free list, and finds
// free blocks by scanning block heads instead.
type List struct {
	mu     spinlock
	head   uint32
	size   uint32
	blocks []*Block
}

// NewList builds an empty list over a shared backing block array. Each
// Block belongs to at most one list at a time.
func NewList(blocks []*Block) *List {
	return &List{head: None, blocks: blocks}
}

// Push adds idx to the top of the list. It panics if idx is already the
// list's top block; a block pushed again while linked deeper in the list
// is not detected.
func (l *List) Push(idx uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushLocked(idx)
}

func (l *List) pushLocked(idx uint32) {
	if idx == l.head {
		panic("block: double push of the same block")
	}
	blk := l.blocks[idx]
	blk.Next = l.head
	l.head = idx
	l.size++
}

// Pop removes and returns the top block, or (0, false) if the list is
// empty.
func (l *List) Pop() (uint32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.popLocked()
}

func (l *List) popLocked() (uint32, bool) {
	if l.head == None {
		return 0, false
	}
	idx := l.head
	blk := l.blocks[idx]
	l.head = blk.Next
	blk.Next = None
	l.size--
	return idx, true
}

// PopRun removes n blocks in one critical section, amortizing the
// spinlock cost over a whole write-group run instead of one entry at a
// time. Returns false without modifying the list if fewer than n blocks
// are available.
func (l *List) PopRun(n uint32) ([]uint32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size < n {
		return nil, false
	}
	out := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		idx, ok := l.popLocked()
		if !ok {
			// size bookkeeping guaranteed this wouldn't happen.
			break
		}
		out = append(out, idx)
	}
	return out, true
}

// PushRun returns a whole run to the list in one critical section, used
// by write-group rollback and oversize release.
func (l *List) PushRun(idxs []uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, idx := range idxs {
		l.pushLocked(idx)
	}
}

// Evict walks to the LRU tail and removes it only if pred accepts it.
func (l *List) Evict(pred func(idx uint32) bool) (uint32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.head == None {
		return 0, false
	}
	prev := None
	cur := l.head
	for l.blocks[cur].Next != None {
		prev = cur
		cur = l.blocks[cur].Next
	}
	if !pred(cur) {
		return 0, false
	}
	if prev == None {
		l.head = None
	} else {
		l.blocks[prev].Next = None
	}
	l.size--
	return cur, true
}

// Len reports the current list size.
func (l *List) Len() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
