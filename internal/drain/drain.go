// Package drain implements an in-memory Sink used by tests and
// benchmarks to assert on drained entries without standing up a real
// file or console sink. It is not a product sink — callers needing
// durable output own that themselves (spec.md §1 treats sinks as
// external collaborators).
//
// Sharded by category hash rather than by byte offset: the teacher's
// in-memory backend (internal/drain is grounded on backend/mem.go)
// shards a flat byte array by offset to let parallel queues touch
// disjoint locks; here the parallel writers are DataTraverse/ReadChunk
// callers draining into a Sink, and the natural partition key is the
// log category rather than a position in a single address space.
package drain

import (
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ErrClosed is returned by OnEntry once the sink has been closed.
var ErrClosed = errors.New("drain: sink is closed")

// ShardCount is the number of independent locked buckets the sink
// partitions entries into. Must be a power of two for the mask in
// shardFor.
const ShardCount = 64

// StoredEntry is one captured entry, decoded only as far as the Sink
// interface hands it over — the raw argument payload is kept
// undecoded so tests can assert on it with wire.NewDecoder themselves.
type StoredEntry struct {
	Category string
	EpochMs  uint64
	Level    uint8
	Payload  []byte
}

type shard struct {
	mu      sync.RWMutex
	entries []StoredEntry
}

// MemorySink is a Sink that captures every entry handed to it in
// memory, partitioned into ShardCount independently-locked shards by
// category so concurrent drain callers touching different categories
// don't contend on a single mutex.
type MemorySink struct {
	shards  [ShardCount]shard
	flushes int
	mu      sync.Mutex
	closed  bool
}

// NewMemorySink builds an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) shardFor(category string) *shard {
	h := xxhash.Sum64String(category)
	return &s.shards[h&(ShardCount-1)]
}

// OnEntry implements interfaces.Sink: it captures a copy of payload
// (the caller's buffer may be recycled immediately after this call
// returns) into the shard selected by category.
func (s *MemorySink) OnEntry(category string, epochMs uint64, level uint8, payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	sh := s.shardFor(category)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.entries = append(sh.entries, StoredEntry{
		Category: category,
		EpochMs:  epochMs,
		Level:    level,
		Payload:  append([]byte(nil), payload...),
	})
	return nil
}

// Flush implements interfaces.Sink; MemorySink has nothing buffered
// beyond its shard slices, so Flush only counts the call for test
// assertions.
func (s *MemorySink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

// Close implements interfaces.Sink, marking the sink closed. Entries
// remain readable after Close — OnEntry after Close returns an error.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Flushes reports how many times Flush has been called.
func (s *MemorySink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Entries returns every captured entry across all shards, in no
// particular cross-category order (each shard preserves its own
// arrival order).
func (s *MemorySink) Entries() []StoredEntry {
	var out []StoredEntry
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		out = append(out, sh.entries...)
		sh.mu.RUnlock()
	}
	return out
}

// EntriesFor returns captured entries for one category, in arrival
// order.
func (s *MemorySink) EntriesFor(category string) []StoredEntry {
	sh := s.shardFor(category)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	out := make([]StoredEntry, len(sh.entries))
	copy(out, sh.entries)
	return out
}

// Len returns the total number of captured entries across all shards.
func (s *MemorySink) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}
