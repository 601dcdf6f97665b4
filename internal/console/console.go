// Package console implements the optional console fan-out (C8): a
// small lock-free single-producer/single-consumer ring that mirrors
// committed entries for registered callbacks, orthogonal to real sinks.
// It exists for test harnesses and UI echoes, never for durable
// delivery — under pressure it drops rather than blocks the publisher.
package console

import "sync/atomic"

// Message is one formatted entry queued for fan-out.
type Message struct {
	Category string
	EpochMs  uint64
	Level    uint8
	Text     string
}

// paddedInt64 keeps the single producer's cursor and the single
// consumer's cursor in separate cache lines, the same layout the main
// commit queue uses for its claim-then-publish protocol.
type paddedInt64 struct {
	v atomic.Int64
	_ [56]byte
}

// Queue is a bounded SPSC ring of Messages. Push is called from the
// buffer's publish path (one logical producer at a time, serialized by
// the same lock that guards commit); Drain is called by whichever
// thread owns the console fan-out, typically a dedicated drain
// goroutine distinct from both producers and the main consumer.
type Queue struct {
	capacity int64
	mask     int64

	writerCursor paddedInt64
	readerCursor paddedInt64

	slots     []Message
	available []paddedInt64

	dropped atomic.Uint64
}

// NewQueue builds a Queue whose capacity is the next power of two >= n.
func NewQueue(n int) *Queue {
	cap64 := nextPow2(int64(n))
	q := &Queue{
		capacity:  cap64,
		mask:      cap64 - 1,
		slots:     make([]Message, cap64),
		available: make([]paddedInt64, cap64),
	}
	for i := range q.available {
		q.available[i].v.Store(-1)
	}
	return q
}

func nextPow2(n int64) int64 {
	if n <= 1 {
		return 1
	}
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// Push enqueues msg, dropping it and incrementing the drop counter if
// the ring is full rather than blocking the publisher.
func (q *Queue) Push(msg Message) bool {
	seq := q.writerCursor.v.Add(1) - 1
	if seq-q.readerCursor.v.Load() >= q.capacity {
		q.writerCursor.v.Add(-1)
		q.dropped.Add(1)
		return false
	}
	idx := seq & q.mask
	q.slots[idx] = msg
	round := seq / q.capacity
	q.available[idx].v.Store(round)
	return true
}

// FetchAndRemove drains every message currently available, in FIFO
// order, and hands ownership of them to the caller — the
// fetch_and_remove_console_buffer operation.
func (q *Queue) FetchAndRemove() []Message {
	var out []Message
	for {
		pos := q.readerCursor.v.Load()
		idx := pos & q.mask
		round := pos / q.capacity
		if q.available[idx].v.Load() != round {
			break
		}
		out = append(out, q.slots[idx])
		q.readerCursor.v.Add(1)
	}
	return out
}

// Dropped reports how many messages were discarded by the drop-if-full
// policy.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Callback receives one fanned-out message. A Callback that panics or
// blocks indefinitely will stall the drain loop for every other
// registered callback; Fanout does not isolate them from each other.
type Callback func(Message)

// Fanout wires a Queue to a set of registered callbacks, invoked by a
// dedicated Drain call rather than inline with Push — keeping the
// publish path free of arbitrary user code.
type Fanout struct {
	queue     *Queue
	callbacks []Callback
}

// NewFanout builds a Fanout backed by a Queue of the given capacity.
func NewFanout(capacity int) *Fanout {
	return &Fanout{queue: NewQueue(capacity)}
}

// Register adds cb to the set invoked on each Drain, returning a
// function that removes it again.
func (f *Fanout) Register(cb Callback) (unregister func()) {
	f.callbacks = append(f.callbacks, cb)
	idx := len(f.callbacks) - 1
	return func() {
		f.callbacks[idx] = nil
	}
}

// Publish mirrors one entry into the fan-out queue.
func (f *Fanout) Publish(msg Message) bool {
	return f.queue.Push(msg)
}

// Drain fetches every pending message and invokes every live registered
// callback for each one, returning the number of messages drained.
func (f *Fanout) Drain() int {
	msgs := f.queue.FetchAndRemove()
	for _, msg := range msgs {
		for _, cb := range f.callbacks {
			if cb == nil {
				continue
			}
			cb(msg)
		}
	}
	return len(msgs)
}

// Dropped reports how many messages the underlying queue has discarded
// due to the drop-if-full policy.
func (f *Fanout) Dropped() uint64 {
	return f.queue.Dropped()
}
