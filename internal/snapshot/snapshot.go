// Package snapshot implements the secondary single-producer,
// single-consumer mirror of committed entries (C6): a byte-budgeted
// ring that the main buffer's publish path optionally copies into, and
// that TakeSnapshot copies out on demand into a formatted string. It never
// affects the main buffer; entries here are a read-only echo.
package snapshot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ehrlich-b/bqlog/internal/wire"
)

// Entry is a mirrored copy of a committed log entry, decoded just far
// enough to format — the raw argument payload is kept undecoded until
// TakeSnapshot actually renders it.
type Entry struct {
	Category string
	EpochMs  uint64
	Level    uint8
	Format   string
	Args     []byte
}

func (e Entry) size() int {
	return len(e.Category) + len(e.Format) + len(e.Args) + 32
}

// Ring mirrors committed entries up to a fixed byte budget. When
// appending a new entry would exceed that budget, whole entries are
// evicted from the front until it fits — an entry is never split, and
// take_snapshot never observes a partial one. A single mutex serializes
// Publish with TakeSnapshot; both sides only ever hold it for a memcpy
// worth of work.
type Ring struct {
	mu       sync.Mutex
	capacity int
	used     int
	entries  []Entry
	dropped  uint64
}

// New creates a snapshot ring with the given byte budget. A
// non-positive capacity disables mirroring entirely: Publish becomes a
// no-op and TakeSnapshot always returns an empty string.
func New(capacityBytes int) *Ring {
	return &Ring{capacity: capacityBytes}
}

// Publish mirrors one committed entry into the ring, copying Category,
// Format, and Args so the ring owns independent memory from the main
// buffer's chunk (which may be recycled the moment the consumer returns
// it).
func (r *Ring) Publish(category string, epochMs uint64, level uint8, format string, args []byte) {
	if r.capacity <= 0 {
		return
	}
	e := Entry{
		Category: category,
		EpochMs:  epochMs,
		Level:    level,
		Format:   format,
		Args:     append([]byte(nil), args...),
	}
	size := e.size()

	r.mu.Lock()
	defer r.mu.Unlock()

	if size > r.capacity {
		// A single entry wider than the whole ring can never be
		// resident; drop it and account for it like any other
		// overflow eviction.
		r.dropped++
		return
	}
	for r.used+size > r.capacity && len(r.entries) > 0 {
		r.used -= r.entries[0].size()
		r.entries = r.entries[1:]
		r.dropped++
	}
	r.entries = append(r.entries, e)
	r.used += size
}

// Len reports the number of entries currently resident.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// DroppedEntries reports how many mirrored entries were evicted by
// overflow (never by TakeSnapshot, which is read-only).
func (r *Ring) DroppedEntries() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// TakeSnapshot copies out every entry currently resident and renders
// them to a formatted string. It is a pure observation: the ring's
// contents are left untouched, and it never blocks the publish path
// for longer than the copy under the lock.
//
// The layout/rendering engine proper is an external collaborator; this
// renders a reasonable default text representation (timestamp, level,
// category, decoded arguments) so TakeSnapshot is usable standalone.
func (r *Ring) TakeSnapshot(tzHint *time.Location) (string, error) {
	if tzHint == nil {
		tzHint = time.UTC
	}

	r.mu.Lock()
	snap := make([]Entry, len(r.entries))
	copy(snap, r.entries)
	r.mu.Unlock()

	var b strings.Builder
	for _, e := range snap {
		if err := renderEntry(&b, e, tzHint); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func renderEntry(b *strings.Builder, e Entry, loc *time.Location) error {
	ts := time.UnixMilli(int64(e.EpochMs)).In(loc)
	fmt.Fprintf(b, "[%s] level=%d %s %s", ts.Format(time.RFC3339Nano), e.Level, e.Category, e.Format)

	if len(e.Args) > 0 {
		dec := wire.NewDecoder(e.Args)
		b.WriteString(" (")
		first := true
		for !dec.Done() {
			v, err := dec.Next()
			if err != nil {
				return err
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			fmt.Fprint(b, formatValue(v))
		}
		b.WriteString(")")
	}
	b.WriteString("\n")
	return nil
}

func formatValue(v wire.Value) string {
	switch v.Tag {
	case wire.TagNull:
		return "null"
	case wire.TagBool:
		return fmt.Sprintf("%t", v.Bool)
	case wire.TagF32:
		return fmt.Sprintf("%g", v.F32)
	case wire.TagF64:
		return fmt.Sprintf("%g", v.F64)
	case wire.TagUTF8String, wire.TagUTF16String, wire.TagUTF32String:
		return v.Str
	case wire.TagRawPointer:
		return fmt.Sprintf("0x%x", v.U64)
	case wire.TagCustomFormatted:
		return string(v.Raw)
	default:
		if v.I64 != 0 {
			return fmt.Sprintf("%d", v.I64)
		}
		return fmt.Sprintf("%d", v.U64)
	}
}
