package block

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newBlocks(n int) []*Block {
	blocks := make([]*Block, n)
	for i := range blocks {
		blocks[i] = &Block{Index: uint32(i), Next: None}
	}
	return blocks
}

func TestHeadReserveCommitLifecycle(t *testing.T) {
	var h Head
	h.Reset()

	status, _, _ := h.Load()
	require.Equal(t, StatusUnused, status)

	require.True(t, h.Reserve(3))
	status, blockCount, _ := h.Load()
	require.Equal(t, StatusReserved, status)
	require.Equal(t, uint32(3), blockCount)

	// Reserving an already-reserved block must fail.
	require.False(t, h.Reserve(3))

	// A write group may reserve a run larger than what one chunk ends up
	// occupying; Commit restamps blockCount to the committing chunk's own
	// span rather than preserving the reservation-time value.
	h.Commit(2, 42)
	status, blockCount, payloadLen := h.Load()
	require.Equal(t, StatusUsed, status)
	require.Equal(t, uint32(2), blockCount)
	require.Equal(t, uint32(42), payloadLen)

	// Commit is idempotent once published.
	h.Commit(2, 99)
	_, _, payloadLen = h.Load()
	require.Equal(t, uint32(42), payloadLen)
}

func TestHeadInvalidatePreservesBlockCount(t *testing.T) {
	var h Head
	h.Reset()
	require.True(t, h.Reserve(5))
	h.Commit(5, 10)
	h.Invalidate()
	status, blockCount, _ := h.Load()
	require.Equal(t, StatusInvalid, status)
	require.Equal(t, uint32(5), blockCount)
}

func TestHeadRestoreInstallsStateDirectly(t *testing.T) {
	var h Head
	h.Restore(StatusUsed, 4, 128)
	status, blockCount, payloadLen := h.Load()
	require.Equal(t, StatusUsed, status)
	require.Equal(t, uint32(4), blockCount)
	require.Equal(t, uint32(128), payloadLen)
}

func TestListPushPopIsLIFO(t *testing.T) {
	blocks := newBlocks(4)
	l := NewList(blocks)

	l.Push(0)
	l.Push(1)
	l.Push(2)

	idx, ok := l.Pop()
	require.True(t, ok)
	require.Equal(t, uint32(2), idx)

	idx, ok = l.Pop()
	require.True(t, ok)
	require.Equal(t, uint32(1), idx)

	idx, ok = l.Pop()
	require.True(t, ok)
	require.Equal(t, uint32(0), idx)

	_, ok = l.Pop()
	require.False(t, ok)
}

func TestListPopRunAmortizesOverARun(t *testing.T) {
	blocks := newBlocks(8)
	l := NewList(blocks)
	for i := 0; i < 8; i++ {
		l.Push(uint32(i))
	}

	run, ok := l.PopRun(5)
	require.True(t, ok)
	require.Len(t, run, 5)
	require.Equal(t, uint32(3), l.Len())

	_, ok = l.PopRun(4)
	require.False(t, ok, "fewer than requested blocks remain")
	require.Equal(t, uint32(3), l.Len(), "failed PopRun must not mutate the list")
}

func TestListEvictChecksPredicate(t *testing.T) {
	blocks := newBlocks(3)
	l := NewList(blocks)
	l.Push(0)
	l.Push(1)
	l.Push(2)

	_, ok := l.Evict(func(idx uint32) bool { return false })
	require.False(t, ok)
	require.Equal(t, uint32(3), l.Len())

	idx, ok := l.Evict(func(idx uint32) bool { return true })
	require.True(t, ok)
	require.Equal(t, uint32(0), idx, "tail of a LIFO push order 0,1,2 is 0")
	require.Equal(t, uint32(2), l.Len())
}

func TestListDoublePushPanics(t *testing.T) {
	blocks := newBlocks(2)
	l := NewList(blocks)
	l.Push(0)
	require.Panics(t, func() { l.Push(0) })
}
