package snapshot

import (
	"strings"
	"testing"
	"time"

	"github.com/ehrlich-b/bqlog/internal/wire"
	"github.com/stretchr/testify/require"
)

func encodedArgs(t *testing.T, build func(e *wire.Encoder)) []byte {
	t.Helper()
	buf := make([]byte, 256)
	enc := wire.NewEncoder(buf)
	build(enc)
	return append([]byte(nil), enc.Bytes()...)
}

func TestPublishAndTakeSnapshotRendersResidentEntries(t *testing.T) {
	r := New(64 * 1024)
	args := encodedArgs(t, func(e *wire.Encoder) { e.WriteUTF8String("world") })

	r.Publish("net", 1_700_000_000_000, 2, "hello %s", args)
	require.Equal(t, 1, r.Len())

	out, err := r.TakeSnapshot(time.UTC)
	require.NoError(t, err)
	require.Contains(t, out, "net")
	require.Contains(t, out, "hello %s")
	require.Contains(t, out, "world")
}

func TestTakeSnapshotIsReadOnly(t *testing.T) {
	r := New(64 * 1024)
	r.Publish("a", 1, 0, "x", nil)

	_, err := r.TakeSnapshot(nil)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len(), "TakeSnapshot must not drain the ring")

	_, err = r.TakeSnapshot(nil)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())
}

func TestPublishEvictsOldestWholeEntriesOnOverflow(t *testing.T) {
	// Capacity sized to hold four 40-byte entries.
	r := New(160)

	for i := 0; i < 10; i++ {
		r.Publish("cat", uint64(i), 0, "entry", nil)
	}

	require.Less(t, r.Len(), 10, "overflow must evict, not grow unbounded")
	require.Greater(t, r.DroppedEntries(), uint64(0))

	out, err := r.TakeSnapshot(nil)
	require.NoError(t, err)
	// The most recent entry must always survive eviction of older ones.
	require.True(t, strings.Contains(out, "1970-01-01T00:00:00.009Z"))
}

func TestPublishDropsEntryWiderThanCapacity(t *testing.T) {
	r := New(8)
	r.Publish("cat", 1, 0, "this format string alone exceeds capacity", nil)
	require.Equal(t, 0, r.Len())
	require.Equal(t, uint64(1), r.DroppedEntries())
}

func TestNonPositiveCapacityDisablesMirroring(t *testing.T) {
	r := New(0)
	r.Publish("cat", 1, 0, "x", nil)
	require.Equal(t, 0, r.Len())

	out, err := r.TakeSnapshot(nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
