package drain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOnEntryCapturesInArrivalOrderPerCategory(t *testing.T) {
	s := NewMemorySink()
	require.NoError(t, s.OnEntry("net", 1, 0, []byte("a")))
	require.NoError(t, s.OnEntry("net", 2, 0, []byte("b")))
	require.NoError(t, s.OnEntry("db", 3, 0, []byte("c")))

	netEntries := s.EntriesFor("net")
	require.Len(t, netEntries, 2)
	require.Equal(t, []byte("a"), netEntries[0].Payload)
	require.Equal(t, []byte("b"), netEntries[1].Payload)

	require.Equal(t, 3, s.Len())
}

func TestOnEntryCopiesPayload(t *testing.T) {
	s := NewMemorySink()
	payload := []byte("mutable")
	require.NoError(t, s.OnEntry("cat", 1, 0, payload))
	payload[0] = 'X'

	got := s.EntriesFor("cat")
	require.Equal(t, "mutable", string(got[0].Payload))
}

func TestCloseRejectsFurtherEntries(t *testing.T) {
	s := NewMemorySink()
	require.NoError(t, s.Close())
	err := s.OnEntry("cat", 1, 0, []byte("x"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestFlushCountsCalls(t *testing.T) {
	s := NewMemorySink()
	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush())
	require.Equal(t, 2, s.Flushes())
}

func TestConcurrentWritesAcrossCategoriesDoNotLoseEntries(t *testing.T) {
	s := NewMemorySink()
	categories := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	for _, cat := range categories {
		wg.Add(1)
		go func(cat string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				require.NoError(t, s.OnEntry(cat, uint64(i), 0, []byte(cat)))
			}
		}(cat)
	}
	wg.Wait()

	require.Equal(t, len(categories)*100, s.Len())
	for _, cat := range categories {
		require.Len(t, s.EntriesFor(cat), 100)
	}
}
