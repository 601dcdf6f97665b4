package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitQueuePushPopIsFIFO(t *testing.T) {
	q := newCommitQueue(4)
	require.True(t, q.tryPush(10))
	require.True(t, q.tryPush(20))
	require.True(t, q.tryPush(30))

	v, ok := q.tryPop()
	require.True(t, ok)
	require.Equal(t, uint32(10), v)

	v, ok = q.tryPop()
	require.True(t, ok)
	require.Equal(t, uint32(20), v)
}

func TestCommitQueuePopOnEmptyFails(t *testing.T) {
	q := newCommitQueue(4)
	_, ok := q.tryPop()
	require.False(t, ok)
}

func TestCommitQueueConcurrentProducersPreserveEveryValue(t *testing.T) {
	q := newCommitQueue(1024)
	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base uint32) {
			defer wg.Done()
			for i := uint32(0); i < perProducer; i++ {
				for !q.tryPush(base*perProducer + i) {
				}
			}
		}(uint32(p))
	}
	wg.Wait()

	seen := make(map[uint32]bool)
	for len(seen) < producers*perProducer {
		v, ok := q.tryPop()
		if !ok {
			continue
		}
		require.False(t, seen[v], "duplicate delivery of %d", v)
		seen[v] = true
	}
	require.Len(t, seen, producers*perProducer)
}

func TestNextPow2RoundsUp(t *testing.T) {
	require.Equal(t, int64(1), nextPow2(0))
	require.Equal(t, int64(1), nextPow2(1))
	require.Equal(t, int64(4), nextPow2(3))
	require.Equal(t, int64(8), nextPow2(8))
	require.Equal(t, int64(16), nextPow2(9))
}
