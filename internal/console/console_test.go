package console

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueuePushFetchAndRemoveIsFIFO(t *testing.T) {
	q := NewQueue(4)
	require.True(t, q.Push(Message{Category: "a"}))
	require.True(t, q.Push(Message{Category: "b"}))

	msgs := q.FetchAndRemove()
	require.Len(t, msgs, 2)
	require.Equal(t, "a", msgs[0].Category)
	require.Equal(t, "b", msgs[1].Category)

	require.Empty(t, q.FetchAndRemove())
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(2)
	require.True(t, q.Push(Message{Category: "1"}))
	require.True(t, q.Push(Message{Category: "2"}))
	require.False(t, q.Push(Message{Category: "3"}))
	require.Equal(t, uint64(1), q.Dropped())

	msgs := q.FetchAndRemove()
	require.Len(t, msgs, 2)
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	q := NewQueue(1024)
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			for !q.Push(Message{EpochMs: uint64(i)}) {
			}
		}
	}()

	seen := 0
	for seen < total {
		seen += len(q.FetchAndRemove())
	}
	wg.Wait()
	require.Equal(t, total, seen)
}

func TestFanoutDrainInvokesRegisteredCallbacks(t *testing.T) {
	f := NewFanout(8)

	var mu sync.Mutex
	var got []string
	unregister := f.Register(func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m.Category)
	})

	f.Publish(Message{Category: "x"})
	f.Publish(Message{Category: "y"})

	n := f.Drain()
	require.Equal(t, 2, n)
	require.Equal(t, []string{"x", "y"}, got)

	unregister()
	f.Publish(Message{Category: "z"})
	f.Drain()
	require.Equal(t, []string{"x", "y"}, got, "unregistered callback must not fire")
}

func TestFanoutReportsDropped(t *testing.T) {
	f := NewFanout(1)
	require.True(t, f.Publish(Message{Category: "a"}))
	require.False(t, f.Publish(Message{Category: "b"}))
	require.Equal(t, uint64(1), f.Dropped())
}
