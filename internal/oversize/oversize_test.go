package oversize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolGetRoundsUpToBucket(t *testing.T) {
	p := NewPool()
	buf := p.Get(3000)
	require.Len(t, buf, 3000)
	require.Equal(t, 8*1024, cap(buf))
	p.Put(buf)
}

func TestPoolPutIgnoresNonStandardCapacity(t *testing.T) {
	p := NewPool()
	buf := make([]byte, 100)
	require.NotPanics(t, func() { p.Put(buf) })
}

func TestAllocatorReusesBeforeDeadline(t *testing.T) {
	a := NewAllocator(2 * time.Second)
	now := time.Unix(0, 0)

	buf := a.Alloc(4096)
	buf[0] = 0xAB
	a.Release(buf, now)

	reused := a.Alloc(4096)
	require.Equal(t, byte(0xAB), reused[0], "a fresh burst within the deadline should reclaim the same memory")
	require.Equal(t, 0, a.Outstanding())
}

func TestAllocatorGarbageCollectFreesExpiredRuns(t *testing.T) {
	a := NewAllocator(1 * time.Second)
	now := time.Unix(0, 0)

	buf := a.Alloc(4096)
	a.Release(buf, now)
	require.Equal(t, 1, a.Outstanding())

	freed := a.GarbageCollect(now.Add(500 * time.Millisecond))
	require.Equal(t, 0, freed, "deadline has not yet passed")
	require.Equal(t, 1, a.Outstanding())

	freed = a.GarbageCollect(now.Add(2 * time.Second))
	require.Equal(t, 1, freed)
	require.Equal(t, 0, a.Outstanding())
}
