package bqlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAllocTracksOversizeAndHistogram(t *testing.T) {
	m := NewMetrics()
	m.RecordAlloc(32, false)
	m.RecordAlloc(2<<20, true)

	snap := m.Snapshot()
	require.Equal(t, uint64(2), snap.AllocOK)
	require.Equal(t, uint64(1), snap.AllocOversize)
	require.Equal(t, uint64(1), snap.SizeHistogram[0]) // 32 falls in the <=64 bucket
}

func TestRecordDropTracksReasons(t *testing.T) {
	m := NewMetrics()
	m.RecordDrop("size_invalid")
	m.RecordDrop("size_invalid")
	m.RecordDrop("corruption_detected")

	snap := m.Snapshot()
	require.Equal(t, uint64(3), snap.DroppedTotal)
	require.Equal(t, uint64(2), snap.DroppedReasons["size_invalid"])
	require.Equal(t, uint64(1), snap.DroppedReasons["corruption_detected"])
}

func TestRecordReadLagTracksMaxAndAverage(t *testing.T) {
	m := NewMetrics()
	m.RecordReadLag(2)
	m.RecordReadLag(10)
	m.RecordReadLag(4)

	snap := m.Snapshot()
	require.Equal(t, uint32(10), snap.MaxReadLag)
	require.InDelta(t, 16.0/3.0, snap.AvgReadLag, 0.001)
}

func TestResetZeroesCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordAlloc(32, false)
	m.RecordDrop("x")
	m.Reset()

	snap := m.Snapshot()
	require.Equal(t, uint64(0), snap.AllocOK)
	require.Equal(t, uint64(0), snap.DroppedTotal)
	require.Empty(t, snap.DroppedReasons)
}

func TestMetricsObserverBridgesToMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveAlloc(100, false)
	obs.ObserveCommit(100)
	obs.ObserveDrop("group_gc_rollback")
	obs.ObserveReadLag(3)

	snap := m.Snapshot()
	require.Equal(t, uint64(1), snap.AllocOK)
	require.Equal(t, uint64(1), snap.CommittedEntries)
	require.Equal(t, uint64(100), snap.CommittedBytes)
	require.Equal(t, uint64(1), snap.DroppedReasons["group_gc_rollback"])
	require.Equal(t, uint32(3), snap.MaxReadLag)
}
