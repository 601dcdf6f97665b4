package bqlog

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/bqlog/internal/interfaces"
)

// SizeBuckets defines the chunk-size histogram buckets in bytes,
// covering the normal-lane range up through multi-MiB oversize chunks
// with logarithmic spacing — the same bucketed-histogram shape the
// teacher uses for operation latency, applied here to the dimension
// that actually varies across allocations in a log buffer: payload
// size, not time.
var SizeBuckets = []uint64{
	64,
	256,
	1024,
	4096,
	16384,
	65536,
	1 << 20,
	8 << 20,
}

const numSizeBuckets = 8

// Metrics tracks operational statistics for a LogBuffer: allocation
// outcomes, committed volume, drops by reason, read lag, and a
// chunk-size histogram.
type Metrics struct {
	AllocOK       atomic.Uint64
	AllocOversize atomic.Uint64

	CommittedEntries atomic.Uint64
	CommittedBytes   atomic.Uint64

	DroppedTotal atomic.Uint64

	ReadLagTotal atomic.Uint64
	ReadLagCount atomic.Uint64
	MaxReadLag   atomic.Uint32

	SizeBuckets [numSizeBuckets]atomic.Uint64

	dropReasons sync.Map // string -> *atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance, stamping StartTime so
// Snapshot can compute uptime and derived rates.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordAlloc records one successful AllocWriteChunk call.
func (m *Metrics) RecordAlloc(size uint32, oversize bool) {
	m.AllocOK.Add(1)
	if oversize {
		m.AllocOversize.Add(1)
	}
	m.recordSize(size)
}

// RecordCommit records one successfully committed chunk.
func (m *Metrics) RecordCommit(size uint32) {
	m.CommittedEntries.Add(1)
	m.CommittedBytes.Add(uint64(size))
}

// RecordDrop records one dropped entry, tracked both by a total counter
// and per-reason (recovery queue full, size invalid, corruption, ...).
func (m *Metrics) RecordDrop(reason string) {
	m.DroppedTotal.Add(1)
	v, _ := m.dropReasons.LoadOrStore(reason, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
}

// RecordReadLag records one sample of pending (committed, unread)
// chunk count.
func (m *Metrics) RecordReadLag(pending uint32) {
	m.ReadLagTotal.Add(uint64(pending))
	m.ReadLagCount.Add(1)
	for {
		current := m.MaxReadLag.Load()
		if pending <= current {
			break
		}
		if m.MaxReadLag.CompareAndSwap(current, pending) {
			break
		}
	}
}

func (m *Metrics) recordSize(size uint32) {
	for i, bucket := range SizeBuckets {
		if uint64(size) <= bucket {
			m.SizeBuckets[i].Add(1)
			return
		}
	}
}

// Stop marks the buffer as stopped, fixing uptime for future snapshots.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read
// without further synchronization.
type MetricsSnapshot struct {
	AllocOK       uint64
	AllocOversize uint64

	CommittedEntries uint64
	CommittedBytes   uint64

	DroppedTotal   uint64
	DroppedReasons map[string]uint64

	AvgReadLag float64
	MaxReadLag uint32

	SizeHistogram [numSizeBuckets]uint64

	UptimeNs  uint64
	AllocIOPS float64
}

// Snapshot creates a point-in-time snapshot of m, the same copy-then-
// compute-derived-stats shape the teacher's Metrics.Snapshot uses.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		AllocOK:          m.AllocOK.Load(),
		AllocOversize:    m.AllocOversize.Load(),
		CommittedEntries: m.CommittedEntries.Load(),
		CommittedBytes:   m.CommittedBytes.Load(),
		DroppedTotal:     m.DroppedTotal.Load(),
		DroppedReasons:   make(map[string]uint64),
		MaxReadLag:       m.MaxReadLag.Load(),
	}

	m.dropReasons.Range(func(key, value any) bool {
		snap.DroppedReasons[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})

	lagCount := m.ReadLagCount.Load()
	if lagCount > 0 {
		snap.AvgReadLag = float64(m.ReadLagTotal.Load()) / float64(lagCount)
	}

	for i := 0; i < numSizeBuckets; i++ {
		snap.SizeHistogram[i] = m.SizeBuckets[i].Load()
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}
	if snap.UptimeNs > 0 {
		snap.AllocIOPS = float64(snap.AllocOK) / (float64(snap.UptimeNs) / 1e9)
	}

	return snap
}

// Reset zeroes every counter; used by tests.
func (m *Metrics) Reset() {
	m.AllocOK.Store(0)
	m.AllocOversize.Store(0)
	m.CommittedEntries.Store(0)
	m.CommittedBytes.Store(0)
	m.DroppedTotal.Store(0)
	m.dropReasons = sync.Map{}
	m.ReadLagTotal.Store(0)
	m.ReadLagCount.Store(0)
	m.MaxReadLag.Store(0)
	for i := 0; i < numSizeBuckets; i++ {
		m.SizeBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver implements interfaces.Observer using a *Metrics,
// the bridge the ring buffer's hot path uses to drive metrics without
// importing the root package.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAlloc(size uint32, oversize bool) {
	o.metrics.RecordAlloc(size, oversize)
}

func (o *MetricsObserver) ObserveCommit(size uint32) {
	o.metrics.RecordCommit(size)
}

func (o *MetricsObserver) ObserveDrop(reason string) {
	o.metrics.RecordDrop(reason)
}

func (o *MetricsObserver) ObserveReadLag(chunksPending uint32) {
	o.metrics.RecordReadLag(chunksPending)
}

var _ interfaces.Observer = (*MetricsObserver)(nil)
