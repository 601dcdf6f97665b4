package bqlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/bqlog/internal/console"
	"github.com/ehrlich-b/bqlog/internal/interfaces"
	"github.com/ehrlich-b/bqlog/internal/logging"
	"github.com/ehrlich-b/bqlog/internal/manager"
	"github.com/ehrlich-b/bqlog/internal/mmapfile"
	"github.com/ehrlich-b/bqlog/internal/ring"
	"github.com/ehrlich-b/bqlog/internal/snapshot"
	"github.com/ehrlich-b/bqlog/internal/wire"
)

// Policy, Chunk, Result and Entry are re-exported from internal/ring so
// callers never have to import an internal package to hold a value this
// package hands back to them.
type (
	Policy = ring.Policy
	Chunk  = ring.Chunk
	Result = ring.Result
	Entry  = ring.Entry
)

const (
	PolicyAutoExpand    = ring.PolicyAutoExpand
	PolicyBlockWhenFull = ring.PolicyBlockWhenFull

	ResultOK                  = ring.ResultOK
	ResultNotEnoughSpace      = ring.ResultNotEnoughSpace
	ResultBufferUninitialized = ring.ResultBufferUninitialized
	ResultSizeInvalid         = ring.ResultSizeInvalid
	ResultEmpty               = ring.ResultEmpty
	ResultClosed              = ring.ResultClosed
)

// BufferParams configures a LogBuffer at construction time, covering
// every option spec'd for a buffer: its name, the fixed category table
// baked into the recovery header checksum, sizing, backpressure policy,
// and the optional mmap-backed recovery and in-process mirrors.
type BufferParams struct {
	LogName    string
	Categories []string

	DefaultBufferSize uint32
	BlockSize         uint32
	Policy            Policy

	HighFrequencyThresholdPerSecond uint32

	NeedRecovery bool
	BaseDir      string

	SnapshotBufferSize int
	ConsoleBufferSize  int

	OversizeReleaseDeadline time.Duration
	GroupGCTTL              time.Duration
	MaxChunkSize            uint32
	OversizeThreshold       uint32
}

// DefaultBufferParams returns the configuration used when a caller
// supplies no overrides: a single "default" category, in-memory only
// (no recovery), and the package-level tunable defaults.
func DefaultBufferParams() BufferParams {
	return BufferParams{
		LogName:                         "default",
		Categories:                      []string{"default"},
		DefaultBufferSize:               DefaultBufferSize,
		BlockSize:                       DefaultBlockSize,
		Policy:                          PolicyAutoExpand,
		HighFrequencyThresholdPerSecond: DefaultHighFrequencyThreshold,
		SnapshotBufferSize:              DefaultSnapshotBufferSize,
		ConsoleBufferSize:               4096,
		OversizeReleaseDeadline:         DefaultOversizeReleaseDeadline,
		GroupGCTTL:                      DefaultGroupGCTTL,
		MaxChunkSize:                    DefaultMaxChunkSize,
		OversizeThreshold:               DefaultOversizeThreshold,
	}
}

func (p BufferParams) normalized() BufferParams {
	def := DefaultBufferParams()
	if len(p.Categories) == 0 {
		p.Categories = def.Categories
	}
	if p.DefaultBufferSize == 0 {
		p.DefaultBufferSize = def.DefaultBufferSize
	}
	if p.BlockSize == 0 {
		p.BlockSize = def.BlockSize
	}
	if p.HighFrequencyThresholdPerSecond == 0 {
		p.HighFrequencyThresholdPerSecond = def.HighFrequencyThresholdPerSecond
	}
	if p.SnapshotBufferSize == 0 {
		p.SnapshotBufferSize = def.SnapshotBufferSize
	}
	if p.ConsoleBufferSize == 0 {
		p.ConsoleBufferSize = def.ConsoleBufferSize
	}
	if p.OversizeReleaseDeadline <= 0 {
		p.OversizeReleaseDeadline = def.OversizeReleaseDeadline
	}
	if p.GroupGCTTL <= 0 {
		p.GroupGCTTL = def.GroupGCTTL
	}
	if p.MaxChunkSize == 0 {
		p.MaxChunkSize = def.MaxChunkSize
	}
	if p.OversizeThreshold == 0 {
		p.OversizeThreshold = def.OversizeThreshold
	}
	return p
}

// Options carries construction-time collaborators with sensible
// zero-value defaults: a logger, a metrics observer, and the sinks
// ForceFlush delivers committed entries to.
type Options struct {
	Logger   interfaces.Logger
	Observer interfaces.Observer
	Sinks    []interfaces.Sink
}

// LogBuffer is a single named MPSC log buffer: the ring core, an
// optional mmap-backed recovery file, the snapshot and console mirrors,
// and registration with the process-wide manager so ForceFlushAll can
// reach it by name.
type LogBuffer struct {
	name string

	core    *ring.Buffer
	mf      *mmapfile.MappedFile
	snap    *snapshot.Ring
	console *console.Fanout
	metrics *Metrics
	logger  interfaces.Logger
	sinks   []interfaces.Sink

	categories  []string
	categoryIdx map[string]uint32

	recovered bool

	mu     sync.Mutex
	closed bool
}

// CreateLogBuffer builds a LogBuffer from params, opening (or creating)
// the recovery file first when NeedRecovery is set, then wiring the
// result into the ring core, the snapshot and console mirrors, and the
// process-wide manager registry.
func CreateLogBuffer(params BufferParams, opts *Options) (*LogBuffer, error) {
	if params.LogName == "" {
		return nil, NewError("CreateLogBuffer", ErrCodeInvalidParams, "log_name is required")
	}
	params = params.normalized()

	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := NewMetrics()
	observer := opts.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	blockCount := params.DefaultBufferSize / params.BlockSize
	if blockCount < MinBufferBlocks {
		blockCount = MinBufferBlocks
	}
	for blockCount&(blockCount-1) != 0 {
		blockCount += blockCount & -blockCount
	}
	geom := mmapfile.Geometry{
		BlockSize:   params.BlockSize,
		TotalBlocks: blockCount,
		Categories:  params.Categories,
	}

	var mf *mmapfile.MappedFile
	var recovered bool
	if params.NeedRecovery {
		baseDir := params.BaseDir
		if baseDir == "" {
			baseDir = "."
		}
		var err error
		mf, recovered, err = mmapfile.OpenOrCreate(baseDir, params.LogName, geom)
		if err != nil {
			return nil, WrapError("CreateLogBuffer", err)
		}
	}

	ringParams := ring.Params{
		BlockSize:           params.BlockSize,
		BlockCount:          blockCount,
		Policy:              params.Policy,
		MaxChunkSize:        params.MaxChunkSize,
		OversizeThreshold:   params.OversizeThreshold,
		OversizeDeadline:    params.OversizeReleaseDeadline,
		GroupGCTTL:          params.GroupGCTTL,
		HighFrequencyPerSec: params.HighFrequencyThresholdPerSecond,
		Observer:            observer,
		Logger:              logger,
	}
	if mf != nil {
		ringParams.BackingStore = mf.BlockArray()
		ringParams.Recovered = recovered
	}

	core, err := ring.New(ringParams)
	if err != nil {
		if mf != nil {
			_ = mf.Close()
		}
		return nil, WrapError("CreateLogBuffer", err)
	}

	categoryIdx := make(map[string]uint32, len(params.Categories))
	for i, name := range params.Categories {
		categoryIdx[name] = uint32(i)
	}

	lb := &LogBuffer{
		name:        params.LogName,
		core:        core,
		mf:          mf,
		snap:        snapshot.New(params.SnapshotBufferSize),
		console:     console.NewFanout(params.ConsoleBufferSize),
		metrics:     metrics,
		logger:      logger,
		sinks:       opts.Sinks,
		categories:  append([]string(nil), params.Categories...),
		categoryIdx: categoryIdx,
		recovered:   recovered,
	}

	if err := manager.Default.Register(params.LogName, lb); err != nil {
		_ = core.Close()
		if mf != nil {
			_ = mf.Close()
		}
		return nil, WrapError("CreateLogBuffer", err)
	}

	return lb, nil
}

// Name returns the buffer's registered log name.
func (b *LogBuffer) Name() string { return b.name }

// Recovered reports whether this buffer resumed from a prior process's
// recovery file rather than starting from a clean backing store.
func (b *LogBuffer) Recovered() bool { return b.recovered }

// Metrics returns a point-in-time snapshot of this buffer's operational
// counters.
func (b *LogBuffer) Metrics() MetricsSnapshot { return b.metrics.Snapshot() }

// CategoryIndex resolves a category name to the index baked into the
// recovery header's checksum at construction time; producers use it to
// build a wire.Head via NewHead before writing into a reserved chunk.
func (b *LogBuffer) CategoryIndex(category string) (uint32, error) {
	idx, ok := b.categoryIdx[category]
	if !ok {
		return 0, NewBufferError("CategoryIndex", b.name, ErrCodeInvalidParams, fmt.Sprintf("unregistered category %q", category))
	}
	return idx, nil
}

func (b *LogBuffer) categoryName(idx uint32) string {
	if int(idx) < len(b.categories) {
		return b.categories[idx]
	}
	return "unknown"
}

// producerIDKey is the context key AllocWriteChunk reads to find a
// caller-assigned producer identity. Go has no public thread-local
// storage, so the write-group key TLS would normally supply is instead
// threaded explicitly through the context a producer goroutine already
// carries.
type producerIDKey struct{}

// WithProducerID attaches id as the producer identity used by
// AllocWriteChunk calls made with the returned context. Concurrent
// producers that want independent write groups (rather than sharing and
// serializing through producer 0's group) must set this once per
// goroutine.
func WithProducerID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, producerIDKey{}, id)
}

func producerIDFromContext(ctx context.Context) uint64 {
	if v, ok := ctx.Value(producerIDKey{}).(uint64); ok {
		return v
	}
	return 0
}

// NewHead builds the fixed wire head for a log entry in category,
// resolving the category name to its table index. Callers write this
// head (via wire.EncodeHead) into the front of a chunk reserved with
// AllocWriteChunk, followed by the format string and its wire-encoded
// arguments.
func (b *LogBuffer) NewHead(ctx context.Context, category string, level uint8, epochMs uint64, formatStrLen uint32, kind wire.FormatKind) (wire.Head, error) {
	idx, err := b.CategoryIndex(category)
	if err != nil {
		return wire.Head{}, err
	}
	return wire.Head{
		CategoryIndex: idx,
		Level:         level,
		ThreadID:      producerIDFromContext(ctx),
		EpochMs:       epochMs,
		FormatKind:    kind,
		FormatStrLen:  formatStrLen,
	}, nil
}

// AllocWriteChunk reserves size bytes for a new log entry, serving it
// from the main block array (or, above the oversize threshold, from the
// heap-backed oversize allocator). The producer identity is taken from
// ctx (see WithProducerID); callers that never set one share producer 0.
func (b *LogBuffer) AllocWriteChunk(ctx context.Context, size uint32, epochMs uint64) (Chunk, Result, error) {
	producerID := producerIDFromContext(ctx)
	c, result, err := b.core.AllocWriteChunk(ctx, producerID, size, epochMs)
	if err != nil {
		return c, result, WrapError("AllocWriteChunk", err)
	}
	return c, result, nil
}

// CommitWriteChunk publishes a previously allocated chunk, making it
// visible to the consumer and mirroring it into the snapshot ring and
// console fan-out.
func (b *LogBuffer) CommitWriteChunk(c Chunk) error {
	if err := b.core.CommitWriteChunk(c); err != nil {
		return WrapError("CommitWriteChunk", err)
	}
	if entry, derr := ring.DecodeEntry(c); derr == nil {
		b.mirror(entry)
	}
	return nil
}

func (b *LogBuffer) mirror(entry Entry) {
	category := b.categoryName(entry.Head.CategoryIndex)
	formatLen := int(entry.Head.FormatStrLen)
	areaLen := wire.FormatStrAreaSize(entry.Head.FormatStrLen)
	if areaLen > len(entry.Body) || formatLen > areaLen {
		return
	}
	format := string(entry.Body[:formatLen])
	args := entry.Body[areaLen:]

	b.snap.Publish(category, entry.Head.EpochMs, entry.Head.Level, format, args)
	b.console.Publish(console.Message{
		Category: category,
		EpochMs:  entry.Head.EpochMs,
		Level:    entry.Head.Level,
		Text:     format,
	})
}

// ReadChunk returns the next committed chunk: pending oversize chunks
// first, then normal chunks in commit order. A zero
// Chunk (PayloadLen 0) with a nil error means the buffer is currently
// empty, not a failure.
func (b *LogBuffer) ReadChunk() (Chunk, error) {
	c, result, err := b.core.ReadChunk()
	if err != nil {
		return Chunk{}, WrapError("ReadChunk", err)
	}
	if result != ring.ResultOK {
		return Chunk{}, nil
	}
	return c, nil
}

// ReturnReadChunk releases a chunk the consumer has finished with back
// to the buffer for reclamation.
func (b *LogBuffer) ReturnReadChunk(c Chunk) error {
	if err := b.core.ReturnReadChunk(c); err != nil {
		return WrapError("ReturnReadChunk", err)
	}
	return nil
}

// DataTraverse visits every currently committed entry, stopping early if
// visit returns false. Traversal errors are logged rather than returned,
// matching the fire-and-forget signature of this operation.
func (b *LogBuffer) DataTraverse(visit func(Entry) bool) {
	if err := b.core.DataTraverse(visit); err != nil {
		b.logger.Errorf("data traverse on %q: %v", b.name, err)
	}
}

// GarbageCollect runs one maintenance sweep: reclaiming retired blocks,
// releasing expired oversize allocations, and rolling back abandoned
// write groups.
func (b *LogBuffer) GarbageCollect() {
	b.core.GarbageCollect()
}

// TakeSnapshot renders the current contents of the snapshot ring as
// human-readable text, formatting timestamps in tzHint (UTC if nil).
func (b *LogBuffer) TakeSnapshot(tzHint *time.Location) (string, error) {
	return b.snap.TakeSnapshot(tzHint)
}

// ForceFlush drains every currently committed entry to the buffer's
// registered sinks, mirroring each into the snapshot/console side
// channels as it goes, and returns once the buffer is empty or timeout
// elapses — whichever comes first. It satisfies interfaces.Flusher so
// internal/manager can call it without depending on *LogBuffer directly.
func (b *LogBuffer) ForceFlush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var flushErr error

	_ = b.core.DataTraverse(func(entry Entry) bool {
		if time.Now().After(deadline) {
			return false
		}
		b.mirror(entry)
		category := b.categoryName(entry.Head.CategoryIndex)
		for _, sink := range b.sinks {
			if err := sink.OnEntry(category, entry.Head.EpochMs, entry.Head.Level, entry.Body); err != nil && flushErr == nil {
				flushErr = err
			}
		}
		return true
	})

	for _, sink := range b.sinks {
		if err := sink.Flush(); err != nil && flushErr == nil {
			flushErr = err
		}
	}

	if flushErr != nil {
		return WrapError("ForceFlush", flushErr)
	}
	return nil
}

// ConsoleDrain fetches every message currently queued in the console
// fan-out and invokes its registered callbacks, returning how many
// messages were delivered.
func (b *LogBuffer) ConsoleDrain() int {
	return b.console.Drain()
}

// RegisterConsoleCallback registers cb to receive every message drained
// from the console fan-out, returning an unregister function.
func (b *LogBuffer) RegisterConsoleCallback(cb console.Callback) func() {
	return b.console.Register(cb)
}

// Close unregisters the buffer from the process-wide manager and
// releases its ring core and (if present) its recovery file.
func (b *LogBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	manager.Default.Unregister(b.name)
	b.metrics.Stop()

	err := b.core.Close()
	if b.mf != nil {
		if cerr := b.mf.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

var _ interfaces.Flusher = (*LogBuffer)(nil)
