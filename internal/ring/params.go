package ring

import (
	"time"

	"github.com/ehrlich-b/bqlog/internal/constants"
	"github.com/ehrlich-b/bqlog/internal/interfaces"
)

// Policy selects what AllocWriteChunk does when the free list cannot
// satisfy a fresh run immediately.
type Policy uint8

const (
	// PolicyAutoExpand grows the buffer by allocating additional blocks
	// on the heap when the free list runs dry, at the cost of an
	// unbounded (if slow-growing) memory footprint.
	PolicyAutoExpand Policy = iota
	// PolicyBlockWhenFull makes producers wait (bounded by the caller's
	// context) for the consumer to free blocks instead of growing.
	PolicyBlockWhenFull
)

// Params configures a Buffer at construction time.
type Params struct {
	BlockSize   uint32
	BlockCount  uint32
	Policy      Policy
	MaxChunkSize        uint32
	OversizeThreshold   uint32
	OversizeDeadline    time.Duration
	GroupGCTTL          time.Duration
	HighFrequencyPerSec uint32

	// BackingStore, when non-nil, is used as the block array instead of
	// a freshly allocated slice — the caller supplies the mmap'd region
	// returned by mmapfile when recovery is enabled.
	BackingStore []byte
	// Recovered is true when BackingStore holds data from a prior
	// process and should be scanned for committed chunks rather than
	// zero-initialized.
	Recovered bool

	Observer interfaces.Observer
	Logger   interfaces.Logger
}

// DefaultParams returns the buffer configuration used when a caller
// supplies no overrides.
func DefaultParams() Params {
	return Params{
		BlockSize:           constants.DefaultBlockSize,
		BlockCount:          constants.DefaultBufferSize / constants.DefaultBlockSize,
		Policy:              PolicyAutoExpand,
		MaxChunkSize:        constants.DefaultMaxChunkSize,
		OversizeThreshold:   constants.DefaultOversizeThreshold,
		OversizeDeadline:    constants.DefaultOversizeReleaseDeadline,
		GroupGCTTL:          constants.DefaultGroupGCTTL,
		HighFrequencyPerSec: constants.DefaultHighFrequencyThreshold,
	}
}

func (p Params) normalized() Params {
	if p.BlockSize == 0 {
		p.BlockSize = constants.DefaultBlockSize
	}
	if p.BlockCount < constants.MinBufferBlocks {
		p.BlockCount = constants.MinBufferBlocks
	}
	if p.MaxChunkSize == 0 {
		p.MaxChunkSize = constants.DefaultMaxChunkSize
	}
	if p.OversizeThreshold == 0 {
		p.OversizeThreshold = constants.DefaultOversizeThreshold
	}
	if p.OversizeDeadline <= 0 {
		p.OversizeDeadline = constants.DefaultOversizeReleaseDeadline
	}
	if p.GroupGCTTL <= 0 {
		p.GroupGCTTL = constants.DefaultGroupGCTTL
	}
	if p.HighFrequencyPerSec == 0 {
		p.HighFrequencyPerSec = constants.DefaultHighFrequencyThreshold
	}
	return p
}
