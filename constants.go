package bqlog

import "github.com/ehrlich-b/bqlog/internal/constants"

// Re-exported tunables for callers that want the library defaults
// without reaching into internal/constants directly.
const (
	DefaultBlockSize               = constants.DefaultBlockSize
	DefaultBufferSize              = constants.DefaultBufferSize
	MinBufferBlocks                = constants.MinBufferBlocks
	DefaultOversizeThreshold       = constants.DefaultOversizeThreshold
	DefaultMaxChunkSize            = constants.DefaultMaxChunkSize
	DefaultSnapshotBufferSize      = constants.DefaultSnapshotBufferSize
	DefaultHighFrequencyThreshold  = constants.DefaultHighFrequencyThreshold
	DefaultGroupGCTTL              = constants.DefaultGroupGCTTL
	DefaultOversizeReleaseDeadline = constants.DefaultOversizeReleaseDeadline
)
