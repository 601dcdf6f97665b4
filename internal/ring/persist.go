package ring

import (
	"encoding/binary"

	"github.com/ehrlich-b/bqlog/internal/block"
)

// persistedHeaderBytes is the on-disk mirror of a block's head, plus an
// 8-byte global commit sequence not present in the in-process atomic
// head: the packed status/blockCount/payloadLen word alone cannot order
// chunks across producers after a restart (no Go process state
// survives), so recovery needs an explicit, persisted total order. The
// commit sequence is written once, at the same time the in-memory head
// transitions to used, and is never consulted by the live hot path.
const persistedHeaderBytes = 16

// writePersistedHeader mirrors a block's head into the backing byte
// array (mmap'd when recovery is enabled) so a later process can read
// it back without any live Go state.
func writePersistedHeader(data []byte, blockIndex, blockSize uint32, status block.Status, blockCount, payloadLen uint32, commitSeq uint64) {
	off := int(blockIndex) * int(blockSize)
	word := uint64(status)<<56 | uint64(blockCount&0xFFFFFF)<<32 | uint64(payloadLen)
	binary.LittleEndian.PutUint64(data[off:off+8], word)
	binary.LittleEndian.PutUint64(data[off+8:off+16], commitSeq)
}

// readPersistedHeader is the inverse of writePersistedHeader, used only
// during the recovery walk.
func readPersistedHeader(data []byte, blockIndex, blockSize uint32) (status block.Status, blockCount, payloadLen uint32, commitSeq uint64) {
	off := int(blockIndex) * int(blockSize)
	word := binary.LittleEndian.Uint64(data[off : off+8])
	status = block.Status(word >> 56)
	blockCount = uint32(word>>32) & 0xFFFFFF
	payloadLen = uint32(word)
	commitSeq = binary.LittleEndian.Uint64(data[off+8 : off+16])
	return
}
