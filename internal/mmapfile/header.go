package mmapfile

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/ehrlich-b/bqlog/internal/constants"
)

// GroupSeq is one row of the persistent per-write-group sequence table:
// the last committed sequence number a given thread had reached before
// the file was last closed, used on reopen to prune entries whose
// producing group's sequence is no longer contiguous.
type GroupSeq struct {
	ThreadID uint64
	LastSeq  uint64
}

const groupSeqBytes = 16

// Geometry is the configuration that must match between a recovery
// file's header and the buffer requesting to reopen it; any mismatch
// means the file is treated as fresh.
type Geometry struct {
	BlockSize   uint32
	TotalBlocks uint32
	Categories  []string
}

// Checksum hashes the geometry (block size, total blocks, and every
// category name) into a single value stored in the header.
func Checksum(g Geometry) uint64 {
	d := xxhash.New()
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], g.BlockSize)
	_, _ = d.Write(scratch[:])
	binary.LittleEndian.PutUint32(scratch[:], g.TotalBlocks)
	_, _ = d.Write(scratch[:])
	for _, name := range g.Categories {
		if len(name) > constants.MaxCategoryNameBytes {
			name = name[:constants.MaxCategoryNameBytes]
		}
		_, _ = d.WriteString(name)
		_, _ = d.Write([]byte{0}) // separator so "ab","c" != "a","bc"
	}
	return d.Sum64()
}

// headerFixedBytes is the size of the header up to, but not including,
// the group sequence table: magic(8) + version(4) + block_size(4) +
// total_blocks(4) + checksum(8).
const headerFixedBytes = 8 + 4 + 4 + 4 + 8

// HeaderBytes is the total on-disk header size, rounded by the caller up
// to a page boundary when sizing the backing file.
const HeaderBytes = headerFixedBytes + constants.MaxPersistedGroups*groupSeqBytes

// Header is the decoded form of the fixed header region.
type Header struct {
	Magic       uint64
	Version     uint32
	BlockSize   uint32
	TotalBlocks uint32
	Checksum    uint64
	Groups      [constants.MaxPersistedGroups]GroupSeq
}

// Encode writes h into buf[0:HeaderBytes].
func Encode(buf []byte, h Header) {
	_ = buf[HeaderBytes-1]
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.BlockSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.TotalBlocks)
	binary.LittleEndian.PutUint64(buf[20:28], h.Checksum)
	off := headerFixedBytes
	for i := range h.Groups {
		binary.LittleEndian.PutUint64(buf[off:off+8], h.Groups[i].ThreadID)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], h.Groups[i].LastSeq)
		off += groupSeqBytes
	}
}

// Decode reads a Header out of buf[0:HeaderBytes].
func Decode(buf []byte) Header {
	_ = buf[HeaderBytes-1]
	h := Header{
		Magic:       binary.LittleEndian.Uint64(buf[0:8]),
		Version:     binary.LittleEndian.Uint32(buf[8:12]),
		BlockSize:   binary.LittleEndian.Uint32(buf[12:16]),
		TotalBlocks: binary.LittleEndian.Uint32(buf[16:20]),
		Checksum:    binary.LittleEndian.Uint64(buf[20:28]),
	}
	off := headerFixedBytes
	for i := range h.Groups {
		h.Groups[i] = GroupSeq{
			ThreadID: binary.LittleEndian.Uint64(buf[off : off+8]),
			LastSeq:  binary.LittleEndian.Uint64(buf[off+8 : off+16]),
		}
		off += groupSeqBytes
	}
	return h
}

// Valid reports whether a decoded header matches the expected magic,
// version and geometry checksum. A mismatch at any of these means the
// file must be treated as fresh per the recovery rule.
func (h Header) Valid(geom Geometry) bool {
	return h.Magic == constants.MmapMagic &&
		h.Version == constants.MmapFormatVersion &&
		h.BlockSize == geom.BlockSize &&
		h.TotalBlocks == geom.TotalBlocks &&
		h.Checksum == Checksum(geom)
}
