// Package mmapfile implements the optional crash-survivable memory-map
// backing for a log buffer: a header (magic, geometry checksum,
// per-group sequence table) followed by the raw block array, both
// shared-mapped from a file when the platform supports it. On any
// failure to create or map that file, it silently falls back to
// anonymous memory — need_recovery becomes a no-op rather than an error,
// matching the "unsupported platform" policy.
package mmapfile

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/bqlog/internal/constants"
)

// MappedFile owns the header + block-array region, either shared-mapped
// from a file or backed by plain anonymous memory.
type MappedFile struct {
	path string
	file *os.File
	data []byte
	anon bool
}

func pageRoundUp(n int) int {
	page := os.Getpagesize()
	return (n + page - 1) / page * page
}

// TotalBytes returns the full mapped region size (header + block array)
// for a given geometry, rounded up to the page size.
func TotalBytes(geom Geometry) int {
	raw := pageRoundUp(HeaderBytes) + int(geom.TotalBlocks)*int(geom.BlockSize)
	return pageRoundUp(raw)
}

// OpenOrCreate opens (or creates) the recovery file for logName under
// baseDir, following the path convention
// {base_dir}/bqlog_mmap/mmap_{log_name}/{log_name}.mmap. It returns
// recovered=true when a pre-existing file's header matched geom exactly,
// meaning the block array's contents are meaningful and should be
// walked for replay; recovered=false means the header was just
// (re)written and the block array zeroed.
func OpenOrCreate(baseDir, logName string, geom Geometry) (mf *MappedFile, recovered bool, err error) {
	totalBytes := TotalBytes(geom)
	dir := filepath.Join(baseDir, constants.MmapDirName, "mmap_"+logName)
	path := filepath.Join(dir, logName+constants.MmapFileSuffix)

	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return newAnonymous(geom, totalBytes), false, nil
	}

	f, openErr := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if openErr != nil {
		return newAnonymous(geom, totalBytes), false, nil
	}

	info, statErr := f.Stat()
	preexisting := statErr == nil && info.Size() == int64(totalBytes)

	if truncErr := f.Truncate(int64(totalBytes)); truncErr != nil {
		_ = f.Close()
		return newAnonymous(geom, totalBytes), false, nil
	}

	data, mmapErr := unix.Mmap(int(f.Fd()), 0, totalBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if mmapErr != nil {
		_ = f.Close()
		return newAnonymous(geom, totalBytes), false, nil
	}

	mf = &MappedFile{path: path, file: f, data: data}

	if preexisting {
		hdr := Decode(mf.data[:HeaderBytes])
		if hdr.Valid(geom) {
			return mf, true, nil
		}
	}

	mf.initFresh(geom)
	return mf, false, nil
}

func newAnonymous(geom Geometry, totalBytes int) *MappedFile {
	mf := &MappedFile{data: make([]byte, totalBytes), anon: true}
	mf.initFresh(geom)
	return mf
}

func (mf *MappedFile) initFresh(geom Geometry) {
	h := Header{
		Magic:       constants.MmapMagic,
		Version:     constants.MmapFormatVersion,
		BlockSize:   geom.BlockSize,
		TotalBlocks: geom.TotalBlocks,
		Checksum:    Checksum(geom),
	}
	for i := HeaderBytes; i < len(mf.data); i++ {
		mf.data[i] = 0
	}
	Encode(mf.data[:HeaderBytes], h)
	Sfence()
}

// IsAnonymous reports whether this instance fell back to non-file-backed
// memory because file-backed mapping was unavailable.
func (mf *MappedFile) IsAnonymous() bool { return mf.anon }

// HeaderRegion returns the raw header bytes.
func (mf *MappedFile) HeaderRegion() []byte { return mf.data[:HeaderBytes] }

// BlockArray returns the raw bytes backing the block array, immediately
// following the header.
func (mf *MappedFile) BlockArray() []byte { return mf.data[HeaderBytes:] }

// SetGroupSeq records the last committed sequence number for threadID
// in the header's group table, reusing an existing slot for that thread
// or the first empty slot. If the table is full, the call is a no-op:
// the corresponding group simply will not be replay-pruned precisely on
// the next reopen, which is a bounded, documented degradation rather
// than an error.
func (mf *MappedFile) SetGroupSeq(threadID, seq uint64) {
	hdr := Decode(mf.HeaderRegion())
	idx := -1
	for i, g := range hdr.Groups {
		if g.ThreadID == threadID {
			idx = i
			break
		}
	}
	if idx == -1 {
		for i, g := range hdr.Groups {
			if g.ThreadID == 0 {
				idx = i
				break
			}
		}
	}
	if idx == -1 {
		return
	}
	hdr.Groups[idx] = GroupSeq{ThreadID: threadID, LastSeq: seq}
	Encode(mf.HeaderRegion(), hdr)
}

// GroupSeqs returns every non-empty row of the persistent group table.
func (mf *MappedFile) GroupSeqs() []GroupSeq {
	hdr := Decode(mf.HeaderRegion())
	out := make([]GroupSeq, 0, len(hdr.Groups))
	for _, g := range hdr.Groups {
		if g.ThreadID != 0 {
			out = append(out, g)
		}
	}
	return out
}

// Sync flushes the mapped region to its backing file. A no-op for an
// anonymous-memory fallback.
func (mf *MappedFile) Sync() error {
	if mf.anon {
		return nil
	}
	Mfence()
	return unix.Msync(mf.data, unix.MS_SYNC)
}

// Close unmaps the region and closes the backing file, if any.
func (mf *MappedFile) Close() error {
	if mf.anon {
		mf.data = nil
		return nil
	}
	err := unix.Munmap(mf.data)
	mf.data = nil
	if cerr := mf.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
