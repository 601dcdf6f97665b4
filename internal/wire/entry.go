package wire

import "encoding/binary"

// FormatKind distinguishes how the format string bytes following the
// fixed head are encoded.
type FormatKind uint8

const (
	FormatUTF8 FormatKind = iota
	FormatUTF16
)

// HeadSize is the fixed portion of a log entry: category index (u32),
// level (u8), thread id (u64), epoch ms (u64), format kind (u8), format
// string length (u32). Each single-byte field carries 3 bytes of
// alignment padding so every following field stays naturally aligned.
const HeadSize = 4 + 1 + 3 + 8 + 8 + 1 + 3 + 4

// Head is the fixed header every committed chunk begins with.
type Head struct {
	CategoryIndex uint32
	Level         uint8
	ThreadID      uint64
	EpochMs       uint64
	FormatKind    FormatKind
	FormatStrLen  uint32
}

// EncodeHead writes the fixed head into buf[0:HeadSize]. buf must be at
// least HeadSize bytes.
func EncodeHead(buf []byte, h Head) {
	_ = buf[HeadSize-1]
	binary.LittleEndian.PutUint32(buf[0:4], h.CategoryIndex)
	buf[4] = h.Level
	buf[5], buf[6], buf[7] = 0, 0, 0
	binary.LittleEndian.PutUint64(buf[8:16], h.ThreadID)
	binary.LittleEndian.PutUint64(buf[16:24], h.EpochMs)
	buf[24] = byte(h.FormatKind)
	buf[25], buf[26], buf[27] = 0, 0, 0
	binary.LittleEndian.PutUint32(buf[28:32], h.FormatStrLen)
}

// DecodeHead reads the fixed head from buf[0:HeadSize].
func DecodeHead(buf []byte) (Head, error) {
	if len(buf) < HeadSize {
		return Head{}, ErrTruncated
	}
	return Head{
		CategoryIndex: binary.LittleEndian.Uint32(buf[0:4]),
		Level:         buf[4],
		ThreadID:      binary.LittleEndian.Uint64(buf[8:16]),
		EpochMs:       binary.LittleEndian.Uint64(buf[16:24]),
		FormatKind:    FormatKind(buf[24]),
		FormatStrLen:  binary.LittleEndian.Uint32(buf[28:32]),
	}, nil
}

// FormatStrAreaSize returns the total bytes the format string occupies
// after the head, including alignment padding up to 4 bytes.
func FormatStrAreaSize(formatStrLen uint32) int {
	return align4(int(formatStrLen))
}

// EntryHeaderSize returns HeadSize plus the padded format string area,
// i.e. the offset at which the argument stream begins within a chunk.
func EntryHeaderSize(formatStrLen uint32) int {
	return HeadSize + FormatStrAreaSize(formatStrLen)
}
