// Package wire implements the zero-copy, self-describing argument
// encoding written directly into a producer's reserved chunk: a 1-byte
// type tag per argument, scalar values padded to 4-byte alignment,
// variable-length values carrying an explicit length and padded to a
// 4-byte boundary so the consumer can advance without consulting the
// format string.
package wire

// Tag identifies the wire representation of one encoded argument.
type Tag uint8

const (
	TagNull Tag = iota
	TagBool
	TagI8
	TagU8
	TagI16
	TagU16
	TagI32
	TagU32
	TagI64
	TagU64
	TagF32
	TagF64
	TagUTF8String
	TagUTF16String
	TagUTF32String
	TagRawPointer
	TagEnumInt
	TagCustomFormatted
)

// scalarWidths gives the little-endian value width, in bytes, following
// the 3-byte pad for every fixed-size tag. Variable-length tags are not
// present here; callers must branch on IsVariableLength first.
var scalarWidths = map[Tag]int{
	TagNull:       0,
	TagBool:       1,
	TagI8:         1,
	TagU8:         1,
	TagI16:        2,
	TagU16:        2,
	TagI32:        4,
	TagU32:        4,
	TagI64:        8,
	TagU64:        8,
	TagF32:        4,
	TagF64:        8,
	TagRawPointer: 8,
	TagEnumInt:    4,
}

// IsVariableLength reports whether tag's payload is a 4-byte length
// followed by that many (4-byte padded) bytes, as opposed to a fixed
// scalar width.
func IsVariableLength(tag Tag) bool {
	switch tag {
	case TagUTF8String, TagUTF16String, TagUTF32String, TagCustomFormatted:
		return true
	default:
		return false
	}
}

// ScalarWidth returns the little-endian value width for a fixed-size
// tag (0 for TagNull, which carries no value after its padded tag), and
// ok=false for variable-length or unknown tags.
func ScalarWidth(tag Tag) (width int, ok bool) {
	w, ok := scalarWidths[tag]
	return w, ok
}

// align4 rounds n up to the next multiple of 4.
func align4(n int) int {
	return (n + 3) &^ 3
}

// utf16Marker distinguishes the two permitted encodings of a
// TagUTF16String payload: a plain sequence of little-endian UTF-16 code
// units, or a compact encoding with an ASCII-only prefix collapsed to
// one byte per character.
type utf16Marker uint8

const (
	utf16MarkerPlain  utf16Marker = 0
	utf16MarkerMixed  utf16Marker = 1
)
