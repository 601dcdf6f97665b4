package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Encoder writes a self-describing argument stream directly into a
// caller-supplied byte slice — typically the payload region of a
// producer's reserved chunk — performing no heap allocation per
// argument.
type Encoder struct {
	buf []byte
	off int
}

// NewEncoder wraps buf for sequential argument writes starting at
// offset 0.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

// Offset returns the number of bytes written so far.
func (e *Encoder) Offset() int { return e.off }

// Bytes returns the written prefix of the underlying buffer.
func (e *Encoder) Bytes() []byte { return e.buf[:e.off] }

func (e *Encoder) require(n int) {
	if e.off+n > len(e.buf) {
		panic(fmt.Sprintf("wire: encoder overflow: need %d more bytes, have %d", n, len(e.buf)-e.off))
	}
}

func (e *Encoder) writeScalarHeader(tag Tag) {
	e.require(4)
	e.buf[e.off] = byte(tag)
	e.buf[e.off+1] = 0
	e.buf[e.off+2] = 0
	e.buf[e.off+3] = 0
	e.off += 4
}

// WriteNull encodes the nullable-pointer / absent-value case: tag only,
// no value bytes.
func (e *Encoder) WriteNull() {
	e.writeScalarHeader(TagNull)
}

func (e *Encoder) WriteBool(v bool) {
	e.writeScalarHeader(TagBool)
	e.require(1)
	if v {
		e.buf[e.off] = 1
	} else {
		e.buf[e.off] = 0
	}
	e.off++
}

func (e *Encoder) WriteI8(v int8) {
	e.writeScalarHeader(TagI8)
	e.require(1)
	e.buf[e.off] = byte(v)
	e.off++
}

func (e *Encoder) WriteU8(v uint8) {
	e.writeScalarHeader(TagU8)
	e.require(1)
	e.buf[e.off] = v
	e.off++
}

func (e *Encoder) WriteI16(v int16) {
	e.writeScalarHeader(TagI16)
	e.require(2)
	binary.LittleEndian.PutUint16(e.buf[e.off:], uint16(v))
	e.off += 2
}

func (e *Encoder) WriteU16(v uint16) {
	e.writeScalarHeader(TagU16)
	e.require(2)
	binary.LittleEndian.PutUint16(e.buf[e.off:], v)
	e.off += 2
}

func (e *Encoder) WriteI32(v int32) {
	e.writeScalarHeader(TagI32)
	e.require(4)
	binary.LittleEndian.PutUint32(e.buf[e.off:], uint32(v))
	e.off += 4
}

func (e *Encoder) WriteU32(v uint32) {
	e.writeScalarHeader(TagU32)
	e.require(4)
	binary.LittleEndian.PutUint32(e.buf[e.off:], v)
	e.off += 4
}

func (e *Encoder) WriteI64(v int64) {
	e.writeScalarHeader(TagI64)
	e.require(8)
	binary.LittleEndian.PutUint64(e.buf[e.off:], uint64(v))
	e.off += 8
}

func (e *Encoder) WriteU64(v uint64) {
	e.writeScalarHeader(TagU64)
	e.require(8)
	binary.LittleEndian.PutUint64(e.buf[e.off:], v)
	e.off += 8
}

func (e *Encoder) WriteF32(v float32) {
	e.writeScalarHeader(TagF32)
	e.require(4)
	binary.LittleEndian.PutUint32(e.buf[e.off:], math.Float32bits(v))
	e.off += 4
}

func (e *Encoder) WriteF64(v float64) {
	e.writeScalarHeader(TagF64)
	e.require(8)
	binary.LittleEndian.PutUint64(e.buf[e.off:], math.Float64bits(v))
	e.off += 8
}

// WriteRawPointer encodes an opaque address; the consumer never
// dereferences it, only displays it.
func (e *Encoder) WriteRawPointer(addr uint64) {
	e.writeScalarHeader(TagRawPointer)
	e.require(8)
	binary.LittleEndian.PutUint64(e.buf[e.off:], addr)
	e.off += 8
}

// WriteEnumInt encodes an enum's underlying integer value for the
// consumer to map back to a name using out-of-band metadata.
func (e *Encoder) WriteEnumInt(v int32) {
	e.writeScalarHeader(TagEnumInt)
	e.require(4)
	binary.LittleEndian.PutUint32(e.buf[e.off:], uint32(v))
	e.off += 4
}

// writeVariableHeader writes tag + 4-byte length, with no extra padding
// (the literal framing rule: "variable-length tags are followed by a
// 4-byte length then the bytes, padded to 4").
func (e *Encoder) writeVariableHeader(tag Tag, length int) {
	e.require(5)
	e.buf[e.off] = byte(tag)
	binary.LittleEndian.PutUint32(e.buf[e.off+1:], uint32(length))
	e.off += 5
}

// writePad zeroes the (align4(n) - n) padding bytes at the current
// offset and advances past them. Callers must have already advanced
// e.off past the n data bytes before calling this.
func (e *Encoder) writePad(n int) {
	pad := align4(n) - n
	if pad == 0 {
		return
	}
	e.require(pad)
	for i := 0; i < pad; i++ {
		e.buf[e.off+i] = 0
	}
	e.off += pad
}

// WriteUTF8String encodes a UTF-8 byte string with a fused copy+hash: the
// bytes are copied into the chunk and their xxhash64 digest computed in
// the same pass, stored alongside the length so a consumer can
// deduplicate format strings or detect corruption without re-scanning.
func (e *Encoder) WriteUTF8String(s string) {
	e.writeVariableHeader(TagUTF8String, len(s))
	e.require(8)
	hashOff := e.off
	e.off += 8
	bytesOff := e.off
	e.require(len(s))
	digest := CopyWithHash(e.buf[bytesOff:bytesOff+len(s)], []byte(s))
	binary.LittleEndian.PutUint64(e.buf[hashOff:], digest)
	e.off += len(s)
	e.writePad(len(s))
}

// WriteUTF32String encodes a string as little-endian UTF-32 code points
// (runes), hashed over the encoded bytes the same way WriteUTF8String
// hashes raw bytes.
func (e *Encoder) WriteUTF32String(s string) {
	runes := []rune(s)
	raw := make([]byte, 4*len(runes))
	for i, r := range runes {
		binary.LittleEndian.PutUint32(raw[i*4:], uint32(r))
	}
	e.writeVariableHeader(TagUTF32String, len(raw))
	e.require(8)
	hashOff := e.off
	e.off += 8
	bytesOff := e.off
	e.require(len(raw))
	digest := CopyWithHash(e.buf[bytesOff:bytesOff+len(raw)], raw)
	binary.LittleEndian.PutUint64(e.buf[hashOff:], digest)
	e.off += len(raw)
	e.writePad(len(raw))
}

// WriteUTF16String encodes s as plain little-endian UTF-16 code units
// (marker utf16MarkerPlain).
func (e *Encoder) WriteUTF16String(s string) {
	e.writeUTF16(s, false)
}

// WriteUTF16StringCompact encodes s using the mixed ASCII+UTF-16 scheme:
// any ASCII-only prefix is collapsed to one byte per character, with a
// marker byte distinguishing the two halves, to save bandwidth on
// messages that are mostly ASCII with a non-ASCII tail.
func (e *Encoder) WriteUTF16StringCompact(s string) {
	e.writeUTF16(s, true)
}

func (e *Encoder) writeUTF16(s string, compact bool) {
	units := utf16.Encode([]rune(s))

	asciiLen := 0
	if compact {
		for asciiLen < len(units) && units[asciiLen] < 0x80 {
			asciiLen++
		}
	}

	var raw []byte
	var marker utf16Marker
	if asciiLen == 0 {
		marker = utf16MarkerPlain
		raw = make([]byte, 2*len(units))
		for i, u := range units {
			binary.LittleEndian.PutUint16(raw[i*2:], u)
		}
	} else {
		marker = utf16MarkerMixed
		rest := units[asciiLen:]
		raw = make([]byte, 1+4+asciiLen+2*len(rest))
		raw[0] = byte(marker)
		binary.LittleEndian.PutUint32(raw[1:5], uint32(asciiLen))
		for i := 0; i < asciiLen; i++ {
			raw[5+i] = byte(units[i])
		}
		tail := raw[5+asciiLen:]
		for i, u := range rest {
			binary.LittleEndian.PutUint16(tail[i*2:], u)
		}
	}

	if marker == utf16MarkerPlain {
		// Prepend the marker byte for the plain path too, so the decoder
		// can always branch on raw[0] before anything else.
		withMarker := make([]byte, 1+len(raw))
		withMarker[0] = byte(utf16MarkerPlain)
		copy(withMarker[1:], raw)
		raw = withMarker
	}

	e.writeVariableHeader(TagUTF16String, len(raw))
	e.require(8)
	hashOff := e.off
	e.off += 8
	bytesOff := e.off
	e.require(len(raw))
	digest := CopyWithHash(e.buf[bytesOff:bytesOff+len(raw)], raw)
	binary.LittleEndian.PutUint64(e.buf[hashOff:], digest)
	e.off += len(raw)
	e.writePad(len(raw))
}

// customKind distinguishes the two blob encodings WriteCustomFormatted
// accepts.
type customKind uint8

const (
	CustomUTF8  customKind = 0
	CustomUTF16 customKind = 1
)

// WriteCustomFormatted writes a caller-pre-rendered blob verbatim (no
// hash, matching the literal "the payload carries the final text and its
// length"), tagged with which encoding the bytes are in.
func (e *Encoder) WriteCustomFormatted(kind customKind, text []byte) {
	e.writeVariableHeader(TagCustomFormatted, 4+len(text))
	e.require(4)
	e.buf[e.off] = byte(kind)
	e.buf[e.off+1] = 0
	e.buf[e.off+2] = 0
	e.buf[e.off+3] = 0
	e.off += 4
	bytesOff := e.off
	e.require(len(text))
	copy(e.buf[bytesOff:], text)
	e.off += len(text)
	e.writePad(len(text))
}

// EncodedLenUTF8 reports how many bytes encoding s as UTF-8 would occupy,
// used by callers sizing an alloc_write_chunk request before the data is
// actually written.
func EncodedLenUTF8(s string) int {
	return 5 + 8 + align4(len(s))
}

