package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	enc := NewEncoder(buf)
	enc.WriteNull()
	enc.WriteBool(true)
	enc.WriteI32(-22123)
	enc.WriteU64(42)
	enc.WriteF64(3.14)

	dec := NewDecoder(enc.Bytes())

	v, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, TagNull, v.Tag)

	v, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, TagBool, v.Tag)
	require.True(t, v.Bool)

	v, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, TagI32, v.Tag)
	require.EqualValues(t, -22123, v.I64)

	v, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, TagU64, v.Tag)
	require.EqualValues(t, 42, v.U64)

	v, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, TagF64, v.Tag)
	require.InDelta(t, 3.14, v.F64, 1e-9)

	require.True(t, dec.Done())
}

func TestUTF8StringRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	enc := NewEncoder(buf)
	enc.WriteUTF8String("abc")
	dec := NewDecoder(enc.Bytes())

	v, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, TagUTF8String, v.Tag)
	require.Equal(t, "abc", v.Str)
	require.Equal(t, HashOnly([]byte("abc")), v.Hash)
}

func TestUTF8EmptyStringHasNoBytesAndZeroLength(t *testing.T) {
	buf := make([]byte, 64)
	enc := NewEncoder(buf)
	enc.WriteUTF8String("")
	require.Equal(t, SizeUTF8(0), enc.Offset())

	dec := NewDecoder(enc.Bytes())
	v, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, "", v.Str)
}

func TestUTF16PlainRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	enc := NewEncoder(buf)
	enc.WriteUTF16String("utf16文本")
	dec := NewDecoder(enc.Bytes())

	v, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, TagUTF16String, v.Tag)
	require.Equal(t, "utf16文本", v.Str)
}

func TestUTF16CompactRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	enc := NewEncoder(buf)
	s := "prefix-ascii-then-非ASCII"
	enc.WriteUTF16StringCompact(s)
	dec := NewDecoder(enc.Bytes())

	v, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, s, v.Str)
}

func TestUTF32RoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	enc := NewEncoder(buf)
	s := "héllo世界"
	enc.WriteUTF32String(s)
	dec := NewDecoder(enc.Bytes())

	v, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, s, v.Str)
}

func TestCustomFormattedCarriesTextVerbatim(t *testing.T) {
	buf := make([]byte, 256)
	enc := NewEncoder(buf)
	enc.WriteCustomFormatted(CustomUTF8, []byte("pre-rendered"))
	dec := NewDecoder(enc.Bytes())

	v, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, TagCustomFormatted, v.Tag)
	require.Equal(t, CustomUTF8, v.CustomKind)
	require.Equal(t, []byte("pre-rendered"), v.Raw)
}

func TestFusedCopyWithHashMatchesIndependentHash(t *testing.T) {
	src := []byte("the quick brown fox jumps over the lazy dog")
	dst := make([]byte, len(src))

	digest := CopyWithHash(dst, src)
	require.Equal(t, HashOnly(src), digest)
	require.Equal(t, src, dst)
}

func TestEncodeHeadDecodeHeadRoundTrip(t *testing.T) {
	buf := make([]byte, HeadSize)
	h := Head{
		CategoryIndex: 7,
		Level:         2,
		ThreadID:      12345,
		EpochMs:       1690000000000,
		FormatKind:    FormatUTF8,
		FormatStrLen:  11,
	}
	EncodeHead(buf, h)

	got, err := DecodeHead(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestDecoderTruncatedStreamIsReported(t *testing.T) {
	buf := make([]byte, 256)
	enc := NewEncoder(buf)
	enc.WriteU32(7)
	truncated := enc.Bytes()[:enc.Offset()-1]

	dec := NewDecoder(truncated)
	_, err := dec.Next()
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeUTF16PayloadReplacesLoneSurrogate(t *testing.T) {
	// A lone high surrogate (0xD800) with no following low surrogate.
	payload := []byte{byte(utf16MarkerPlain), 0x00, 0xD8}
	s, err := DecodeUTF16Payload(payload)
	require.NoError(t, err)
	require.Contains(t, s, "�")
}
