package wire

// SizeScalar returns the encoded size, in bytes, of a fixed-width
// argument: 4 bytes of tag+pad plus the scalar's value width.
func SizeScalar(tag Tag) int {
	width, _ := ScalarWidth(tag)
	return 4 + width
}

// SizeUTF8 returns the encoded size of a UTF-8 string argument of the
// given byte length: tag(1) + length(4) + hash(8) + payload, padded to 4.
func SizeUTF8(byteLen int) int {
	return 5 + 8 + align4(byteLen)
}

// SizeUTF32 returns the encoded size of a UTF-32 argument for a string
// with the given rune count.
func SizeUTF32(runeCount int) int {
	return 5 + 8 + align4(4*runeCount)
}

// SizeUTF16Plain returns the encoded size of a plain (non-compact)
// UTF-16 argument for the given UTF-16 code-unit count.
func SizeUTF16Plain(unitCount int) int {
	return 5 + 8 + align4(1+2*unitCount)
}

// SizeUTF16Compact returns the encoded size of a mixed ASCII+UTF-16
// argument given the ASCII-collapsed prefix length and the remaining
// code-unit count.
func SizeUTF16Compact(asciiLen, remainingUnits int) int {
	return 5 + 8 + align4(1+4+asciiLen+2*remainingUnits)
}

// SizeCustomFormatted returns the encoded size of a custom-formatted
// blob of the given byte length.
func SizeCustomFormatted(byteLen int) int {
	return 5 + 4 + align4(byteLen)
}
