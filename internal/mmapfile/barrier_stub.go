//go:build !linux || !cgo

package mmapfile

// Sfence is a no-op on platforms without the inline-asm fence: the
// header is written with plain stores and no fence is issued after it.
func Sfence() {}

// Mfence is a no-op for the same reason as Sfence.
func Mfence() {}
