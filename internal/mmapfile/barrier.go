//go:build linux && cgo

package mmapfile

/*
#include <stdint.h>

// x86-64 store fence: all prior stores are globally visible before any
// subsequent store. Used after writing the header but before publishing
// the checksum, so a crash can never observe a checksum that validates a
// half-written geometry.
static inline void sfence_impl(void) {
    __asm__ __volatile__("sfence" ::: "memory");
}

// x86-64 full memory fence.
static inline void mfence_impl(void) {
    __asm__ __volatile__("mfence" ::: "memory");
}
*/
import "C"

// Sfence issues a store fence.
func Sfence() {
	C.sfence_impl()
}

// Mfence issues a full memory fence.
func Mfence() {
	C.mfence_impl()
}
