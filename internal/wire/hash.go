package wire

import "github.com/cespare/xxhash/v2"

// CopyWithHash copies src into dst and returns the xxhash64 digest of
// src, computed in the same pass so string arguments never make a
// separate hashing sweep over bytes already being copied into the
// reserved chunk. dst must have length >= len(src).
func CopyWithHash(dst, src []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write(src) // xxhash.Digest.Write never errors
	copy(dst, src)
	return d.Sum64()
}

// HashOnly returns the xxhash64 digest of src without copying, used by
// tests to check CopyWithHash against an independent computation.
func HashOnly(src []byte) uint64 {
	return xxhash.Sum64(src)
}
