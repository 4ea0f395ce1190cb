package audit

import "encoding/binary"

// xxHash32 constants, per the reference algorithm.
const (
	prime32_1 uint32 = 2654435761
	prime32_2 uint32 = 2246822519
	prime32_3 uint32 = 3266489917
	prime32_4 uint32 = 668265263
	prime32_5 uint32 = 374761393
)

func rotl32(x uint32, r uint) uint32 {
	return (x << r) | (x >> (32 - r))
}

// simplifiedXxHash32 computes a deliberately non-standard variant of
// xxHash32 (seed 0): it omits the four-lane accumulator used by the
// reference algorithm for inputs >= 16 bytes, always following the
// short-input path, and folds any trailing 1-3 bytes into a single
// packed little-endian word processed through the same 4-byte word
// step rather than byte-by-byte. This matches the source system's
// documented divergence and is not wire-compatible with a standard
// xxHash32 implementation for inputs of 16 bytes or more, or whose
// length is not a multiple of 4.
func simplifiedXxHash32(data []byte) uint32 {
	h := prime32_5 + uint32(len(data))

	i := 0
	for ; i+4 <= len(data); i += 4 {
		word := binary.LittleEndian.Uint32(data[i : i+4])
		h += word * prime32_3
		h = rotl32(h, 17) * prime32_4
	}

	if rem := len(data) - i; rem > 0 {
		var buf [4]byte
		copy(buf[:], data[i:])
		word := binary.LittleEndian.Uint32(buf[:])
		h += word * prime32_3
		h = rotl32(h, 17) * prime32_4
	}

	h ^= h >> 15
	h *= prime32_2
	h ^= h >> 13
	h *= prime32_3
	h ^= h >> 16
	return h
}
