package ggpk

import "encoding/binary"

// Murmur2 implements 32-bit MurmurHash2, the hash directory entries are keyed by.
func Murmur2(data []byte, seed uint32) uint32 {
	const (
		m = 0x5bd1e995
		r = 24
	)

	h := seed ^ uint32(len(data))

	remainder := len(data) & 3
	alignedLength := len(data) - remainder
	for i := 0; i < alignedLength; i += 4 {
		k := binary.LittleEndian.Uint32(data[i : i+4])

		k *= m
		k ^= k >> r
		k *= m

		h *= m
		h ^= k
	}

	switch remainder {
	case 3:
		h ^= uint32(data[alignedLength+2]) << 16
		fallthrough
	case 2:
		h ^= uint32(data[alignedLength+1]) << 8
		fallthrough
	case 1:
		h ^= uint32(data[alignedLength])
		h *= m
	}

	h ^= h >> 13
	h *= m
	h ^= h >> 15

	return h
}

// NameHash is the entry hash for name in a container of the given version.
func NameHash(name string, version uint32) uint32 {
	c := NewCodec(nil)
	c.SetVersion(version)
	return c.NameHash(name)
}
