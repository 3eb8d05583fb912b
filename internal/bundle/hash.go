package bundle

import (
	"encoding/binary"
	"hash/fnv"
	"strings"
)

// pathHashSeed is the MurmurHash64A seed of index path hashes.
const pathHashSeed = 0x1337b33f

// MurmurHash64A is the 64-bit MurmurHash2 variant. Indices written since
// 3.21.2 key their file records with it.
func MurmurHash64A(data []byte, seed uint64) uint64 {
	const (
		m = 0xc6a4a7935bd1e995
		r = 47
	)

	h := seed ^ (uint64(len(data)) * m)

	for len(data) >= 8 {
		k := binary.LittleEndian.Uint64(data)
		k *= m
		k ^= k >> r
		k *= m

		h ^= k
		h *= m
		data = data[8:]
	}

	if len(data) > 0 {
		for i := len(data) - 1; i >= 0; i-- {
			h ^= uint64(data[i]) << (8 * i)
		}
		h *= m
	}

	h ^= h >> r
	h *= m
	h ^= h >> r
	return h
}

// MurmurHashPath is the path hash of current indices.
func MurmurHashPath(path string) uint64 {
	return MurmurHash64A([]byte(strings.ToLower(path)), pathHashSeed)
}

// FNVHashPath is the path hash of indices older than 3.21.2: FNV-1a over the
// lowercased path with "++" appended.
func FNVHashPath(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(path) + "++"))
	return h.Sum64()
}

// pathHashes are tried in order when matching a path to a file record.
var pathHashes = []func(string) uint64{MurmurHashPath, FNVHashPath}

func (idx *Index) byPath(path string) (*FileRecord, bool) {
	for _, hash := range pathHashes {
		if fr, ok := idx.byHash[hash(path)]; ok {
			return fr, true
		}
	}
	return nil, false
}
