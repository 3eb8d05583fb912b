// Package bundletest assembles bundle indices for tests.
package bundletest

import (
	"bytes"
	"encoding/binary"

	"github.com/jchantrell/ggpktool/internal/bundle"
)

// File is one manifest entry.
type File struct {
	Path   string
	Bundle int
	Offset int32
	Size   int32

	// LegacyHash hashes the path with FNV1a instead of MurmurHash64A.
	LegacyHash bool
}

// Bundle is one manifest bundle.
type Bundle struct {
	Path             string
	UncompressedSize int32
}

// Index describes an index payload. All file paths are listed in a single
// path representation block.
type Index struct {
	Bundles []Bundle
	Files   []File
}

// Payload encodes the decompressed index.
func (ix Index) Payload() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	put := func(v any) { binary.Write(&buf, le, v) }

	put(int32(len(ix.Bundles)))
	for _, b := range ix.Bundles {
		put(int32(len(b.Path)))
		buf.WriteString(b.Path)
		put(b.UncompressedSize)
	}

	var pathSpec bytes.Buffer
	put(int32(len(ix.Files)))
	for _, f := range ix.Files {
		hash := bundle.MurmurHashPath(f.Path)
		if f.LegacyHash {
			hash = bundle.FNVHashPath(f.Path)
		}
		put(hash)
		put(int32(f.Bundle))
		put(f.Offset)
		put(f.Size)

		binary.Write(&pathSpec, le, uint32(1))
		pathSpec.WriteString(f.Path)
		pathSpec.WriteByte(0)
	}

	put(int32(1))
	put(uint64(0x2B1D0C0A))
	put(int32(0))
	put(int32(pathSpec.Len()))
	put(int32(pathSpec.Len()))

	buf.Write(bundle.Encode(pathSpec.Bytes()))
	return buf.Bytes()
}

// Bytes encodes the index as an _.index.bin bundle.
func (ix Index) Bytes() []byte {
	return bundle.Encode(ix.Payload())
}
