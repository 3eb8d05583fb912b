// Package ggpktest assembles small containers byte by byte for tests.
package ggpktest

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	encunicode "golang.org/x/text/encoding/unicode"

	"github.com/jchantrell/ggpktool/internal/ggpk"
)

// Child is a directory entry to write.
type Child struct {
	Name   string
	Offset int64
}

// Builder lays records out in the order they are added. The GGPK header is
// reserved at offset 0 and filled in by Bytes.
type Builder struct {
	buf bytes.Buffer
}

func New() *Builder {
	b := &Builder{}
	b.buf.Write(make([]byte, ggpk.HeaderRecordLength))
	return b
}

// Offset is where the next record will start.
func (b *Builder) Offset() int64 {
	return int64(b.buf.Len())
}

// At pads with zeros up to offset.
func (b *Builder) At(offset int64) *Builder {
	if pad := offset - b.Offset(); pad > 0 {
		b.buf.Write(make([]byte, pad))
	}
	return b
}

func encodeName(name string) []byte {
	enc, err := encunicode.UTF16(encunicode.LittleEndian, encunicode.IgnoreBOM).NewEncoder().Bytes([]byte(name))
	if err != nil {
		panic(err)
	}
	return append(enc, 0, 0)
}

func (b *Builder) put(v any) {
	binary.Write(&b.buf, binary.LittleEndian, v)
}

// File appends a FILE record and returns its offset.
func (b *Builder) File(name string, data []byte) int64 {
	offset := b.Offset()
	n := encodeName(name)
	b.put(uint32(ggpk.RecordHeaderSize + 4 + ggpk.HashSize + len(n) + len(data)))
	b.put(uint32(ggpk.FileRecordTag))
	b.put(uint32(len(n) / 2))
	sum := sha256.Sum256(data)
	b.buf.Write(sum[:])
	b.buf.Write(n)
	b.buf.Write(data)
	return offset
}

// Dir appends a PDIR record and returns its offset. Entry hashes are computed
// from the child names.
func (b *Builder) Dir(name string, children ...Child) int64 {
	offset := b.Offset()
	n := encodeName(name)
	b.put(uint32(ggpk.RecordHeaderSize + 4 + 4 + ggpk.HashSize + len(n) + 12*len(children)))
	b.put(uint32(ggpk.PDirRecordTag))
	b.put(uint32(len(n) / 2))
	b.put(uint32(len(children)))
	b.buf.Write(make([]byte, ggpk.HashSize))
	b.buf.Write(n)
	for _, c := range children {
		b.put(ggpk.NameHash(c.Name, 3))
		b.put(c.Offset)
	}
	return offset
}

// Free appends a FREE record of the given total length and returns its offset.
func (b *Builder) Free(length uint32, next int64) int64 {
	offset := b.Offset()
	b.put(length)
	b.put(uint32(ggpk.FreeRecordTag))
	b.put(next)
	b.buf.Write(make([]byte, int(length)-ggpk.MinFreeRecordLength))
	return offset
}

// Raw appends arbitrary bytes, such as a record with a bad tag.
func (b *Builder) Raw(p []byte) int64 {
	offset := b.Offset()
	b.buf.Write(p)
	return offset
}

// Bytes finishes the container with a version 3 header.
func (b *Builder) Bytes(root, firstFree int64) []byte {
	out := bytes.Clone(b.buf.Bytes())
	le := binary.LittleEndian
	le.PutUint32(out[0:], ggpk.HeaderRecordLength)
	le.PutUint32(out[4:], ggpk.GGPKRecordTag)
	le.PutUint32(out[8:], 3)
	le.PutUint64(out[12:], uint64(root))
	le.PutUint64(out[20:], uint64(firstFree))
	return out
}

// WriteFile writes the finished container into a temp dir and returns its path.
func (b *Builder) WriteFile(t testing.TB, root, firstFree int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Content.ggpk")
	require.NoError(t, os.WriteFile(path, b.Bytes(root, firstFree), 0o644))
	return path
}

// Open writes the container and opens it read-write, closing it at cleanup.
func (b *Builder) Open(t testing.TB, root, firstFree int64) (*ggpk.Container, string) {
	t.Helper()
	path := b.WriteFile(t, root, firstFree)
	c, err := ggpk.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, path
}
