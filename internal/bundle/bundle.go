package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/oriath-net/gooz"
)

// Compressor values stored in the bundle head.
const (
	CompressorKraken    = 8
	CompressorMermaid   = 9
	CompressorSelkie    = 11
	CompressorHydra     = 12
	CompressorLeviathan = 13

	// CompressorNone stores blocks verbatim.
	CompressorNone = 3
)

// DefaultGranularity is the uncompressed size of every block but the last.
const DefaultGranularity = 256 * 1024

type Reader struct {
	data        io.ReaderAt
	size        int64
	granularity int64 // size of each chunk of uncompressed data, usually 256KiB
	compressor  uint32
	blocks      []bundleBlock
}

// descriptions of compressed blocks relative to Reader.data
type bundleBlock struct {
	offset int64
	length int64
}

type bundleHead struct {
	UncompressedSize             uint32
	TotalPayloadSize             uint32
	HeadPayloadSize              uint32
	FirstFileEncode              uint32
	Unknown                      uint32
	UncompressedSize2            int64
	TotalPayloadSize2            int64
	BlockCount                   uint32
	UncompressedBlockGranularity uint32
	_                            [4]uint32
}

// headPayloadFixed is the part of HeadPayloadSize that does not depend on
// the block count.
const headPayloadFixed = 48

// Open parses a bundle head. Blocks are decompressed on demand by ReadAt.
func Open(r io.ReaderAt) (*Reader, error) {
	rs := io.NewSectionReader(r, 0, 1<<24)

	var bh bundleHead
	if err := binary.Read(rs, binary.LittleEndian, &bh); err != nil {
		return nil, fmt.Errorf("failed to read bundle head: %w", err)
	}
	if bh.BlockCount > 1<<20 {
		return nil, fmt.Errorf("unreasonable bundle block count %d", bh.BlockCount)
	}

	blockSizes := make([]uint32, bh.BlockCount)
	if err := binary.Read(rs, binary.LittleEndian, &blockSizes); err != nil {
		return nil, fmt.Errorf("failed to read bundle block sizes (BlockCount=%d): %w", bh.BlockCount, err)
	}

	blocks := make([]bundleBlock, bh.BlockCount)
	p := int64(binary.Size(bh) + binary.Size(blockSizes))
	for i := range blockSizes {
		sz := int64(blockSizes[i])
		blocks[i] = bundleBlock{offset: p, length: sz}
		p += sz
	}

	b := Reader{
		data:        r,
		size:        bh.UncompressedSize2,
		granularity: int64(bh.UncompressedBlockGranularity),
		compressor:  bh.FirstFileEncode,
		blocks:      blocks,
	}

	if b.granularity == 0 {
		return nil, fmt.Errorf("bundle granularity is 0")
	}
	if want := (b.size + b.granularity - 1) / b.granularity; want != int64(len(blocks)) {
		return nil, fmt.Errorf("got %d blocks of size %d for %d bytes data", len(blocks), b.granularity, b.size)
	}

	return &b, nil
}

func (b *Reader) Size() int64 {
	return b.size
}

func (b *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > b.size {
		return 0, fmt.Errorf("read of %d bytes at %d outside bundle of %d bytes", len(p), off, b.size)
	}

	block := make([]byte, b.granularity)

	n := 0
	for n < len(p) {
		i := int(off / b.granularity)
		within := int(off % b.granularity)

		rawSize := int(b.granularity)
		if i == len(b.blocks)-1 {
			rawSize = int(b.size - int64(i)*b.granularity)
		}

		stored := make([]byte, b.blocks[i].length)
		if _, err := b.data.ReadAt(stored, b.blocks[i].offset); err != nil {
			return n, fmt.Errorf("reading bundle block %d: %w", i, err)
		}

		if b.compressor == CompressorNone {
			if len(stored) != rawSize {
				return n, fmt.Errorf("stored block %d holds %d bytes, expected %d", i, len(stored), rawSize)
			}
			copy(block, stored)
		} else if _, err := gooz.Decompress(stored, block[:rawSize]); err != nil {
			return n, fmt.Errorf("decompressing block %d: %w", i, err)
		}

		copied := copy(p[n:], block[within:rawSize])
		n += copied
		off += int64(copied)
	}

	return n, nil
}

// Read decompresses the whole payload.
func (b *Reader) Read() ([]byte, error) {
	data := make([]byte, b.size)
	if _, err := b.ReadAt(data, 0); err != nil {
		return nil, err
	}
	return data, nil
}

// Decode decompresses a whole bundle held in memory.
func Decode(raw []byte) ([]byte, error) {
	r, err := Open(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return r.Read()
}

// Encode packs payload into a bundle. Blocks are stored with CompressorNone;
// there is no Oodle encoder to produce anything else.
func Encode(payload []byte) []byte {
	blockCount := (len(payload) + DefaultGranularity - 1) / DefaultGranularity

	bh := bundleHead{
		UncompressedSize:             uint32(len(payload)),
		TotalPayloadSize:             uint32(len(payload)),
		HeadPayloadSize:              uint32(blockCount*4 + headPayloadFixed),
		FirstFileEncode:              CompressorNone,
		Unknown:                      1,
		UncompressedSize2:            int64(len(payload)),
		TotalPayloadSize2:            int64(len(payload)),
		BlockCount:                   uint32(blockCount),
		UncompressedBlockGranularity: DefaultGranularity,
	}

	var buf bytes.Buffer
	buf.Grow(binary.Size(bh) + blockCount*4 + len(payload))
	binary.Write(&buf, binary.LittleEndian, &bh)
	for i := 0; i < blockCount; i++ {
		size := DefaultGranularity
		if i == blockCount-1 {
			size = len(payload) - i*DefaultGranularity
		}
		binary.Write(&buf, binary.LittleEndian, uint32(size))
	}
	buf.Write(payload)
	return buf.Bytes()
}
