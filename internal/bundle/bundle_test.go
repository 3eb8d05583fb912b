package bundle_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/ggpktool/internal/bundle"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"one block", 1000},
		{"exact block", bundle.DefaultGranularity},
		{"several blocks", bundle.DefaultGranularity*2 + 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := make([]byte, tt.size)
			for i := range payload {
				payload[i] = byte(i * 7)
			}

			raw := bundle.Encode(payload)
			blocks := (tt.size + bundle.DefaultGranularity - 1) / bundle.DefaultGranularity
			assert.Len(t, raw, 60+4*blocks+tt.size)
			assert.Equal(t, uint32(bundle.CompressorNone), binary.LittleEndian.Uint32(raw[12:]))
			assert.Equal(t, uint32(blocks*4+48), binary.LittleEndian.Uint32(raw[8:]))

			got, err := bundle.Decode(raw)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(payload, got))
		})
	}
}

func TestReaderReadAtSpansBlocks(t *testing.T) {
	payload := make([]byte, bundle.DefaultGranularity+100)
	for i := range payload {
		payload[i] = byte(i)
	}
	r, err := bundle.Open(bytes.NewReader(bundle.Encode(payload)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), r.Size())

	off := int64(bundle.DefaultGranularity - 10)
	p := make([]byte, 50)
	n, err := r.ReadAt(p, off)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, payload[off:off+50], p)

	_, err = r.ReadAt(make([]byte, 200), int64(len(payload)-100))
	assert.Error(t, err)
}

func TestOpenRejectsBadHead(t *testing.T) {
	raw := bundle.Encode([]byte("payload"))

	zeroGranularity := bytes.Clone(raw)
	binary.LittleEndian.PutUint32(zeroGranularity[40:], 0)
	_, err := bundle.Open(bytes.NewReader(zeroGranularity))
	assert.Error(t, err)

	wrongBlocks := bytes.Clone(raw)
	binary.LittleEndian.PutUint64(wrongBlocks[20:], uint64(bundle.DefaultGranularity*3))
	_, err = bundle.Open(bytes.NewReader(wrongBlocks))
	assert.Error(t, err)

	_, err = bundle.Open(bytes.NewReader(raw[:30]))
	assert.Error(t, err)
}

func TestPathHashes(t *testing.T) {
	tests := []struct {
		path        string
		murmur, fnv uint64
	}{
		{"Data/Mods.dat64", 0x091b0b71071156a0, 0x572679a36bf3f6b4},
		{"Art/Models/Tree.fbx", 0x9067c5b93c688ccd, 0x42cf355a69644a32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.murmur, bundle.MurmurHashPath(tt.path), tt.path)
		assert.Equal(t, tt.fnv, bundle.FNVHashPath(tt.path), tt.path)
	}
	assert.Equal(t, uint64(0), bundle.MurmurHash64A(nil, 0))
	assert.Equal(t, uint64(0x1e68d17c457bf117), bundle.MurmurHash64A([]byte("hello"), 0))

	assert.Equal(t, bundle.MurmurHashPath("Data/Mods.dat64"), bundle.MurmurHashPath("data/mods.dat64"))
	assert.Equal(t, bundle.FNVHashPath("Data/Mods.dat64"), bundle.FNVHashPath("DATA/MODS.DAT64"))
	assert.NotEqual(t, bundle.MurmurHashPath("data/mods.dat64"), bundle.FNVHashPath("data/mods.dat64"))
}
