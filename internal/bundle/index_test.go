package bundle_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/ggpktool/internal/bundle"
	"github.com/jchantrell/ggpktool/internal/bundle/bundletest"
)

func sampleIndex() bundletest.Index {
	return bundletest.Index{
		Bundles: []bundletest.Bundle{
			{Path: "Data/Data", UncompressedSize: 300},
			{Path: "Art/Textures", UncompressedSize: 100},
			{Path: "Art/Models", UncompressedSize: 100},
		},
		Files: []bundletest.File{
			{Path: "Data/Mods.dat64", Bundle: 0, Offset: 0, Size: 200},
			{Path: "Data/Stats.dat64", Bundle: 0, Offset: 200, Size: 100},
			{Path: "Art/2DArt/Icon.dds", Bundle: 1, Offset: 0, Size: 100},
			{Path: "Art/Models/Tree.fbx", Bundle: 2, Offset: 0, Size: 100, LegacyHash: true},
		},
	}
}

func TestParseResolvesPaths(t *testing.T) {
	idx, err := bundle.Load(sampleIndex().Bytes())
	require.NoError(t, err)

	require.Len(t, idx.Bundles, 3)
	assert.Equal(t, "Data/Data.bundle.bin", idx.Bundles[0].FileName())
	require.Len(t, idx.Files, 4)
	require.Len(t, idx.Directories, 1)

	var paths []string
	for _, f := range idx.Paths() {
		paths = append(paths, f.Path)
		assert.Same(t, idx.Directories[0], f.Directory)
	}
	assert.Equal(t, []string{
		"Art/2DArt/Icon.dds",
		"Art/Models/Tree.fbx",
		"Data/Mods.dat64",
		"Data/Stats.dat64",
	}, paths)

	f, ok := idx.FileByPath("Data/Stats.dat64")
	require.True(t, ok)
	assert.Equal(t, int32(200), f.Offset)
	assert.Equal(t, int32(100), f.Size)
	assert.Same(t, idx.Bundles[0], f.Bundle)

	legacy, ok := idx.FileByPath("Art/Models/Tree.fbx")
	require.True(t, ok)
	assert.Equal(t, bundle.FNVHashPath("Art/Models/Tree.fbx"), legacy.PathHash)

	_, ok = idx.FileByPath("Data/Missing.dat64")
	assert.False(t, ok)
}

func TestSmallestBundlePrefersLowerIndexOnTie(t *testing.T) {
	idx, err := bundle.Load(sampleIndex().Bytes())
	require.NoError(t, err)

	smallest := idx.SmallestBundle()
	require.NotNil(t, smallest)
	assert.Equal(t, "Art/Textures", smallest.Path)

	idx.Bundles[1].UncompressedSize = 500
	assert.Equal(t, "Art/Models", idx.SmallestBundle().Path)
}

func TestSerializeRoundTrip(t *testing.T) {
	payload := sampleIndex().Payload()
	idx, err := bundle.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, idx.Serialize())

	f, ok := idx.FileByPath("Data/Mods.dat64")
	require.True(t, ok)
	f.Bundle = idx.Bundles[2]
	f.Offset = 100
	idx.Bundles[2].UncompressedSize = 300

	reloaded, err := bundle.Load(idx.Save())
	require.NoError(t, err)
	moved, ok := reloaded.FileByPath("Data/Mods.dat64")
	require.True(t, ok)
	assert.Equal(t, 2, moved.Bundle.Index)
	assert.Equal(t, int32(100), moved.Offset)
	assert.Equal(t, int32(300), reloaded.Bundles[2].UncompressedSize)
}

func TestBundleByPath(t *testing.T) {
	idx, err := bundle.Load(sampleIndex().Bytes())
	require.NoError(t, err)

	b, ok := idx.BundleByPath("art/models")
	require.True(t, ok)
	assert.Equal(t, 2, b.Index)
	_, ok = idx.BundleByPath("Art")
	assert.False(t, ok)
}

func TestParseRejectsMalformed(t *testing.T) {
	payload := sampleIndex().Payload()

	t.Run("truncated", func(t *testing.T) {
		_, err := bundle.Parse(payload[:40])
		assert.ErrorIs(t, err, bundle.ErrMalformedIndex)
	})

	t.Run("negative count", func(t *testing.T) {
		bad := bytes.Clone(payload)
		binary.LittleEndian.PutUint32(bad, 0xFFFFFFFF)
		_, err := bundle.Parse(bad)
		assert.ErrorIs(t, err, bundle.ErrMalformedIndex)
	})

	t.Run("bundle out of range", func(t *testing.T) {
		ix := sampleIndex()
		ix.Files[0].Bundle = 9
		_, err := bundle.Parse(ix.Payload())
		assert.ErrorIs(t, err, bundle.ErrMalformedIndex)
	})

	t.Run("duplicate hash", func(t *testing.T) {
		ix := sampleIndex()
		ix.Files = append(ix.Files, bundletest.File{Path: "data/mods.DAT64", Bundle: 1, Size: 1})
		_, err := bundle.Parse(ix.Payload())
		assert.ErrorIs(t, err, bundle.ErrMalformedIndex)
	})

	t.Run("missing path representation", func(t *testing.T) {
		ix := sampleIndex()
		pathspecLen := 0
		for _, f := range ix.Files {
			pathspecLen += 4 + len(f.Path) + 1
		}
		// a one-block stored bundle: head, one block size, then the block
		trimmed := payload[:len(payload)-(60+4+pathspecLen)]
		_, err := bundle.Parse(trimmed)
		assert.ErrorIs(t, err, bundle.ErrMalformedIndex)
	})
}
