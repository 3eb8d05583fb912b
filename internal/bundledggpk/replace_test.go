package bundledggpk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/ggpktool/internal/ggpk"
)

func findBundled(t *testing.T, c *Container, path string) *ggpk.BundleFileNode {
	t.Helper()
	n, ok := c.Find(path)
	require.True(t, ok, path)
	f, ok := n.(*ggpk.BundleFileNode)
	require.True(t, ok, path)
	return f
}

func readPath(t *testing.T, c *Container, path string) []byte {
	t.Helper()
	n, ok := c.Find(path)
	require.True(t, ok, path)
	data, err := c.ReadContent(n)
	require.NoError(t, err, path)
	return data
}

func TestReplaceFlushesOncePerThreshold(t *testing.T) {
	c, path := openSample(t, Options{FlushThreshold: 100})

	newMods := bytes.Repeat([]byte("m"), 60)
	newStats := bytes.Repeat([]byte("s"), 60)
	newIcon := bytes.Repeat([]byte("i"), 10)

	r, err := c.NewReplacer()
	require.NoError(t, err)

	require.NoError(t, r.Replace(findBundled(t, c, "Bundles2/Data/Mods.dat64"), newMods))
	assert.Zero(t, r.Stats().Flushes)
	require.NoError(t, r.Replace(findBundled(t, c, "Bundles2/Data/Stats.dat64"), newStats))
	assert.Equal(t, 1, r.Stats().Flushes)
	require.NoError(t, r.Replace(findBundled(t, c, "Bundles2/Art/2DArt/Icon.dds"), newIcon))
	assert.Equal(t, 1, r.Stats().Flushes)

	require.NoError(t, r.Close())
	stats := r.Stats()
	assert.Equal(t, 2, stats.Flushes)
	assert.Equal(t, 3, stats.Bundled)
	assert.Equal(t, int64(130), stats.Bytes)

	// the smallest bundle took every file
	textures, ok := c.Index.BundleByPath("Art/Textures")
	require.True(t, ok)
	assert.Equal(t, int32(250), textures.UncompressedSize)
	icon := findBundled(t, c, "Bundles2/Art/2DArt/Icon.dds")
	assert.Same(t, textures, icon.Record.Bundle)
	assert.Equal(t, int32(240), icon.Record.Offset)

	require.NoError(t, c.Close())
	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, newMods, readPath(t, reopened, "Bundles2/Data/Mods.dat64"))
	assert.Equal(t, newStats, readPath(t, reopened, "Bundles2/Data/Stats.dat64"))
	assert.Equal(t, newIcon, readPath(t, reopened, "Bundles2/Art/2DArt/Icon.dds"))
	assert.Equal(t, readmeContent, readPath(t, reopened, "Bundles2/Readme.txt"))
	assert.Equal(t, []byte("0123456789"), readPath(t, reopened, "a.txt"))

	textures, ok = reopened.Index.BundleByPath("Art/Textures")
	require.True(t, ok)
	assert.Equal(t, int32(250), textures.UncompressedSize)
	require.NoError(t, reopened.FreeList().Validate())
}

func TestReplaceBelowThresholdFlushesOnce(t *testing.T) {
	c, _ := openSample(t, Options{})

	r, err := c.NewReplacer()
	require.NoError(t, err)
	require.NoError(t, r.Replace(findBundled(t, c, "Bundles2/Data/Mods.dat64"), []byte("tiny")))
	require.NoError(t, r.Replace(findBundled(t, c, "Bundles2/Readme.txt"), []byte("read me")))
	require.NoError(t, r.Close())
	assert.Equal(t, 1, r.Stats().Flushes)
}

func TestReadsSeeOpenBatch(t *testing.T) {
	c, _ := openSample(t, Options{})

	r, err := c.NewReplacer()
	require.NoError(t, err)
	mods := findBundled(t, c, "Bundles2/Data/Mods.dat64")
	require.NoError(t, r.Replace(mods, []byte("pending")))

	data, err := c.ReadContent(mods)
	require.NoError(t, err)
	assert.Equal(t, []byte("pending"), data)
	assert.Equal(t, readmeContent, readPath(t, c, "Bundles2/Readme.txt"))

	// the pending payload is still growing, so callers get their own copy
	data[0] = 'X'
	data, err = c.ReadContent(mods)
	require.NoError(t, err)
	assert.Equal(t, []byte("pending"), data)

	_, err = c.NewReplacer()
	assert.Error(t, err)
	require.NoError(t, r.Close())
}

func TestReplaceContentMixesDirectAndBundled(t *testing.T) {
	c, path := openSample(t, Options{})

	a, ok := c.Find("a.txt")
	require.True(t, ok)
	require.NoError(t, c.ReplaceContent(a.(ggpk.File), bytes.Repeat([]byte("A"), 500)))
	require.NoError(t, c.ReplaceContent(findBundled(t, c, "Bundles2/Readme.txt"), []byte("updated")))

	require.NoError(t, c.Close())
	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, bytes.Repeat([]byte("A"), 500), readPath(t, reopened, "a.txt"))
	assert.Equal(t, []byte("updated"), readPath(t, reopened, "Bundles2/Readme.txt"))
	assert.Equal(t, modsContent, readPath(t, reopened, "Bundles2/Data/Mods.dat64"))
}

func TestReplaceRejectsDirectories(t *testing.T) {
	c, _ := openSample(t, Options{})
	r, err := c.NewReplacer()
	require.NoError(t, err)
	defer r.Abort()

	n, ok := c.Find("Bundles2/Data")
	require.True(t, ok)
	_, isFile := n.(ggpk.File)
	require.False(t, isFile)
	assert.ErrorIs(t, r.Replace(nil, []byte("x")), ggpk.ErrNotFile)
}
