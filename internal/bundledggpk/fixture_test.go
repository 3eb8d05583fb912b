package bundledggpk

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jchantrell/ggpktool/internal/bundle"
	"github.com/jchantrell/ggpktool/internal/bundle/bundletest"
	"github.com/jchantrell/ggpktool/internal/ggpk/ggpktest"
)

// dirSpec is a directory to lay out with ggpktest.
type dirSpec struct {
	files map[string][]byte
	dirs  map[string]*dirSpec
}

func newDirSpec() *dirSpec {
	return &dirSpec{files: map[string][]byte{}, dirs: map[string]*dirSpec{}}
}

func (d *dirSpec) add(path string, data []byte) {
	parts := strings.Split(path, "/")
	for _, part := range parts[:len(parts)-1] {
		next, ok := d.dirs[part]
		if !ok {
			next = newDirSpec()
			d.dirs[part] = next
		}
		d = next
	}
	d.files[parts[len(parts)-1]] = data
}

func (d *dirSpec) write(b *ggpktest.Builder, name string) int64 {
	var children []ggpktest.Child
	for _, n := range sortedKeys(d.files) {
		children = append(children, ggpktest.Child{Name: n, Offset: b.File(n, d.files[n])})
	}
	for _, n := range sortedKeys(d.dirs) {
		children = append(children, ggpktest.Child{Name: n, Offset: d.dirs[n].write(b, n)})
	}
	return b.Dir(name, children...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sample layout:
//
//	a.txt                         direct, 10 bytes
//	Bundles2/Data/Mods.dat64      bundle 0 "Data", 200 bytes at 0
//	Bundles2/Data/Stats.dat64     bundle 0 "Data", 100 bytes at 200
//	Bundles2/Art/2DArt/Icon.dds   bundle 1 "Art/Textures", 100 bytes at 0
//	Bundles2/Readme.txt           bundle 1 "Art/Textures", 20 bytes at 100
var (
	modsContent   = bytes.Repeat([]byte("M"), 200)
	statsContent  = bytes.Repeat([]byte("S"), 100)
	iconContent   = bytes.Repeat([]byte("I"), 100)
	readmeContent = bytes.Repeat([]byte("R"), 20)
)

func sampleIndex() bundletest.Index {
	return bundletest.Index{
		Bundles: []bundletest.Bundle{
			{Path: "Data", UncompressedSize: 300},
			{Path: "Art/Textures", UncompressedSize: 120},
		},
		Files: []bundletest.File{
			{Path: "Data/Mods.dat64", Bundle: 0, Offset: 0, Size: 200},
			{Path: "Data/Stats.dat64", Bundle: 0, Offset: 200, Size: 100},
			{Path: "Art/2DArt/Icon.dds", Bundle: 1, Offset: 0, Size: 100},
			{Path: "Readme.txt", Bundle: 1, Offset: 100, Size: 20},
		},
	}
}

func samplePayloads() map[string][]byte {
	return map[string][]byte{
		"Data":         append(bytes.Clone(modsContent), statsContent...),
		"Art/Textures": append(bytes.Clone(iconContent), readmeContent...),
	}
}

// writeBundled lays out a container with a.txt and a Bundles2 directory
// holding the index and one FILE per bundle, and returns its path.
func writeBundled(t *testing.T, ix bundletest.Index, payloads map[string][]byte) string {
	t.Helper()
	b := ggpktest.New()
	a := b.File("a.txt", []byte("0123456789"))

	bundles := newDirSpec()
	bundles.add(IndexFileName, ix.Bytes())
	for path, payload := range payloads {
		bundles.add(path+".bundle.bin", bundle.Encode(payload))
	}
	dir := bundles.write(b, BundlesDirName)

	root := b.Dir("",
		ggpktest.Child{Name: "a.txt", Offset: a},
		ggpktest.Child{Name: BundlesDirName, Offset: dir},
	)
	return b.WriteFile(t, root, 0)
}

func openSample(t *testing.T, opts Options) (*Container, string) {
	t.Helper()
	path := writeBundled(t, sampleIndex(), samplePayloads())
	c, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, path
}
