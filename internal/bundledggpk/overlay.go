// Package bundledggpk presents the files of a bundled GGPK (one whose content
// lives in Bundles2/*.bundle.bin, indexed by Bundles2/_.index.bin) as ordinary
// tree nodes, and reads and replaces them.
package bundledggpk

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jchantrell/ggpktool/internal/bundle"
	"github.com/jchantrell/ggpktool/internal/cache"
	"github.com/jchantrell/ggpktool/internal/ggpk"
)

const (
	BundlesDirName = "Bundles2"
	IndexFileName  = "_.index.bin"

	// DefaultFlushThreshold is how much new content a target bundle takes
	// before it is written back.
	DefaultFlushThreshold = 50 * 1024 * 1024

	DefaultCacheEntries = 4
)

type Options struct {
	FlushThreshold int64
	CacheEntries   int
}

func (o Options) withDefaults() Options {
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = DefaultFlushThreshold
	}
	if o.CacheEntries == 0 {
		o.CacheEntries = DefaultCacheEntries
	}
	return o
}

// Container is a GGPK whose Bundles2 directory has been swapped for the
// overlay built from its index. Unbundled containers have a nil Index and no
// overlay.
type Container struct {
	*ggpk.Container
	Index *bundle.Index

	opts      Options
	direct    *ggpk.DirectoryNode // the on-disk Bundles2, detached from lookups
	overlay   *ggpk.BundleDirectoryNode
	indexFile *ggpk.FileNode
	records   map[*bundle.Record]*ggpk.FileNode
	cache     *cache.Cache
	batch     *Replacer // open replacement batch, if any

	// most recently read bundle, kept decoded so runs of reads from one
	// bundle neither decompress nor copy it again
	hot        *bundle.Record
	hotPayload []byte
	decodes    int
}

// Open opens path read-write and builds the bundle overlay.
func Open(path string, opts Options) (*Container, error) {
	c, err := ggpk.Open(path)
	if err != nil {
		return nil, err
	}
	bc, err := New(c, opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	return bc, nil
}

// OpenReadOnly opens path without write access and builds the bundle overlay.
func OpenReadOnly(path string, opts Options) (*Container, error) {
	c, err := ggpk.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	bc, err := New(c, opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	return bc, nil
}

// New loads the index of an open container and substitutes the overlay for
// its Bundles2 directory.
func New(c *ggpk.Container, opts Options) (*Container, error) {
	opts = opts.withDefaults()
	tree := c.Tree()
	node, ok := tree.Lookup(tree.Root(), BundlesDirName)
	if !ok {
		slog.Debug("No bundle directory, container is unbundled")
		return &Container{
			Container: c,
			opts:      opts,
			records:   make(map[*bundle.Record]*ggpk.FileNode),
			cache:     cache.New(opts.CacheEntries),
		}, nil
	}
	direct, ok := node.(*ggpk.DirectoryNode)
	if !ok {
		return nil, fmt.Errorf("%s: %w", BundlesDirName, ggpk.ErrNotDirectory)
	}

	node, ok = tree.Lookup(direct, IndexFileName)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s not found", ggpk.ErrCorruptFormat, BundlesDirName, IndexFileName)
	}
	indexFile, ok := node.(*ggpk.FileNode)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", BundlesDirName, IndexFileName, ggpk.ErrNotFile)
	}

	raw, err := c.ReadContent(indexFile)
	if err != nil {
		return nil, fmt.Errorf("reading bundle index: %w", err)
	}
	idx, err := bundle.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ggpk.ErrCorruptFormat, err)
	}

	bc := &Container{
		Container: c,
		Index:     idx,
		opts:      opts,
		direct:    direct,
		indexFile: indexFile,
		records:   make(map[*bundle.Record]*ggpk.FileNode, len(idx.Bundles)),
		cache:     cache.New(opts.CacheEntries),
	}

	for _, b := range idx.Bundles {
		rec, err := findBundleFile(tree, direct, b)
		if err != nil {
			return nil, err
		}
		bc.records[b] = rec
	}

	overlay, err := BuildOverlay(tree, idx)
	if err != nil {
		return nil, err
	}
	if err := tree.Substitute(direct, overlay); err != nil {
		return nil, fmt.Errorf("attaching bundle overlay: %w", err)
	}
	bc.overlay = overlay

	slog.Debug("Bundle overlay attached",
		"bundles", len(idx.Bundles),
		"files", len(idx.Files),
		"nodes", tree.Len())
	return bc, nil
}

func findBundleFile(tree *ggpk.Tree, dir ggpk.Dir, b *bundle.Record) (*ggpk.FileNode, error) {
	var current ggpk.Node = dir
	for _, part := range strings.Split(b.FileName(), "/") {
		d, ok := current.(ggpk.Dir)
		if !ok {
			current = nil
			break
		}
		if current, ok = tree.Lookup(d, part); !ok {
			break
		}
	}
	f, ok := current.(*ggpk.FileNode)
	if !ok {
		return nil, fmt.Errorf("%w: bundle %s has no %s/%s record", ggpk.ErrCorruptFormat, b.Path, BundlesDirName, b.FileName())
	}
	return f, nil
}

// BuildOverlay creates a detached Bundles2 directory holding a node for
// every index file with a known path. Directory names keep the case of the
// first path that created them.
func BuildOverlay(tree *ggpk.Tree, idx *bundle.Index) (*ggpk.BundleDirectoryNode, error) {
	root := tree.AddBundleDirectory(ggpk.NoParent, BundlesDirName)

	for _, f := range idx.Files {
		if f.Path == "" {
			continue
		}
		parts := strings.Split(f.Path, "/")
		for _, part := range parts {
			if !ggpk.ValidName(part) {
				return nil, fmt.Errorf("%w: bundle index path %q has segment %q", ggpk.ErrCorruptFormat, f.Path, part)
			}
		}
		dir := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := tree.Lookup(dir, part)
			if !ok {
				dir = tree.AddBundleDirectory(dir.ID(), part)
				continue
			}
			next, ok := child.(*ggpk.BundleDirectoryNode)
			if !ok {
				return nil, fmt.Errorf("%w: %q is both a file and a directory in the bundle index", ggpk.ErrCorruptFormat, f.Path)
			}
			dir = next
		}

		name := parts[len(parts)-1]
		if _, exists := tree.Lookup(dir, name); exists {
			return nil, fmt.Errorf("%w: %q listed twice in the bundle index", ggpk.ErrCorruptFormat, f.Path)
		}
		tree.AddBundleFile(dir.ID(), name, f)

		if d := f.Directory; d != nil && dir.Offset == ggpk.UnsetOffset {
			dir.PathHash = d.PathHash
			dir.Offset = d.Offset
			dir.Size = d.Size
			dir.RecursiveSize = d.RecursiveSize
		}
	}
	return root, nil
}

// Overlay is the Bundles2 directory built from the index.
func (c *Container) Overlay() *ggpk.BundleDirectoryNode {
	return c.overlay
}

// RecordOfBundle is the FILE record holding a bundle's compressed bytes.
func (c *Container) RecordOfBundle(b *bundle.Record) (*ggpk.FileNode, error) {
	rec, ok := c.records[b]
	if !ok {
		return nil, fmt.Errorf("%w: no record for bundle %q", ggpk.ErrCorruptFormat, b.Path)
	}
	return rec, nil
}

// ReadContent reads a direct file from the container or a bundle file from
// its bundle. Bundle file content may share memory with the decoded bundle
// and must not be modified.
func (c *Container) ReadContent(n ggpk.Node) ([]byte, error) {
	f, ok := n.(*ggpk.BundleFileNode)
	if !ok {
		return c.Container.ReadContent(n)
	}

	ref := f.ContentRef()
	payload, err := c.bundlePayload(ref.Bundle)
	if err != nil {
		return nil, err
	}
	if ref.Offset < 0 || ref.Offset+ref.Length > int64(len(payload)) {
		return nil, fmt.Errorf("%w: %q spans %d..%d of bundle %s holding %d bytes",
			ggpk.ErrCorruptFormat, c.Tree().Path(n), ref.Offset, ref.Offset+ref.Length, ref.Bundle.Path, len(payload))
	}
	content := payload[ref.Offset : ref.Offset+ref.Length]
	if c.batch != nil && c.batch.target == ref.Bundle {
		// the pending target keeps growing under the caller
		return bytes.Clone(content), nil
	}
	return content, nil
}

// bundlePayload returns a bundle's decompressed payload, including content
// appended by an open replacement batch.
func (c *Container) bundlePayload(b *bundle.Record) ([]byte, error) {
	if c.batch != nil && c.batch.target == b {
		return c.batch.payload, nil
	}
	if c.hot == b {
		return c.hotPayload, nil
	}

	payload, ok, err := c.cache.Get(b.Index)
	if err != nil {
		slog.Warn("Dropping unreadable cached bundle", "bundle", b.Path, "error", err)
	}
	if ok {
		c.setHot(b, payload)
		return payload, nil
	}

	rec, err := c.RecordOfBundle(b)
	if err != nil {
		return nil, err
	}
	raw, err := c.Container.ReadContent(rec)
	if err != nil {
		return nil, fmt.Errorf("reading bundle %s: %w", b.Path, err)
	}
	payload, err = bundle.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding bundle %s: %w", b.Path, err)
	}
	c.decodes++
	c.setHot(b, payload)
	if err := c.cache.Put(b.Index, payload); err != nil {
		slog.Warn("Failed to cache bundle", "bundle", b.Path, "error", err)
	}
	return payload, nil
}

func (c *Container) setHot(b *bundle.Record, payload []byte) {
	c.hot = b
	c.hotPayload = payload
}
