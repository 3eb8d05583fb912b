package bundledggpk

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/jchantrell/ggpktool/internal/bundle"
	"github.com/jchantrell/ggpktool/internal/ggpk"
)

// ErrUnsafePath is returned when a node name would map outside the external
// directory of a batch.
var ErrUnsafePath = errors.New("unsafe external path")

// Mode selects what a file list is for.
type Mode int

const (
	ModeExport Mode = iota
	// ModeReplace lists only files whose external counterpart exists.
	ModeReplace
)

// Entry pairs a file in the container with a path outside it.
type Entry struct {
	Node ggpk.File
	Path string
}

// Progress is called before each entry is processed.
type Progress func(done, total int, path string)

// RecursiveFileList lists every file at or below n, mapping each onto
// externalPath the way n maps onto the container. filter, if set, must match
// the file's full path in the container.
func (c *Container) RecursiveFileList(n ggpk.Node, externalPath string, mode Mode, filter *regexp.Regexp) ([]Entry, error) {
	var entries []Entry
	if err := c.collect(n, externalPath, mode, filter, &entries); err != nil {
		return nil, err
	}
	if _, ok := n.(ggpk.Dir); ok {
		for _, e := range entries {
			rel, err := filepath.Rel(externalPath, e.Path)
			if err != nil || !filepath.IsLocal(rel) {
				return nil, fmt.Errorf("%w: %s maps outside %s", ErrUnsafePath, c.Tree().Path(e.Node), externalPath)
			}
		}
	}
	return entries, nil
}

func (c *Container) collect(n ggpk.Node, externalPath string, mode Mode, filter *regexp.Regexp, entries *[]Entry) error {
	switch node := n.(type) {
	case ggpk.Dir:
		for _, child := range c.Tree().Children(node) {
			if !ggpk.ValidName(child.Name()) {
				return fmt.Errorf("%w: %q under %q", ErrUnsafePath, child.Name(), c.Tree().Path(n))
			}
			if err := c.collect(child, filepath.Join(externalPath, child.Name()), mode, filter, entries); err != nil {
				return err
			}
		}
		return nil

	case ggpk.File:
		if filter != nil && !filter.MatchString(c.Tree().Path(n)) {
			return nil
		}
		if mode == ModeReplace {
			info, err := os.Stat(externalPath)
			if os.IsNotExist(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("checking %s: %w", externalPath, err)
			}
			if info.IsDir() {
				return nil
			}
		}
		*entries = append(*entries, Entry{Node: node, Path: externalPath})
		return nil

	default:
		return fmt.Errorf("listing %T: unknown node kind", n)
	}
}

// Locality orders entries so a batch walks the container front to back:
// direct files first by content offset, then bundle files by the offset of
// their bundle's record and their offset inside it.
type Locality struct {
	bundleOffset func(*bundle.Record) int64
}

// Locality returns the ordering for this container's current layout.
func (c *Container) Locality() Locality {
	return Locality{bundleOffset: func(b *bundle.Record) int64 {
		if rec, ok := c.records[b]; ok {
			return rec.Record.Offset
		}
		return -1
	}}
}

// Compare is a three-way comparison suitable for slices.SortFunc.
func (l Locality) Compare(a, b Entry) int {
	switch x := a.Node.(type) {
	case *ggpk.FileNode:
		y, ok := b.Node.(*ggpk.FileNode)
		if !ok {
			return -1
		}
		return cmp.Compare(x.Record.DataBegin, y.Record.DataBegin)

	case *ggpk.BundleFileNode:
		y, ok := b.Node.(*ggpk.BundleFileNode)
		if !ok {
			return 1
		}
		if c := cmp.Compare(l.bundleOffset(x.Record.Bundle), l.bundleOffset(y.Record.Bundle)); c != 0 {
			return c
		}
		return cmp.Compare(x.Record.Offset, y.Record.Offset)
	}
	return 0
}

// SortEntries orders entries for locality, keeping listing order among equals.
func SortEntries(entries []Entry, l Locality) {
	slices.SortStableFunc(entries, l.Compare)
}

// Export writes each entry's content to its external path, creating parent
// directories. It stops at the first failure.
func (c *Container) Export(entries []Entry, progress Progress) error {
	SortEntries(entries, c.Locality())

	for i, e := range entries {
		if progress != nil {
			progress(i, len(entries), e.Path)
		}
		data, err := c.ReadContent(e.Node)
		if err != nil {
			return fmt.Errorf("exporting %s: %w", c.Tree().Path(e.Node), err)
		}
		if err := os.MkdirAll(filepath.Dir(e.Path), 0o755); err != nil {
			return fmt.Errorf("exporting %s: %w", c.Tree().Path(e.Node), err)
		}
		if err := os.WriteFile(e.Path, data, 0o644); err != nil {
			return fmt.Errorf("exporting %s: %w", c.Tree().Path(e.Node), err)
		}
	}
	return nil
}

// Replace replaces each entry's content with the file at its external path.
// It stops at the first failure without writing back pending bundle content;
// the container should be reopened after an error.
func (c *Container) Replace(entries []Entry, progress Progress) (ReplaceStats, error) {
	SortEntries(entries, c.Locality())

	r, err := c.NewReplacer()
	if err != nil {
		return ReplaceStats{}, err
	}
	for i, e := range entries {
		if progress != nil {
			progress(i, len(entries), e.Path)
		}
		data, err := os.ReadFile(e.Path)
		if err != nil {
			r.Abort()
			return r.Stats(), fmt.Errorf("replacing %s: %w", c.Tree().Path(e.Node), err)
		}
		if err := r.Replace(e.Node, data); err != nil {
			r.Abort()
			return r.Stats(), err
		}
	}
	if err := r.Close(); err != nil {
		return r.Stats(), err
	}
	return r.Stats(), nil
}
