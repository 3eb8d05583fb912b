package ggpk

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Container is an open GGPK file: its header, free list and directory tree.
// A Container is not safe for concurrent use; every operation seeks the one
// shared stream.
type Container struct {
	file     *os.File // nil when opened over a caller's stream
	codec    *Codec
	header   *HeaderRecord
	freeList *FreeList
	tree     *Tree
	end      int64 // where appended records go
}

// Open opens a container for reading and writing.
func Open(path string) (*Container, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening ggpk: %w", err)
	}
	return openFile(f)
}

// OpenReadOnly opens a container without write access. Mutations fail with the
// underlying permission error.
func OpenReadOnly(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ggpk: %w", err)
	}
	return openFile(f)
}

func openFile(f *os.File) (*Container, error) {
	c, err := NewContainer(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.file = f
	return c, nil
}

// NewContainer reads a container from rws. The caller keeps ownership of rws.
func NewContainer(rws io.ReadWriteSeeker) (*Container, error) {
	codec := NewCodec(rws)
	header, err := codec.ReadHeader(0)
	if err != nil {
		return nil, fmt.Errorf("reading GGPK header: %w", err)
	}

	end, err := codec.Size()
	if err != nil {
		return nil, fmt.Errorf("sizing container: %w", err)
	}

	c := &Container{
		codec:    codec,
		header:   header,
		freeList: newFreeList(codec, header),
		end:      end,
	}
	if err := c.freeList.Scan(); err != nil {
		return nil, err
	}
	if err := c.buildTree(); err != nil {
		return nil, err
	}

	slog.Debug("GGPK opened",
		"version", header.Version,
		"nodes", c.tree.Len(),
		"freeRecords", c.freeList.Len(),
		"size", end)
	return c, nil
}

// Close releases the backing file if the container opened it.
func (c *Container) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

func (c *Container) Header() *HeaderRecord { return c.header }
func (c *Container) Codec() *Codec          { return c.codec }
func (c *Container) FreeList() *FreeList    { return c.freeList }
func (c *Container) Tree() *Tree            { return c.tree }

// Size is the current end of the container, appended records included.
func (c *Container) Size() int64 { return c.end }

// Find resolves a path from the root directory.
func (c *Container) Find(path string) (Node, bool) {
	return c.tree.Find(path)
}

// Compact defragments the container.
func (c *Container) Compact() error {
	return c.freeList.Compact()
}

// ReadContent returns the content of a direct file.
func (c *Container) ReadContent(n Node) ([]byte, error) {
	switch f := n.(type) {
	case *FileNode:
		return c.codec.ReadData(f.Record)
	case *BundleFileNode:
		return nil, fmt.Errorf("%q is stored in bundle %s, not in the container", c.tree.Path(n), f.Record.Bundle.Path)
	default:
		return nil, fmt.Errorf("reading %q: %w", c.tree.Path(n), ErrNotFile)
	}
}

// buildTree walks every record reachable from the root directory. A record
// reachable twice makes the tree a graph and the container corrupt.
func (c *Container) buildTree() error {
	c.tree = newTree(c.codec.NameHash)

	rec, err := c.codec.ReadRecord(c.header.RootDirectoryOffset)
	if err != nil {
		return fmt.Errorf("reading root directory: %w", err)
	}
	root, ok := rec.(*DirectoryRecord)
	if !ok {
		return corruptf(c.header.RootDirectoryOffset, rec.Tag(), "root is not a directory")
	}

	seen := map[int64]bool{root.Offset: true}
	rootNode := &DirectoryNode{
		nodeBase: nodeBase{parent: NoParent, name: root.Name, nameHash: c.codec.NameHash(root.Name)},
		Record:   root,
	}
	c.tree.root = c.tree.add(rootNode)
	return c.addChildren(rootNode, seen)
}

func (c *Container) addChildren(dir *DirectoryNode, seen map[int64]bool) error {
	for _, entry := range dir.Record.Entries {
		if seen[entry.Offset] {
			return corruptf(entry.Offset, 0, "record reachable twice, again from %q", dir.Record.Name)
		}
		seen[entry.Offset] = true

		rec, err := c.codec.ReadRecord(entry.Offset)
		if err != nil {
			return fmt.Errorf("reading child of %q: %w", dir.Record.Name, err)
		}

		if name := recordName(rec); !ValidName(name) {
			return corruptf(entry.Offset, rec.Tag(), "directory %q has a child named %q", dir.Record.Name, name)
		}

		switch r := rec.(type) {
		case *DirectoryRecord:
			child := &DirectoryNode{
				nodeBase: nodeBase{parent: dir.id, name: r.Name, nameHash: entry.NameHash},
				Record:   r,
			}
			c.tree.add(child)
			if err := c.addChildren(child, seen); err != nil {
				return err
			}
		case *FileRecord:
			c.tree.add(&FileNode{
				nodeBase: nodeBase{parent: dir.id, name: r.Name, nameHash: entry.NameHash},
				Record:   r,
			})
		default:
			return corruptf(entry.Offset, rec.Tag(), "directory %q links to a %s record", dir.Record.Name, TagString(rec.Tag()))
		}
	}
	return nil
}

func recordName(rec Record) string {
	switch r := rec.(type) {
	case *DirectoryRecord:
		return r.Name
	case *FileRecord:
		return r.Name
	}
	return "?"
}
