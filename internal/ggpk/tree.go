package ggpk

import (
	"fmt"
	"strings"

	"github.com/jchantrell/ggpktool/internal/bundle"
)

// NodeID indexes a node in its Tree.
type NodeID int

// NoParent is the parent of the root.
const NoParent NodeID = -1

// Node is one of *DirectoryNode, *FileNode, *BundleDirectoryNode or
// *BundleFileNode. The Tree owns every node; parents are referenced by ID.
type Node interface {
	ID() NodeID
	Name() string
	Parent() NodeID
	NameHash() uint32 // stored entry hash; overlay nodes below Bundles2 have none
	base() *nodeBase
}

// Dir is implemented by the directory kinds.
type Dir interface {
	Node
	Children() []NodeID
}

// File is implemented by the file kinds.
type File interface {
	Node
	ContentRef() ContentRef
}

// ContentRef locates file content. Direct files live in the container;
// bundle files live in a bundle's decompressed payload.
type ContentRef struct {
	Bundle *bundle.Record // nil for direct files
	Offset int64
	Length int64
}

type nodeBase struct {
	id       NodeID
	parent   NodeID
	name     string
	nameHash uint32
}

func (n *nodeBase) ID() NodeID      { return n.id }
func (n *nodeBase) Name() string    { return n.name }
func (n *nodeBase) Parent() NodeID  { return n.parent }
func (n *nodeBase) NameHash() uint32 { return n.nameHash }
func (n *nodeBase) base() *nodeBase { return n }

type dirBase struct {
	children []NodeID
	byName   map[string]NodeID
}

func (d *dirBase) Children() []NodeID { return d.children }

func (d *dirBase) addChild(id NodeID, name string) {
	d.children = append(d.children, id)
	if d.byName == nil {
		d.byName = make(map[string]NodeID)
	}
	d.byName[strings.ToLower(name)] = id
}

// DirectoryNode is a PDIR record in the tree.
type DirectoryNode struct {
	nodeBase
	dirBase
	Record *DirectoryRecord
}

// FileNode is a FILE record in the tree.
type FileNode struct {
	nodeBase
	Record *FileRecord
}

func (f *FileNode) ContentRef() ContentRef {
	return ContentRef{Offset: f.Record.DataBegin, Length: f.Record.DataLength}
}

// UnsetOffset marks bundle directory fields nobody has filled in yet.
const UnsetOffset = -1

// BundleDirectoryNode is a directory synthesized from the bundle manifest.
// It owns no container bytes.
type BundleDirectoryNode struct {
	nodeBase
	dirBase
	PathHash      uint64
	Offset        int32
	Size          int32
	RecursiveSize int32
}

// BundleFileNode is a manifest file presented as a tree node.
type BundleFileNode struct {
	nodeBase
	Record *bundle.FileRecord
}

func (f *BundleFileNode) ContentRef() ContentRef {
	return ContentRef{Bundle: f.Record.Bundle, Offset: int64(f.Record.Offset), Length: int64(f.Record.Size)}
}

var (
	_ Dir  = (*DirectoryNode)(nil)
	_ Dir  = (*BundleDirectoryNode)(nil)
	_ File = (*FileNode)(nil)
	_ File = (*BundleFileNode)(nil)
)

// ValidName reports whether name can name a child: not empty, not "." or
// "..", and free of path separators.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Tree is the arena that owns every node.
type Tree struct {
	nodes    []Node
	root     NodeID
	nameHash func(string) uint32
}

func newTree(nameHash func(string) uint32) *Tree {
	return &Tree{root: NoParent, nameHash: nameHash}
}

func (t *Tree) add(n Node) NodeID {
	id := NodeID(len(t.nodes))
	b := n.base()
	b.id = id
	t.nodes = append(t.nodes, n)
	if b.parent != NoParent {
		if parent, ok := t.nodes[b.parent].(interface{ addChild(NodeID, string) }); ok {
			parent.addChild(id, b.name)
		}
	}
	return id
}

// Root returns the root directory.
func (t *Tree) Root() Dir {
	return t.nodes[t.root].(Dir)
}

// Node returns the node with the given ID.
func (t *Tree) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Len is the number of nodes in the arena, detached ones included.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Children resolves the children of a directory node.
func (t *Tree) Children(dir Dir) []Node {
	ids := dir.Children()
	children := make([]Node, len(ids))
	for i, id := range ids {
		children[i] = t.nodes[id]
	}
	return children
}

// Lookup finds a child by name, case-insensitively. Direct directories are
// searched by entry hash; bundle directories by name.
func (t *Tree) Lookup(dir Dir, name string) (Node, bool) {
	switch d := dir.(type) {
	case *DirectoryNode:
		hash := t.nameHash(name)
		for _, id := range d.children {
			child := t.nodes[id]
			if child.base().nameHash == hash && strings.EqualFold(child.Name(), name) {
				return child, true
			}
		}
	case *BundleDirectoryNode:
		if id, ok := d.byName[strings.ToLower(name)]; ok {
			return t.nodes[id], true
		}
	}
	return nil, false
}

// Find resolves a '/'-separated path from the root. A miss is not an error.
func (t *Tree) Find(path string) (Node, bool) {
	var current Node = t.nodes[t.root]
	for _, part := range splitPath(path) {
		dir, ok := current.(Dir)
		if !ok {
			return nil, false
		}
		child, ok := t.Lookup(dir, part)
		if !ok {
			return nil, false
		}
		current = child
	}
	return current, true
}

func splitPath(path string) []string {
	path = strings.ReplaceAll(path, "\\", "/")
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// Path returns the full path of a node. The root's path is "".
func (t *Tree) Path(n Node) string {
	var parts []string
	for n != nil && n.Parent() != NoParent {
		parts = append(parts, n.Name())
		n = t.nodes[n.Parent()]
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Walk visits n and everything below it depth first, in child order.
func (t *Tree) Walk(n Node, fn func(Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	dir, ok := n.(Dir)
	if !ok {
		return nil
	}
	for _, id := range dir.Children() {
		if err := t.Walk(t.nodes[id], fn); err != nil {
			return err
		}
	}
	return nil
}

// AddBundleDirectory creates an overlay directory. A parent of NoParent
// creates a detached overlay root.
func (t *Tree) AddBundleDirectory(parent NodeID, name string) *BundleDirectoryNode {
	n := &BundleDirectoryNode{
		nodeBase: nodeBase{parent: parent, name: name},
		Offset:   UnsetOffset,
		Size:     UnsetOffset,
	}
	t.add(n)
	return n
}

// AddBundleFile creates an overlay file for a manifest entry.
func (t *Tree) AddBundleFile(parent NodeID, name string, rec *bundle.FileRecord) *BundleFileNode {
	n := &BundleFileNode{
		nodeBase: nodeBase{parent: parent, name: name},
		Record:   rec,
	}
	t.add(n)
	return n
}

// Substitute puts replacement where old hangs in the tree. old stays in the
// arena, detached from navigation but still reachable by ID.
func (t *Tree) Substitute(old, replacement Node) error {
	parentID := old.Parent()
	if parentID == NoParent {
		return fmt.Errorf("cannot substitute the root directory")
	}
	parent, ok := t.nodes[parentID].(Dir)
	if !ok {
		return fmt.Errorf("parent of %q: %w", old.Name(), ErrNotDirectory)
	}

	rb := replacement.base()
	rb.parent = parentID
	rb.nameHash = old.base().nameHash

	var db *dirBase
	switch p := parent.(type) {
	case *DirectoryNode:
		db = &p.dirBase
	case *BundleDirectoryNode:
		db = &p.dirBase
	}
	for i, id := range db.children {
		if id == old.ID() {
			db.children[i] = replacement.ID()
			db.byName[strings.ToLower(replacement.Name())] = replacement.ID()
			return nil
		}
	}
	return fmt.Errorf("%q is not a child of %q", old.Name(), parent.Name())
}

// VerifyHashes checks that every direct node's entry hash matches its name.
func (t *Tree) VerifyHashes() error {
	return t.Walk(t.nodes[t.root], func(n Node) error {
		switch n.(type) {
		case *DirectoryNode, *FileNode:
		default:
			return nil
		}
		if n.Parent() == NoParent {
			return nil
		}
		if want := t.nameHash(n.Name()); n.base().nameHash != want {
			return fmt.Errorf("%w: %q has entry hash %08X, name hashes to %08X", ErrCorruptFormat, t.Path(n), n.base().nameHash, want)
		}
		return nil
	})
}
