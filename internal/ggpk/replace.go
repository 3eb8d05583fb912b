package ggpk

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
)

// ReplaceContent swaps the content of a direct file. Content that fits the
// region the record already owns is written in place; anything larger moves
// the record to a reused free region or to the end of the container, and the
// parent directory entry is repointed. The name and entry hash never change.
func (c *Container) ReplaceContent(node *FileNode, data []byte) error {
	rec := node.Record
	headerSize := rec.HeaderSize()
	length := headerSize + int64(len(data))
	if length > int64(^uint32(0)) {
		return fmt.Errorf("replacing %q: %d bytes do not fit a record", rec.Name, len(data))
	}

	if int64(len(data)) <= rec.Capacity() {
		if err := c.writeFile(rec, rec.Offset, length, data); err != nil {
			return fmt.Errorf("replacing %q in place: %w", rec.Name, err)
		}
		slog.Debug("Replaced file in place", "name", rec.Name, "offset", rec.Offset, "length", length, "footprint", rec.Footprint)
		return nil
	}

	parent, entry, err := c.parentEntry(node)
	if err != nil {
		return err
	}

	oldOffset := rec.Offset
	if err := c.freeList.Free(oldOffset, rec.Footprint); err != nil {
		return fmt.Errorf("releasing %q: %w", rec.Name, err)
	}

	region, ok, err := c.freeList.Allocate(length)
	if err != nil {
		return fmt.Errorf("allocating %d bytes for %q: %w", length, rec.Name, err)
	}
	if !ok {
		region = Region{Offset: c.end, Length: length}
	}

	if err := c.writeFile(rec, region.Offset, length, data); err != nil {
		return fmt.Errorf("moving %q to %d: %w", rec.Name, region.Offset, err)
	}
	rec.Footprint = region.Length
	if region.Offset+region.Length > c.end {
		c.end = region.Offset + region.Length
	}

	parent.Record.Entries[entry].Offset = region.Offset
	if err := c.codec.WriteEntryOffset(parent.Record, entry); err != nil {
		return fmt.Errorf("repointing %q in %q: %w", rec.Name, parent.Record.Name, err)
	}

	slog.Debug("Moved file",
		"name", rec.Name,
		"from", oldOffset,
		"to", region.Offset,
		"length", length,
		"reused", ok)
	return nil
}

// writeFile writes rec with new content at offset and updates it to match.
// The footprint is left to the caller.
func (c *Container) writeFile(rec *FileRecord, offset, length int64, data []byte) error {
	updated := *rec
	updated.Offset = offset
	updated.Length = uint32(length)
	updated.DataLength = int64(len(data))
	updated.Data = data
	updated.Hash = sha256.Sum256(data)
	if err := c.codec.WriteRecord(&updated); err != nil {
		return err
	}
	updated.Data = nil
	*rec = updated
	return nil
}

// parentEntry finds the directory entry that points at node.
func (c *Container) parentEntry(node *FileNode) (*DirectoryNode, int, error) {
	parent, ok := c.tree.Node(node.Parent()).(*DirectoryNode)
	if !ok {
		return nil, 0, fmt.Errorf("parent of %q: %w", node.Name(), ErrNotDirectory)
	}
	for i, e := range parent.Record.Entries {
		if e.Offset == node.Record.Offset {
			return parent, i, nil
		}
	}
	return nil, 0, corruptf(parent.Record.Offset, PDirRecordTag, "no entry points at %q (offset %d)", node.Name(), node.Record.Offset)
}
