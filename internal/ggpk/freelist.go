package ggpk

import (
	"fmt"
	"log/slog"
)

// Region is a span of the container owned by one record.
type Region struct {
	Offset int64
	Length int64
}

// FreeList mirrors the chain of FREE records threaded through the container.
// The chain is kept as offset -> next offset so cycles and double ownership
// can be checked without chasing pointers.
type FreeList struct {
	codec  *Codec
	header *HeaderRecord

	next   map[int64]int64
	length map[int64]int64
}

func newFreeList(codec *Codec, header *HeaderRecord) *FreeList {
	return &FreeList{
		codec:  codec,
		header: header,
		next:   make(map[int64]int64),
		length: make(map[int64]int64),
	}
}

// Scan rebuilds the chain from the header's first-free pointer. A walk that
// revisits an offset is corrupt.
func (fl *FreeList) Scan() error {
	next := make(map[int64]int64)
	length := make(map[int64]int64)

	for offset := fl.header.FirstFreeOffset; offset != 0; {
		if _, seen := next[offset]; seen {
			return corruptf(offset, FreeRecordTag, "free list revisits offset %d", offset)
		}
		rec, err := fl.codec.ReadRecord(offset)
		if err != nil {
			return fmt.Errorf("reading free record at %d: %w", offset, err)
		}
		free, ok := rec.(*FreeRecord)
		if !ok {
			return corruptf(offset, rec.Tag(), "free list points at a non-FREE record")
		}
		next[offset] = free.NextFreeOffset
		length[offset] = int64(free.Length)
		offset = free.NextFreeOffset
	}

	fl.next = next
	fl.length = length
	slog.Debug("Free list scanned", "records", len(next))
	return nil
}

// Offsets returns the chain in link order.
func (fl *FreeList) Offsets() []int64 {
	offsets := make([]int64, 0, len(fl.next))
	for offset := fl.header.FirstFreeOffset; offset != 0; offset = fl.next[offset] {
		offsets = append(offsets, offset)
		if len(offsets) > len(fl.next) {
			break
		}
	}
	return offsets
}

// Len is the number of linked free records.
func (fl *FreeList) Len() int {
	return len(fl.next)
}

// Allocate unlinks the first free region, in link order, of at least
// minSize bytes. Oversized regions are handed out whole; the remainder is not
// split off.
func (fl *FreeList) Allocate(minSize int64) (Region, bool, error) {
	var prev int64
	for offset := fl.header.FirstFreeOffset; offset != 0; prev, offset = offset, fl.next[offset] {
		length := fl.length[offset]
		if length < minSize {
			continue
		}

		next := fl.next[offset]
		if prev == 0 {
			fl.header.FirstFreeOffset = next
			if err := fl.codec.WriteRecord(fl.header); err != nil {
				return Region{}, false, fmt.Errorf("unlinking free record %d from header: %w", offset, err)
			}
		} else {
			fl.next[prev] = next
			prevRec := &FreeRecord{
				BaseRecord:     BaseRecord{Offset: prev, Length: uint32(fl.length[prev])},
				NextFreeOffset: next,
			}
			if err := fl.codec.WriteRecord(prevRec); err != nil {
				return Region{}, false, fmt.Errorf("unlinking free record %d from %d: %w", offset, prev, err)
			}
		}
		delete(fl.next, offset)
		delete(fl.length, offset)

		slog.Debug("Reusing free record", "offset", offset, "length", length, "requested", minSize)
		return Region{Offset: offset, Length: length}, true, nil
	}
	return Region{}, false, nil
}

// Free turns a vacated region into a FREE record at the head of the chain.
// Regions too small to hold a FREE record are abandoned.
func (fl *FreeList) Free(offset, length int64) error {
	if length < MinFreeRecordLength {
		slog.Debug("Abandoning region too small for a free record", "offset", offset, "length", length)
		return nil
	}
	if length > int64(^uint32(0)) {
		return fmt.Errorf("free region at %d: length %d does not fit a record", offset, length)
	}
	if _, linked := fl.next[offset]; linked {
		return fmt.Errorf("free region at %d is already on the free list", offset)
	}

	rec := &FreeRecord{
		BaseRecord:     BaseRecord{Offset: offset, Length: uint32(length)},
		NextFreeOffset: fl.header.FirstFreeOffset,
	}
	if err := fl.codec.WriteRecord(rec); err != nil {
		return fmt.Errorf("writing free record at %d: %w", offset, err)
	}

	fl.header.FirstFreeOffset = offset
	if err := fl.codec.WriteRecord(fl.header); err != nil {
		return fmt.Errorf("linking free record %d into header: %w", offset, err)
	}
	fl.next[offset] = rec.NextFreeOffset
	fl.length[offset] = length
	return nil
}

// Validate checks that the chain from the header visits every tracked record
// exactly once and ends at 0.
func (fl *FreeList) Validate() error {
	seen := make(map[int64]bool, len(fl.next))
	for offset := fl.header.FirstFreeOffset; offset != 0; offset = fl.next[offset] {
		if seen[offset] {
			return corruptf(offset, FreeRecordTag, "free list revisits offset %d", offset)
		}
		if _, ok := fl.next[offset]; !ok {
			return corruptf(offset, FreeRecordTag, "free list links to untracked offset %d", offset)
		}
		seen[offset] = true
	}
	if len(seen) != len(fl.next) {
		return fmt.Errorf("%w: %d free records tracked, %d reachable", ErrCorruptFormat, len(fl.next), len(seen))
	}
	return nil
}

// Compact would defragment the container by moving records over free space.
// It has no algorithm yet.
func (fl *FreeList) Compact() error {
	return fmt.Errorf("defragmenting free space: %w", ErrUnimplemented)
}
