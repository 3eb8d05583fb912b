package ggpk

import "encoding/binary"

// Endianness used in GGPK files
var GGPKEndian = binary.LittleEndian

// RecordHeaderSize is the common size of the record length and tag
const RecordHeaderSize = 8 // uint32 for length + uint32 for tag

// HashSize is the size of SHA256 hashes used in GGPK records
const HashSize = 32

// Tags for different record types
const (
	GGPKRecordTag = 0x4B504747 // "GGPK"
	FreeRecordTag = 0x45455246 // "FREE"
	FileRecordTag = 0x454C4946 // "FILE"
	PDirRecordTag = 0x52494450 // "PDIR"
)

const (
	// HeaderRecordLength is the on-disk size of the GGPK record.
	HeaderRecordLength = RecordHeaderSize + 4 + 8 + 8

	// MinFreeRecordLength is the smallest region that can hold a FREE record.
	MinFreeRecordLength = RecordHeaderSize + 8

	// directoryEntrySize is NameHash (uint32) + Offset (int64).
	directoryEntrySize = 12
)

// TagString renders a record tag as its four ASCII bytes.
func TagString(tag uint32) string {
	var b [4]byte
	GGPKEndian.PutUint32(b[:], tag)
	return string(b[:])
}

// BaseRecord contains the fields shared by every record.
type BaseRecord struct {
	Offset int64  // Offset in the pack file where the record begins
	Length uint32 // Length of the entire record in bytes
}

func (b *BaseRecord) base() *BaseRecord { return b }

// Record is one of *HeaderRecord, *DirectoryRecord, *FileRecord or *FreeRecord.
type Record interface {
	base() *BaseRecord
	Tag() uint32
}

// HeaderRecord is the GGPK record at offset 0.
type HeaderRecord struct {
	BaseRecord
	Version             uint32 // 3 for PC, 4 for Mac, 2 for older versions
	RootDirectoryOffset int64
	FirstFreeOffset     int64
}

func (*HeaderRecord) Tag() uint32 { return GGPKRecordTag }

// FreeRecord represents a block of free space in the GGPK file.
type FreeRecord struct {
	BaseRecord
	NextFreeOffset int64
	// The rest of the record's Length is unused space
}

func (*FreeRecord) Tag() uint32 { return FreeRecordTag }

// DirectoryEntry is a child reference inside a DirectoryRecord.
type DirectoryEntry struct {
	NameHash uint32 // MurmurHash2 of the lowercase entry name
	Offset   int64  // Offset in pack file where the record for this entry begins
}

// DirectoryRecord represents a directory within the GGPK archive.
type DirectoryRecord struct {
	BaseRecord
	Name    string
	Hash    [HashSize]byte
	Entries []DirectoryEntry

	nameChars uint32 // includes the terminator
}

func (*DirectoryRecord) Tag() uint32 { return PDirRecordTag }

// entriesBegin is the file position of the first DirectoryEntry.
func (d *DirectoryRecord) entriesBegin(charSize uint32) int64 {
	return d.Offset + RecordHeaderSize + 4 + 4 + HashSize + int64(d.nameChars*charSize)
}

// FileRecord represents a file stored within the GGPK archive.
type FileRecord struct {
	BaseRecord
	Name       string
	Hash       [HashSize]byte // SHA256 of the content
	DataBegin  int64          // Offset where the file content begins
	DataLength int64

	// Footprint is the size of the region the record owns. It starts equal to
	// Length and stays put when content shrinks in place.
	Footprint int64

	// Data is only populated for writes; reads leave it nil.
	Data []byte

	nameChars uint32
}

func (*FileRecord) Tag() uint32 { return FileRecordTag }

// HeaderSize is everything in the record before the content.
func (f *FileRecord) HeaderSize() int64 {
	return f.DataBegin - f.Offset
}

// Capacity is the largest content the record can take without moving.
func (f *FileRecord) Capacity() int64 {
	return f.Footprint - f.HeaderSize()
}

var (
	_ Record = (*HeaderRecord)(nil)
	_ Record = (*FreeRecord)(nil)
	_ Record = (*DirectoryRecord)(nil)
	_ Record = (*FileRecord)(nil)
)
