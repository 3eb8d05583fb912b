package ggpk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	encunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// Codec reads and writes records on the container stream. It owns the
// stream position: every method seeks before touching the stream, so callers
// never rely on where a previous call left it.
type Codec struct {
	rws     io.ReadWriteSeeker
	version uint32

	stringReadBuf  []byte
	utf16LEDecoder transform.Transformer
	utf32LEDecoder transform.Transformer
	utf16LEEncoder transform.Transformer
	utf32LEEncoder transform.Transformer
}

// NewCodec wraps a container stream. Names are decoded as UTF-16LE until
// SetVersion says otherwise.
func NewCodec(rws io.ReadWriteSeeker) *Codec {
	return &Codec{
		rws:            rws,
		version:        3,
		stringReadBuf:  make([]byte, 1024),
		utf16LEDecoder: encunicode.UTF16(encunicode.LittleEndian, encunicode.IgnoreBOM).NewDecoder(),
		utf32LEDecoder: utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM).NewDecoder(),
		utf16LEEncoder: encunicode.UTF16(encunicode.LittleEndian, encunicode.IgnoreBOM).NewEncoder(),
		utf32LEEncoder: utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM).NewEncoder(),
	}
}

// SetVersion selects the name encoding: version 4 (Mac) uses UTF-32LE,
// everything else UTF-16LE.
func (c *Codec) SetVersion(version uint32) {
	c.version = version
}

// Version returns the container version the codec encodes names for.
func (c *Codec) Version() uint32 {
	return c.version
}

func (c *Codec) charSize() uint32 {
	if c.version == 4 {
		return 4
	}
	return 2
}

// readRecordHeaderAndSeek reads the common length and tag from a record at the given offset.
// The stream is left at the start of the record's body.
func (c *Codec) readRecordHeaderAndSeek(offset int64) (length uint32, tag uint32, err error) {
	if _, err = c.rws.Seek(offset, io.SeekStart); err != nil {
		return 0, 0, fmt.Errorf("seek to offset %d failed: %w", offset, err)
	}

	var head [RecordHeaderSize]byte
	if _, err = io.ReadFull(c.rws, head[:]); err != nil {
		return 0, 0, fmt.Errorf("failed to read record header at offset %d: %w", offset, err)
	}
	return GGPKEndian.Uint32(head[0:4]), GGPKEndian.Uint32(head[4:8]), nil
}

// ReadRecord reads and identifies the record at offset. An unknown tag is the
// one error that always means the container is corrupt.
func (c *Codec) ReadRecord(offset int64) (Record, error) {
	length, tag, err := c.readRecordHeaderAndSeek(offset)
	if err != nil {
		return nil, err
	}
	if length < RecordHeaderSize {
		return nil, corruptf(offset, tag, "record length %d smaller than header", length)
	}

	base := BaseRecord{Offset: offset, Length: length}
	switch tag {
	case GGPKRecordTag:
		return c.parseHeaderRecordBody(base)
	case PDirRecordTag:
		return c.parseDirectoryRecordBody(base)
	case FileRecordTag:
		return c.parseFileRecordBody(base)
	case FreeRecordTag:
		return c.parseFreeRecordBody(base)
	default:
		return nil, corruptf(offset, tag, "unknown record tag %X", tag)
	}
}

// ReadHeader reads the GGPK record and switches the codec to its version.
func (c *Codec) ReadHeader(offset int64) (*HeaderRecord, error) {
	rec, err := c.ReadRecord(offset)
	if err != nil {
		return nil, err
	}
	header, ok := rec.(*HeaderRecord)
	if !ok {
		return nil, corruptf(offset, rec.Tag(), "expected GGPK record")
	}
	c.SetVersion(header.Version)
	return header, nil
}

func (c *Codec) parseHeaderRecordBody(base BaseRecord) (*HeaderRecord, error) {
	if base.Length < HeaderRecordLength {
		return nil, corruptf(base.Offset, GGPKRecordTag, "header record length %d", base.Length)
	}
	record := &HeaderRecord{BaseRecord: base}
	var body struct {
		Version             uint32
		RootDirectoryOffset int64
		FirstFreeOffset     int64
	}
	if err := binary.Read(c.rws, GGPKEndian, &body); err != nil {
		return nil, fmt.Errorf("failed to read GGPK record at %d: %w", base.Offset, err)
	}
	record.Version = body.Version
	record.RootDirectoryOffset = body.RootDirectoryOffset
	record.FirstFreeOffset = body.FirstFreeOffset
	return record, nil
}

func (c *Codec) parseFreeRecordBody(base BaseRecord) (*FreeRecord, error) {
	if base.Length < MinFreeRecordLength {
		return nil, corruptf(base.Offset, FreeRecordTag, "free record length %d below minimum %d", base.Length, MinFreeRecordLength)
	}
	record := &FreeRecord{BaseRecord: base}
	if err := binary.Read(c.rws, GGPKEndian, &record.NextFreeOffset); err != nil {
		return nil, fmt.Errorf("failed to read FreeRecord NextFreeOffset at %d: %w", base.Offset, err)
	}
	return record, nil
}

func (c *Codec) parseFileRecordBody(base BaseRecord) (*FileRecord, error) {
	record := &FileRecord{BaseRecord: base}

	if err := binary.Read(c.rws, GGPKEndian, &record.nameChars); err != nil {
		return nil, fmt.Errorf("failed to read FileRecord NameLength at %d: %w", base.Offset, err)
	}
	if _, err := io.ReadFull(c.rws, record.Hash[:]); err != nil {
		return nil, fmt.Errorf("failed to read FileRecord Hash at %d: %w", base.Offset, err)
	}

	headerSize := int64(RecordHeaderSize+4+HashSize) + int64(record.nameChars)*int64(c.charSize())
	if headerSize > int64(base.Length) {
		return nil, corruptf(base.Offset, FileRecordTag, "name length %d overruns record length %d", record.nameChars, base.Length)
	}

	name, err := c.readString(record.nameChars)
	if err != nil {
		return nil, fmt.Errorf("failed to read FileRecord Name at %d: %w", base.Offset, err)
	}
	record.Name = name
	record.DataBegin = base.Offset + headerSize
	record.DataLength = int64(base.Length) - headerSize
	record.Footprint = int64(base.Length)
	return record, nil
}

func (c *Codec) parseDirectoryRecordBody(base BaseRecord) (*DirectoryRecord, error) {
	record := &DirectoryRecord{BaseRecord: base}

	var head struct {
		NameLength uint32
		EntryCount uint32
		Hash       [HashSize]byte
	}
	if err := binary.Read(c.rws, GGPKEndian, &head); err != nil {
		return nil, fmt.Errorf("failed to read DirectoryRecord at %d: %w", base.Offset, err)
	}
	record.nameChars = head.NameLength
	record.Hash = head.Hash

	need := int64(RecordHeaderSize+4+4+HashSize) +
		int64(head.NameLength)*int64(c.charSize()) +
		int64(head.EntryCount)*directoryEntrySize
	if need > int64(base.Length) {
		return nil, corruptf(base.Offset, PDirRecordTag, "%d entries overrun record length %d", head.EntryCount, base.Length)
	}

	name, err := c.readString(head.NameLength)
	if err != nil {
		return nil, fmt.Errorf("failed to read DirectoryRecord Name at %d: %w", base.Offset, err)
	}
	record.Name = name

	raw := make([]byte, int(head.EntryCount)*directoryEntrySize)
	if _, err := io.ReadFull(c.rws, raw); err != nil {
		return nil, fmt.Errorf("failed to read %d directory entries at %d: %w", head.EntryCount, base.Offset, err)
	}
	record.Entries = make([]DirectoryEntry, head.EntryCount)
	for i := range record.Entries {
		p := raw[i*directoryEntrySize:]
		record.Entries[i] = DirectoryEntry{
			NameHash: GGPKEndian.Uint32(p[0:4]),
			Offset:   int64(GGPKEndian.Uint64(p[4:12])),
		}
	}
	return record, nil
}

// readString reads a NUL-terminated name of nameChars code units, terminator
// included.
func (c *Codec) readString(nameChars uint32) (string, error) {
	if nameChars == 0 {
		return "", nil
	}
	numBytes := int(nameChars * c.charSize())
	if cap(c.stringReadBuf) < numBytes {
		c.stringReadBuf = make([]byte, numBytes)
	} else {
		c.stringReadBuf = c.stringReadBuf[:numBytes]
	}
	if _, err := io.ReadFull(c.rws, c.stringReadBuf); err != nil {
		return "", err
	}

	decoder := c.utf16LEDecoder
	if c.version == 4 {
		decoder = c.utf32LEDecoder
	}
	utf8Bytes, _, err := transform.Bytes(decoder, c.stringReadBuf[:numBytes-int(c.charSize())])
	if err != nil {
		return "", fmt.Errorf("failed to decode name: %w", err)
	}
	return string(utf8Bytes), nil
}

// encodeName returns the name in the container encoding with its terminator,
// and the length in code units (terminator included).
func (c *Codec) encodeName(name string) ([]byte, uint32, error) {
	encoder := c.utf16LEEncoder
	if c.version == 4 {
		encoder = c.utf32LEEncoder
	}
	encoded, _, err := transform.Bytes(encoder, []byte(name))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode name %q: %w", name, err)
	}
	encoded = append(encoded, make([]byte, c.charSize())...)
	return encoded, uint32(len(encoded)) / c.charSize(), nil
}

// NameHash hashes a child name the way directory entries store it.
func (c *Codec) NameHash(name string) uint32 {
	encoded, _, err := c.encodeName(strings.ToLower(name))
	if err != nil {
		return 0
	}
	return Murmur2(encoded[:len(encoded)-int(c.charSize())], 0)
}

// FileHeaderSize is the size of a FILE record for name without content.
func (c *Codec) FileHeaderSize(name string) (int64, error) {
	_, chars, err := c.encodeName(name)
	if err != nil {
		return 0, err
	}
	return int64(RecordHeaderSize+4+HashSize) + int64(chars)*int64(c.charSize()), nil
}

// WriteRecord serializes rec at rec.Offset. FILE records are written with
// their Data; FREE records only get their header rewritten, the rest of the
// region is padding.
func (c *Codec) WriteRecord(rec Record) error {
	var buf bytes.Buffer
	base := rec.base()

	switch r := rec.(type) {
	case *HeaderRecord:
		binary.Write(&buf, GGPKEndian, r.Length)
		binary.Write(&buf, GGPKEndian, uint32(GGPKRecordTag))
		binary.Write(&buf, GGPKEndian, r.Version)
		binary.Write(&buf, GGPKEndian, r.RootDirectoryOffset)
		binary.Write(&buf, GGPKEndian, r.FirstFreeOffset)

	case *FreeRecord:
		if r.Length < MinFreeRecordLength {
			return fmt.Errorf("free record at %d: length %d below minimum %d", r.Offset, r.Length, MinFreeRecordLength)
		}
		binary.Write(&buf, GGPKEndian, r.Length)
		binary.Write(&buf, GGPKEndian, uint32(FreeRecordTag))
		binary.Write(&buf, GGPKEndian, r.NextFreeOffset)

	case *DirectoryRecord:
		name, chars, err := c.encodeName(r.Name)
		if err != nil {
			return err
		}
		r.nameChars = chars
		want := int64(RecordHeaderSize+4+4+HashSize) + int64(len(name)) + int64(len(r.Entries))*directoryEntrySize
		if int64(r.Length) != want {
			return fmt.Errorf("directory record %q at %d: length %d, encoded size %d", r.Name, r.Offset, r.Length, want)
		}
		binary.Write(&buf, GGPKEndian, r.Length)
		binary.Write(&buf, GGPKEndian, uint32(PDirRecordTag))
		binary.Write(&buf, GGPKEndian, chars)
		binary.Write(&buf, GGPKEndian, uint32(len(r.Entries)))
		buf.Write(r.Hash[:])
		buf.Write(name)
		for _, e := range r.Entries {
			binary.Write(&buf, GGPKEndian, e.NameHash)
			binary.Write(&buf, GGPKEndian, e.Offset)
		}

	case *FileRecord:
		name, chars, err := c.encodeName(r.Name)
		if err != nil {
			return err
		}
		if int64(len(r.Data)) != r.DataLength {
			return fmt.Errorf("file record %q at %d: have %d bytes of data, record says %d", r.Name, r.Offset, len(r.Data), r.DataLength)
		}
		headerSize := int64(RecordHeaderSize+4+HashSize) + int64(len(name))
		if int64(r.Length) != headerSize+r.DataLength {
			return fmt.Errorf("file record %q at %d: length %d, encoded size %d", r.Name, r.Offset, r.Length, headerSize+r.DataLength)
		}
		r.nameChars = chars
		r.DataBegin = r.Offset + headerSize
		binary.Write(&buf, GGPKEndian, r.Length)
		binary.Write(&buf, GGPKEndian, uint32(FileRecordTag))
		binary.Write(&buf, GGPKEndian, chars)
		buf.Write(r.Hash[:])
		buf.Write(name)
		buf.Write(r.Data)

	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}

	return c.writeAt(buf.Bytes(), base.Offset)
}

// WriteEntryOffset rewrites the offset of entry i of dir in place.
func (c *Codec) WriteEntryOffset(dir *DirectoryRecord, i int) error {
	if i < 0 || i >= len(dir.Entries) {
		return fmt.Errorf("directory %q has no entry %d", dir.Name, i)
	}
	var b [8]byte
	GGPKEndian.PutUint64(b[:], uint64(dir.Entries[i].Offset))
	pos := dir.entriesBegin(c.charSize()) + int64(i)*directoryEntrySize + 4
	return c.writeAt(b[:], pos)
}

// ReadData reads the content of a FILE record.
func (c *Codec) ReadData(f *FileRecord) ([]byte, error) {
	if f.DataLength < 0 {
		return nil, fmt.Errorf("file record %q has negative data length %d", f.Name, f.DataLength)
	}
	data := make([]byte, f.DataLength)
	if _, err := c.ReadAt(data, f.DataBegin); err != nil {
		return nil, fmt.Errorf("failed to read data for file %s: %w", f.Name, err)
	}
	return data, nil
}

// ReadAt reads len(p) bytes at off. It moves the shared stream position.
func (c *Codec) ReadAt(p []byte, off int64) (int, error) {
	if _, err := c.rws.Seek(off, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek to offset %d failed: %w", off, err)
	}
	return io.ReadFull(c.rws, p)
}

// Size reports the current end of the stream.
func (c *Codec) Size() (int64, error) {
	return c.rws.Seek(0, io.SeekEnd)
}

func (c *Codec) writeAt(p []byte, off int64) error {
	if _, err := c.rws.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek to offset %d failed: %w", off, err)
	}
	if _, err := c.rws.Write(p); err != nil {
		return fmt.Errorf("write %d bytes at offset %d: %w", len(p), off, err)
	}
	return nil
}
