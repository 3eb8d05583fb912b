package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ErrMalformedIndex is returned when index data cannot be parsed.
var ErrMalformedIndex = errors.New("malformed bundle index")

// Index is the manifest mapping logical paths to bundle locations.
type Index struct {
	Bundles     []*Record
	Files       []*FileRecord // in stored order
	Directories []*DirectoryRecord

	// pathRepBundle is the compressed path representation, kept verbatim.
	pathRepBundle []byte
	byHash        map[uint64]*FileRecord
	sorted        []*FileRecord // files with a path, sorted by path
}

// Load decodes an _.index.bin file: a bundle wrapping the index payload.
func Load(raw []byte) (*Index, error) {
	payload, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("unable to read index bundle: %w", err)
	}
	return Parse(payload)
}

// indexReader walks the index payload with bounds checks.
type indexReader struct {
	data []byte
	p    int
	err  error
}

func (r *indexReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.p+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at %d, have %d", ErrMalformedIndex, n, r.p, len(r.data)-r.p)
		return nil
	}
	b := r.data[r.p : r.p+n]
	r.p += n
	return b
}

func (r *indexReader) i32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (r *indexReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *indexReader) count(what string) int {
	n := r.i32()
	if r.err == nil && n < 0 {
		r.err = fmt.Errorf("%w: negative %s count %d", ErrMalformedIndex, what, n)
	}
	return int(n)
}

// Parse reads a decompressed index payload and resolves file paths.
func Parse(indexData []byte) (*Index, error) {
	r := &indexReader{data: indexData}
	idx := &Index{}

	bundleCount := r.count("bundle")
	for i := 0; i < bundleCount && r.err == nil; i++ {
		nameLen := r.i32()
		name := string(r.take(int(nameLen)))
		size := r.i32()
		idx.Bundles = append(idx.Bundles, &Record{Index: i, Path: name, UncompressedSize: size})
	}

	fileCount := r.count("file")
	idx.byHash = make(map[uint64]*FileRecord, max(fileCount, 0))
	for i := 0; i < fileCount && r.err == nil; i++ {
		hash := r.u64()
		bundleID := r.i32()
		offset := r.i32()
		size := r.i32()
		if r.err != nil {
			break
		}
		if bundleID < 0 || int(bundleID) >= len(idx.Bundles) {
			return nil, fmt.Errorf("%w: file %016X references bundle %d of %d", ErrMalformedIndex, hash, bundleID, len(idx.Bundles))
		}
		if _, exists := idx.byHash[hash]; exists {
			return nil, fmt.Errorf("%w: duplicate file hash %016X", ErrMalformedIndex, hash)
		}
		fr := &FileRecord{
			PathHash: hash,
			Bundle:   idx.Bundles[bundleID],
			Offset:   offset,
			Size:     size,
		}
		idx.Files = append(idx.Files, fr)
		idx.byHash[hash] = fr
	}

	dirCount := r.count("directory")
	for i := 0; i < dirCount && r.err == nil; i++ {
		idx.Directories = append(idx.Directories, &DirectoryRecord{
			PathHash:      r.u64(),
			Offset:        r.i32(),
			Size:          r.i32(),
			RecursiveSize: r.i32(),
		})
	}
	if r.err != nil {
		return nil, r.err
	}

	idx.pathRepBundle = indexData[r.p:]
	if len(idx.pathRepBundle) == 0 {
		return nil, fmt.Errorf("%w: missing path representation bundle", ErrMalformedIndex)
	}

	if err := idx.resolvePaths(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) resolvePaths() error {
	pathData, err := Decode(idx.pathRepBundle)
	if err != nil {
		return fmt.Errorf("unable to read path representation bundle: %w", err)
	}

	unresolved := 0
	for _, d := range idx.Directories {
		end := int64(d.Offset) + int64(d.Size)
		if d.Offset < 0 || end > int64(len(pathData)) {
			return fmt.Errorf("%w: path block %016X spans %d..%d of %d", ErrMalformedIndex, d.PathHash, d.Offset, end, len(pathData))
		}
		for _, path := range readPathspec(pathData[d.Offset:end]) {
			fr, ok := idx.byPath(path)
			if !ok {
				// not every listed path has a file record
				unresolved++
				continue
			}
			fr.Path = path
			fr.Directory = d
		}
	}

	idx.sorted = idx.sorted[:0]
	for _, fr := range idx.Files {
		if fr.Path != "" {
			idx.sorted = append(idx.sorted, fr)
		}
	}
	sort.Slice(idx.sorted, func(i, j int) bool {
		return idx.sorted[i].Path < idx.sorted[j].Path
	})

	slog.Debug("Bundle index loaded",
		"bundles", len(idx.Bundles),
		"files", len(idx.Files),
		"paths", len(idx.sorted),
		"unresolved", unresolved)
	return nil
}

func readPathspec(data []byte) []string {
	p := int(0)
	phase := 1
	names := make([]string, 0, 128)
	output := make([]string, 0, 128)

	for p+4 <= len(data) {
		n := int(binary.LittleEndian.Uint32(data[p:]))
		p += 4
		if n == 0 {
			phase = 1 - phase
			continue
		}

		str := readPathspecString(data, &p)
		if n-1 < len(names) {
			str = names[n-1] + str
		}
		if phase == 0 {
			names = append(names, str)
		} else {
			output = append(output, str)
		}
	}

	return output
}

func readPathspecString(data []byte, offset *int) string {
	p := *offset
	for p < len(data) && data[p] != 0 {
		p++
	}
	s := string(data[*offset:p])
	*offset = p + 1
	return s
}

// Paths returns every resolved file, sorted by path.
func (idx *Index) Paths() []*FileRecord {
	return idx.sorted
}

// FileByPath finds a file by its exact logical path.
func (idx *Index) FileByPath(path string) (*FileRecord, bool) {
	files := idx.sorted
	i := sort.Search(len(files), func(i int) bool {
		return files[i].Path >= path
	})
	if i < len(files) && files[i].Path == path {
		return files[i], true
	}
	return idx.byPath(path)
}

// SmallestBundle returns the bundle with the least uncompressed data, the
// preferred target for new content.
func (idx *Index) SmallestBundle() *Record {
	var smallest *Record
	for _, b := range idx.Bundles {
		if smallest == nil || b.UncompressedSize < smallest.UncompressedSize {
			smallest = b
		}
	}
	return smallest
}

// BundleByPath finds a bundle record, case-insensitively.
func (idx *Index) BundleByPath(path string) (*Record, bool) {
	for _, b := range idx.Bundles {
		if strings.EqualFold(b.Path, path) {
			return b, true
		}
	}
	return nil, false
}

// Serialize writes the index payload in the layout Parse reads.
func (idx *Index) Serialize() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	binary.Write(&buf, le, int32(len(idx.Bundles)))
	for _, b := range idx.Bundles {
		binary.Write(&buf, le, int32(len(b.Path)))
		buf.WriteString(b.Path)
		binary.Write(&buf, le, b.UncompressedSize)
	}

	binary.Write(&buf, le, int32(len(idx.Files)))
	for _, f := range idx.Files {
		binary.Write(&buf, le, f.PathHash)
		binary.Write(&buf, le, int32(f.Bundle.Index))
		binary.Write(&buf, le, f.Offset)
		binary.Write(&buf, le, f.Size)
	}

	binary.Write(&buf, le, int32(len(idx.Directories)))
	for _, d := range idx.Directories {
		binary.Write(&buf, le, d.PathHash)
		binary.Write(&buf, le, d.Offset)
		binary.Write(&buf, le, d.Size)
		binary.Write(&buf, le, d.RecursiveSize)
	}

	buf.Write(idx.pathRepBundle)
	return buf.Bytes()
}

// Save returns the index as an _.index.bin bundle.
func (idx *Index) Save() []byte {
	return Encode(idx.Serialize())
}
