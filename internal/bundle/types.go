package bundle

// Record is a bundle listed in the index. Its compressed bytes live in a
// file named Path + ".bundle.bin".
type Record struct {
	Index            int    // position in the index's bundle list
	Path             string // without the ".bundle.bin" suffix
	UncompressedSize int32
}

// FileName is the name of the file holding the bundle's compressed bytes.
func (r *Record) FileName() string {
	return r.Path + ".bundle.bin"
}

// FileRecord locates one logical file inside a bundle's decompressed payload.
type FileRecord struct {
	PathHash uint64
	Bundle   *Record
	Offset   int32
	Size     int32

	// Path is filled in from the path representation; empty until then.
	Path string
	// Directory is the path representation block that listed Path.
	Directory *DirectoryRecord
}

// DirectoryRecord describes a block of the path representation bundle.
type DirectoryRecord struct {
	PathHash      uint64
	Offset        int32
	Size          int32
	RecursiveSize int32
}
