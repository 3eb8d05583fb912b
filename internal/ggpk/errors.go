package ggpk

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by container operations.
var (
	// ErrCorruptFormat is returned when the container cannot be trusted:
	// unknown record tags, broken free-list chains, or bundle records the
	// manifest references but the container does not hold.
	ErrCorruptFormat = errors.New("corrupt ggpk format")

	// ErrUnimplemented is returned by operations that exist only as a contract.
	ErrUnimplemented = errors.New("not implemented")

	// ErrNotDirectory is returned when a directory operation is given a file node.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile is returned when a content operation is given a directory node.
	ErrNotFile = errors.New("not a file")
)

// CorruptError describes where a container stopped making sense.
type CorruptError struct {
	Offset int64
	Tag    uint32
	Reason string
}

func (e *CorruptError) Error() string {
	if e.Tag != 0 {
		return fmt.Sprintf("corrupt ggpk format at offset %d (tag %q): %s", e.Offset, TagString(e.Tag), e.Reason)
	}
	return fmt.Sprintf("corrupt ggpk format at offset %d: %s", e.Offset, e.Reason)
}

func (e *CorruptError) Unwrap() error {
	return ErrCorruptFormat
}

func corruptf(offset int64, tag uint32, format string, args ...any) error {
	return &CorruptError{Offset: offset, Tag: tag, Reason: fmt.Sprintf(format, args...)}
}
