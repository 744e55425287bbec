package archive

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on an archive that was already closed.
var ErrClosed = errors.New("archive already closed")

// ArchiveOpenError is returned when the source cannot be copied or the copy
// is not a readable container.
type ArchiveOpenError struct {
	Path  string
	Cause error
}

func (e *ArchiveOpenError) Error() string {
	return fmt.Sprintf("cannot open archive %s: %v", e.Path, e.Cause)
}

func (e *ArchiveOpenError) Unwrap() error {
	return e.Cause
}

// ArchiveCloseError is returned when the container cannot be finalized.
type ArchiveCloseError struct {
	Path  string
	Cause error
}

func (e *ArchiveCloseError) Error() string {
	return fmt.Sprintf("cannot finalize archive %s: %v", e.Path, e.Cause)
}

func (e *ArchiveCloseError) Unwrap() error {
	return e.Cause
}

// EntryNotFoundError is returned when a named entry is absent.
type EntryNotFoundError struct {
	Path  string
	Entry string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry %s not found in %s", e.Entry, e.Path)
}
