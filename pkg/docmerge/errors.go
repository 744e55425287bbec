package docmerge

import (
	"errors"
	"fmt"

	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/archive"
	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/markup"
	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/xslt"
)

var (
	// ErrTemplateSaved is returned when a template is mutated after Save.
	ErrTemplateSaved = errors.New("template already saved")
	// ErrTemplateClosed is returned by every call after SaveAs or Close.
	ErrTemplateClosed = errors.New("template closed")
	// ErrInvalidCount is returned when a clone count is negative.
	ErrInvalidCount = markup.ErrInvalidCount
)

type (
	ArchiveOpenError          = archive.ArchiveOpenError
	ArchiveCloseError         = archive.ArchiveCloseError
	EntryNotFoundError        = archive.EntryNotFoundError
	PlaceholderNotFoundError  = markup.PlaceholderNotFoundError
	StructuralBoundaryError   = markup.StructuralBoundaryError
	BlockNotFoundError        = markup.BlockNotFoundError
	BlockBoundaryError        = markup.BlockBoundaryError
	AmbiguousPlaceholderError = markup.AmbiguousPlaceholderError
	TransformError            = xslt.TransformError
)

// DocumentError represents an error during document operations
type DocumentError struct {
	Operation string
	Path      string
	Cause     error
}

func (e *DocumentError) Error() string {
	if e.Path != "" && e.Cause != nil {
		return fmt.Sprintf("document error during %s of '%s': %v", e.Operation, e.Path, e.Cause)
	} else if e.Path != "" {
		return fmt.Sprintf("document error during %s of '%s'", e.Operation, e.Path)
	} else if e.Cause != nil {
		return fmt.Sprintf("document error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("document error during %s", e.Operation)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// NewDocumentError creates a new document error
func NewDocumentError(operation, path string, cause error) error {
	return &DocumentError{
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}

// IsDocumentError checks if an error is a document error
func IsDocumentError(err error) bool {
	var e *DocumentError
	return errors.As(err, &e)
}

// IsArchiveError checks if an error came from opening or finalizing the archive
func IsArchiveError(err error) bool {
	var oe *ArchiveOpenError
	var ce *ArchiveCloseError
	return errors.As(err, &oe) || errors.As(err, &ce)
}

// IsPlaceholderNotFound checks if an error reports a missing placeholder
func IsPlaceholderNotFound(err error) bool {
	var e *PlaceholderNotFoundError
	return errors.As(err, &e)
}

// IsStructuralError checks if an error reports an unusable span or block
func IsStructuralError(err error) bool {
	var se *StructuralBoundaryError
	var be *BlockBoundaryError
	var ae *AmbiguousPlaceholderError
	return errors.As(err, &se) || errors.As(err, &be) || errors.As(err, &ae)
}

// IsBlockNotFound checks if an error reports a missing block marker
func IsBlockNotFound(err error) bool {
	var e *BlockNotFoundError
	return errors.As(err, &e)
}

// IsTransformError checks if an error is an XSL transform error
func IsTransformError(err error) bool {
	var e *TransformError
	return errors.As(err, &e)
}
