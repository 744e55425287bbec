package markup

import (
	"errors"
	"fmt"
)

// ErrInvalidCount is returned when a clone count is negative.
var ErrInvalidCount = errors.New("clone count must not be negative")

// PlaceholderNotFoundError is returned when the literal placeholder a row
// operation is anchored on does not occur in the buffer.
type PlaceholderNotFoundError struct {
	Placeholder string
}

func (e *PlaceholderNotFoundError) Error() string {
	return fmt.Sprintf("placeholder %s not found", e.Placeholder)
}

// StructuralBoundaryError is returned when no well-formed span can be
// established around a placeholder.
type StructuralBoundaryError struct {
	Placeholder string
	Offset      int
	Reason      string
}

func (e *StructuralBoundaryError) Error() string {
	return fmt.Sprintf("cannot locate span for %s at offset %d: %s", e.Placeholder, e.Offset, e.Reason)
}

// BlockNotFoundError is returned when a block marker is missing.
type BlockNotFoundError struct {
	Block  string
	Marker string
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("block %q: marker %s not found", e.Block, e.Marker)
}

// BlockBoundaryError is returned when a block's end marker only occurs
// before its start marker.
type BlockBoundaryError struct {
	Block       string
	StartOffset int
	EndOffset   int
}

func (e *BlockBoundaryError) Error() string {
	return fmt.Sprintf("block %q: end marker at offset %d precedes start marker at offset %d",
		e.Block, e.EndOffset, e.StartOffset)
}

// AmbiguousPlaceholderError is returned when a span about to be cloned holds a
// placeholder whose '#' cannot be told apart from a clone index.
type AmbiguousPlaceholderError struct {
	Name string
}

func (e *AmbiguousPlaceholderError) Error() string {
	return fmt.Sprintf("placeholder %q uses '#' outside a numeric clone suffix", e.Name)
}
