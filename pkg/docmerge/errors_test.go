package docmerge

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentError(t *testing.T) {
	tests := []struct {
		name string
		err  *DocumentError
		want string
	}{
		{
			name: "path and cause",
			err:  &DocumentError{Operation: "open", Path: "a.docx", Cause: os.ErrNotExist},
			want: "document error during open of 'a.docx': file does not exist",
		},
		{
			name: "path only",
			err:  &DocumentError{Operation: "save", Path: "a.docx"},
			want: "document error during save of 'a.docx'",
		},
		{
			name: "cause only",
			err:  &DocumentError{Operation: "close", Cause: errors.New("busy")},
			want: "document error during close: busy",
		},
		{
			name: "operation only",
			err:  &DocumentError{Operation: "close"},
			want: "document error during close",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	err := NewDocumentError("open", "a.docx", os.ErrNotExist)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestErrorHelpers(t *testing.T) {
	wrap := func(err error) error {
		return fmt.Errorf("outer: %w", NewDocumentError("op", "p", err))
	}

	assert.True(t, IsDocumentError(wrap(nil)))
	assert.True(t, IsArchiveError(wrap(&ArchiveOpenError{Path: "p", Cause: os.ErrNotExist})))
	assert.True(t, IsArchiveError(wrap(&ArchiveCloseError{Path: "p"})))
	assert.True(t, IsPlaceholderNotFound(wrap(&PlaceholderNotFoundError{Placeholder: "${x}"})))
	assert.True(t, IsStructuralError(&StructuralBoundaryError{Placeholder: "${x}"}))
	assert.True(t, IsStructuralError(&BlockBoundaryError{Block: "b"}))
	assert.True(t, IsBlockNotFound(&BlockNotFoundError{Block: "b"}))
	assert.True(t, IsTransformError(wrap(&TransformError{Stage: "params", Cause: errors.New("x")})))

	assert.False(t, IsDocumentError(errors.New("plain")))
	assert.False(t, IsArchiveError(ErrTemplateClosed))
	assert.False(t, IsStructuralError(&BlockNotFoundError{Block: "b"}))
}
