// Package archive gives entry-level read/write access to a packaged document
// (a ZIP container such as .docx) through an isolated working copy.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archive is an open working copy of a packaged document. Entries are read
// lazily from the copy and written entries are held in memory until Close.
//
// An Archive is not safe for concurrent use.
type Archive struct {
	sourcePath  string
	workingPath string
	reader      *zip.ReadCloser
	files       map[string]*zip.File
	order       []string
	written     map[string][]byte
	closed      bool
}

// Open copies sourcePath to a uniquely named file in workDir (os.TempDir
// when empty) and opens the copy. The source file is never modified.
func Open(sourcePath, workDir string) (*Archive, error) {
	workingPath, err := copyToWorkDir(sourcePath, workDir)
	if err != nil {
		return nil, &ArchiveOpenError{Path: sourcePath, Cause: err}
	}

	reader, err := zip.OpenReader(workingPath)
	if err != nil {
		_ = os.Remove(workingPath)
		return nil, &ArchiveOpenError{Path: sourcePath, Cause: fmt.Errorf("failed to read zip file: %w", err)}
	}

	a := &Archive{
		sourcePath:  sourcePath,
		workingPath: workingPath,
		reader:      reader,
		files:       make(map[string]*zip.File, len(reader.File)),
		order:       make([]string, 0, len(reader.File)),
		written:     make(map[string][]byte),
	}

	// Index all parts by name
	for _, file := range reader.File {
		if _, dup := a.files[file.Name]; dup {
			_ = reader.Close()
			_ = os.Remove(workingPath)
			return nil, &ArchiveOpenError{Path: sourcePath, Cause: fmt.Errorf("duplicate entry %q", file.Name)}
		}
		a.files[file.Name] = file
		a.order = append(a.order, file.Name)
	}

	return a, nil
}

func copyToWorkDir(sourcePath, workDir string) (string, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(workDir, "docmerge-*"+filepath.Ext(sourcePath))
	if err != nil {
		return "", fmt.Errorf("failed to create working copy: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("failed to copy source: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("failed to copy source: %w", err)
	}
	return dst.Name(), nil
}

// SourcePath returns the path the archive was opened from.
func (a *Archive) SourcePath() string {
	return a.sourcePath
}

// WorkingPath returns the path of the working copy.
func (a *Archive) WorkingPath() string {
	return a.workingPath
}

// Entries returns the entry names in archive order, written entries last.
func (a *Archive) Entries() []string {
	names := make([]string, len(a.order))
	copy(names, a.order)
	return names
}

// Has reports whether the archive holds an entry with the given name.
func (a *Archive) Has(name string) bool {
	if _, ok := a.written[name]; ok {
		return true
	}
	_, ok := a.files[name]
	return ok
}

// ReadEntry returns the content of an entry.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if data, ok := a.written[name]; ok {
		return bytes.Clone(data), nil
	}

	file, ok := a.files[name]
	if !ok {
		return nil, &EntryNotFoundError{Path: a.sourcePath, Entry: name}
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open part %s: %w", name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read part %s: %w", name, err)
	}
	return content, nil
}

// WriteEntry replaces the content of an entry, adding it when absent.
func (a *Archive) WriteEntry(name string, data []byte) error {
	if a.closed {
		return ErrClosed
	}
	if name == "" || strings.HasPrefix(name, "/") {
		return fmt.Errorf("invalid entry name %q", name)
	}
	if !a.Has(name) {
		a.order = append(a.order, name)
	}
	a.written[name] = bytes.Clone(data)
	return nil
}

// Close writes the container back to the working copy and returns its path.
// Unchanged entries are copied without recompression. The new container is
// assembled in a sibling temp file and renamed over the working copy, so a
// failed Close never leaves a truncated archive behind.
func (a *Archive) Close() (string, error) {
	if a.closed {
		return "", ErrClosed
	}
	a.closed = true

	if err := a.rewrite(); err != nil {
		_ = a.reader.Close()
		return "", &ArchiveCloseError{Path: a.workingPath, Cause: err}
	}
	return a.workingPath, nil
}

func (a *Archive) rewrite() error {
	tmp, err := os.CreateTemp(filepath.Dir(a.workingPath), ".docmerge-save-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	zw := zip.NewWriter(tmp)
	for _, name := range a.order {
		data, written := a.written[name]
		file := a.files[name]

		if !written {
			if err := zw.Copy(file); err != nil {
				return fail(fmt.Errorf("copy %s: %w", name, err))
			}
			continue
		}

		header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()}
		if file != nil {
			header.Modified = file.Modified
			header.Comment = file.Comment
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return fail(fmt.Errorf("create zip entry %s: %w", name, err))
		}
		if _, err := w.Write(data); err != nil {
			return fail(fmt.Errorf("write %s: %w", name, err))
		}
	}

	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("close zip writer: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := a.reader.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close working copy: %w", err)
	}
	if err := os.Rename(tmpPath, a.workingPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace working copy: %w", err)
	}
	return nil
}

// Discard closes the archive without saving and removes the working copy.
func (a *Archive) Discard() error {
	if !a.closed {
		a.closed = true
		_ = a.reader.Close()
	}
	if err := os.Remove(a.workingPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove working copy: %w", err)
	}
	return nil
}

// SaveAs moves a closed working copy to destPath, replacing any file there.
func SaveAs(workingPath, destPath string) error {
	if err := os.Remove(destPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing %s: %w", destPath, err)
	}
	if err := os.Rename(workingPath, destPath); err == nil {
		return nil
	}

	// rename fails across file systems; fall back to copying
	if err := copyFile(workingPath, destPath); err != nil {
		return fmt.Errorf("move %s to %s: %w", workingPath, destPath, err)
	}
	if err := os.Remove(workingPath); err != nil {
		return fmt.Errorf("remove working copy: %w", err)
	}
	return nil
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(to)
		return err
	}
	return dst.Close()
}
