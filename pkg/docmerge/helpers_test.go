package docmerge

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

func wordDocument(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="` + wordNamespace + `"><w:body>` + body + `</w:body></w:document>`
}

func wordHeader(body string) string {
	return `<w:hdr xmlns:w="` + wordNamespace + `">` + body + `</w:hdr>`
}

func wordFooter(body string) string {
	return `<w:ftr xmlns:w="` + wordNamespace + `">` + body + `</w:ftr>`
}

func para(text string) string {
	return `<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func cell(text string) string {
	return `<w:tc>` + para(text) + `</w:tc>`
}

// writeDocx writes a minimal .docx holding parts and returns its path.
func writeDocx(t *testing.T, dir string, parts map[string]string) string {
	t.Helper()

	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, name := range append([]string{"[Content_Types].xml", "_rels/.rels"}, names...) {
		content, ok := parts[name]
		if !ok {
			content = `<?xml version="1.0"?><Types/>`
		}
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	path := filepath.Join(dir, "template.docx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// readPart returns one entry of the .docx at path.
func readPart(t *testing.T, path, name string) string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(data)
	}
	t.Fatalf("entry %s not found in %s", name, path)
	return ""
}

func requireWellFormed(t *testing.T, xml string) {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml), "not well formed:\n%s", xml)
}

// openTemplate writes parts to a fresh directory and opens them with a
// quiet engine whose working copies go to the returned work dir.
func openTemplate(t *testing.T, parts map[string]string, opts ...Option) (*Template, string) {
	t.Helper()
	dir := t.TempDir()
	workDir := filepath.Join(dir, "work")
	require.NoError(t, os.Mkdir(workDir, 0o755))

	base := []Option{
		WithConfig(&Config{TempDir: workDir}),
		WithLogger(NewLogger(io.Discard, LogOff)),
	}
	tmpl, err := Open(writeDocx(t, dir, parts), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tmpl.Close() })
	return tmpl, workDir
}

func mainPart(t *testing.T, tmpl *Template) string {
	t.Helper()
	xml, err := tmpl.MainPart()
	require.NoError(t, err)
	return xml
}
