package main

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:r><w:t>Dear ${name},</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>${name} owes ${amount}.</w:t></w:r></w:p>` +
	`</w:body></w:document>`

func writeTemplate(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "letter.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, part := range []struct{ name, body string }{
		{"[Content_Types].xml", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		{"word/document.xml", documentXML},
	} {
		w, err := zw.Create(part.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(part.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func readDocument(t *testing.T, path string) string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			var buf bytes.Buffer
			_, err = buf.ReadFrom(rc)
			require.NoError(t, err)
			return buf.String()
		}
	}
	t.Fatal("word/document.xml not found")
	return ""
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"version"}, &stdout, &stderr))
	assert.Equal(t, "docmerge version "+version+"\n", stdout.String())
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: docmerge")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: frobnicate")
}

func TestRun_Vars(t *testing.T) {
	t.Setenv("DOCMERGE_LOG_LEVEL", "error")
	dir := t.TempDir()
	t.Setenv("DOCMERGE_TEMP_DIR", dir)
	tmpl := writeTemplate(t, dir)

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"vars", tmpl}, &stdout, &stderr), stderr.String())
	assert.Equal(t, "amount\t1\nname\t2\n", stdout.String())
}

func TestRun_Render(t *testing.T) {
	t.Setenv("DOCMERGE_LOG_LEVEL", "error")
	dir := t.TempDir()
	t.Setenv("DOCMERGE_TEMP_DIR", dir)
	tmpl := writeTemplate(t, dir)

	data := filepath.Join(dir, "data.yaml")
	require.NoError(t, os.WriteFile(data, []byte("values:\n  name: Jane & Co\ncomputed:\n  amount: '\"$\" + string(40 + 2)'\n"), 0o644))
	out := filepath.Join(dir, "out.docx")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"render", "-data", data, "-o", out, tmpl}, &stdout, &stderr), stderr.String())

	xml := readDocument(t, out)
	assert.Contains(t, xml, "Dear Jane &amp; Co,")
	assert.Contains(t, xml, "Jane &amp; Co owes $42.")
	assert.Contains(t, readDocument(t, tmpl), "${name}", "source template must not change")
}

func TestRun_RenderErrors(t *testing.T) {
	t.Setenv("DOCMERGE_LOG_LEVEL", "error")
	dir := t.TempDir()
	t.Setenv("DOCMERGE_TEMP_DIR", dir)
	tmpl := writeTemplate(t, dir)

	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"missing output", []string{"render", tmpl}, "missing -o"},
		{"no template", []string{"render", "-o", "x.docx"}, "expected exactly one template"},
		{"bad param", []string{"render", "-param", "novalue", "-o", "x.docx", tmpl}, "not name=value"},
		{"bad data", []string{"render", "-data", filepath.Join(dir, "data.csv"), "-o", "x.docx", tmpl}, "unsupported data file type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 1, run(tt.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), tt.msg)
		})
	}
}
