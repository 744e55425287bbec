package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleYAML = `
values:
  customer: ACME
  orderNo: 1042
computed:
  title: '"Order " + string(orderNo)'
rows:
  - anchor: item
    records:
      - {item: Widget, price: "10"}
      - {item: Gadget, price: "1.5"}
    computed:
      label: upper(item)
blocks:
  - name: notes
    records:
      - {note: fragile}
delete: [internal]
`

func TestLoadYAML(t *testing.T) {
	ds, err := LoadYAML(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"customer": "ACME", "orderNo": "1042"}, ds.Values)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "item", ds.Rows[0].Anchor)
	assert.Equal(t, []Record{{"item": "Widget", "price": "10"}, {"item": "Gadget", "price": "1.5"}}, ds.Rows[0].Records)
	assert.Equal(t, "upper(item)", ds.Rows[0].Computed["label"])
	assert.Equal(t, []string{"internal"}, ds.Delete)

	resolved, err := ds.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "Order 1042", resolved.Values["title"])
	assert.Equal(t, "GADGET", resolved.Rows[0].Records[1]["label"])
}

func TestLoadYAML_Errors(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("unknown: 1\n"))
	assert.ErrorContains(t, err, "failed to parse data")

	_, err = LoadYAML(strings.NewReader("rows:\n  - records: []\n"))
	assert.ErrorContains(t, err, "anchor is required")

	ds, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ds.Values)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"values": {"name": "Jane"}, "delete": ["x"]}`), 0o644))
	ds, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "Jane", ds.Values["name"])
	assert.Equal(t, []string{"x"}, ds.Delete)

	yamlPath := filepath.Join(dir, "data.YML")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o644))
	ds, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "ACME", ds.Values["customer"])

	_, err = Load(filepath.Join(dir, "data.csv"))
	assert.ErrorContains(t, err, "unsupported data file type")

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func writeWorkbook(t *testing.T, path string, sheets map[string][][]interface{}, order []string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			row := row
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{
		"computed": {
			{"net", "price * qty", "row item"},
			{"count", "2", ""},
		},
		"values": {
			{"customer", "ACME"},
			{"", "ignored"},
			{"empty"},
		},
		"row item": {
			{"item", "price", "qty", ""},
			{"Widget", 10, 2, "no header"},
			{"", "", ""},
			{"Gadget", 1.5, 4},
		},
		"block notes": {
			{"note"},
			{"fragile"},
		},
		"delete": {
			{"internal"},
		},
		"scratch": {
			{"whatever"},
		},
	}, []string{"computed", "values", "row item", "block notes", "delete", "scratch"})

	ds, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"customer": "ACME", "empty": ""}, ds.Values)
	assert.Equal(t, map[string]string{"count": "2"}, ds.Computed)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "item", ds.Rows[0].Anchor)
	assert.Equal(t, []Record{
		{"item": "Widget", "price": "10", "qty": "2"},
		{"item": "Gadget", "price": "1.5", "qty": "4"},
	}, ds.Rows[0].Records)
	assert.Equal(t, map[string]string{"net": "price * qty"}, ds.Rows[0].Computed)
	require.Len(t, ds.Blocks, 1)
	assert.Equal(t, []Record{{"note": "fragile"}}, ds.Blocks[0].Records)
	assert.Equal(t, []string{"internal"}, ds.Delete)

	resolved, err := ds.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "6", resolved.Rows[0].Records[1]["net"])
}

func TestLoadXLSX_Errors(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "scope.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{
		"computed": {{"net", "price * qty", "row nope"}},
	}, []string{"computed"})
	_, err := LoadXLSX(path)
	assert.ErrorContains(t, err, `unknown scope "row nope"`)

	path = filepath.Join(dir, "noexpr.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{
		"computed": {{"net"}},
	}, []string{"computed"})
	_, err = LoadXLSX(path)
	assert.ErrorContains(t, err, "has no expression")

	_, err = LoadXLSX(filepath.Join(dir, "missing.xlsx"))
	assert.ErrorContains(t, err, "failed to open workbook")
}
