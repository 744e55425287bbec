package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Sheet names understood by LoadXLSX.
const (
	ValuesSheet      = "values"
	DeleteSheet      = "delete"
	ComputedSheet    = "computed"
	RowSheetPrefix   = "row "
	BlockSheetPrefix = "block "
)

// Load reads a dataset from a .yaml, .yml, .json or .xlsx file.
func Load(path string) (*Dataset, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open data file: %w", err)
		}
		defer f.Close()
		ds, err := LoadYAML(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return ds, nil
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported data file type %q", ext)
	}
}

// LoadYAML decodes a dataset from YAML. JSON input is accepted as well.
func LoadYAML(r io.Reader) (*Dataset, error) {
	ds := &Dataset{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(ds); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse data: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// LoadXLSX reads a dataset from a workbook.
//
// The "values" sheet holds name/value pairs in columns A and B. Each sheet
// named "row <anchor>" or "block <name>" holds a header row of placeholder
// names followed by one record per row. Column A of the "delete" sheet
// lists blocks to remove. The "computed" sheet holds name, expression and
// an optional scope ("row <anchor>" or "block <name>"; empty for values).
// Other sheets are ignored.
func LoadXLSX(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	ds := &Dataset{}
	var computed [][]string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}

		switch {
		case sheet == ValuesSheet:
			for _, row := range rows {
				if key := cellAt(row, 0); key != "" {
					if ds.Values == nil {
						ds.Values = make(map[string]string)
					}
					ds.Values[key] = cellAt(row, 1)
				}
			}
		case sheet == DeleteSheet:
			for _, row := range rows {
				if name := cellAt(row, 0); name != "" {
					ds.Delete = append(ds.Delete, name)
				}
			}
		case sheet == ComputedSheet:
			computed = rows
		case strings.HasPrefix(sheet, RowSheetPrefix):
			ds.Rows = append(ds.Rows, RowSet{
				Anchor:  strings.TrimSpace(strings.TrimPrefix(sheet, RowSheetPrefix)),
				Records: sheetRecords(rows),
			})
		case strings.HasPrefix(sheet, BlockSheetPrefix):
			ds.Blocks = append(ds.Blocks, BlockSet{
				Name:    strings.TrimSpace(strings.TrimPrefix(sheet, BlockSheetPrefix)),
				Records: sheetRecords(rows),
			})
		}
	}

	if err := attachComputed(ds, computed); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

// sheetRecords turns a header row plus data rows into records. Blank rows
// and columns without a header are skipped.
func sheetRecords(rows [][]string) []Record {
	if len(rows) == 0 {
		return nil
	}
	header := rows[0]
	var records []Record
	for _, row := range rows[1:] {
		rec := make(Record, len(header))
		blank := true
		for i, name := range header {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			v := cellAt(row, i)
			if v != "" {
				blank = false
			}
			rec[name] = v
		}
		if !blank {
			records = append(records, rec)
		}
	}
	return records
}

func attachComputed(ds *Dataset, rows [][]string) error {
	for i, row := range rows {
		name, expression, scope := cellAt(row, 0), cellAt(row, 1), cellAt(row, 2)
		if name == "" {
			continue
		}
		if expression == "" {
			return fmt.Errorf("computed field %s (row %d) has no expression", name, i+1)
		}

		var target *map[string]string
		switch {
		case scope == "" || scope == ValuesSheet:
			target = &ds.Computed
		case strings.HasPrefix(scope, RowSheetPrefix):
			anchor := strings.TrimSpace(strings.TrimPrefix(scope, RowSheetPrefix))
			for j := range ds.Rows {
				if ds.Rows[j].Anchor == anchor {
					target = &ds.Rows[j].Computed
				}
			}
		case strings.HasPrefix(scope, BlockSheetPrefix):
			block := strings.TrimSpace(strings.TrimPrefix(scope, BlockSheetPrefix))
			for j := range ds.Blocks {
				if ds.Blocks[j].Name == block {
					target = &ds.Blocks[j].Computed
				}
			}
		}
		if target == nil {
			return fmt.Errorf("computed field %s: unknown scope %q", name, scope)
		}
		if *target == nil {
			*target = make(map[string]string)
		}
		(*target)[name] = expression
	}
	return nil
}
