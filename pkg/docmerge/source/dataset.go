// Package source loads merge data from YAML, JSON and XLSX files and applies
// it to a template.
//
// A Dataset holds plain values, record sets for cloned rows and blocks,
// blocks to delete, and computed fields whose values are expr expressions
// over the other fields.
package source

import (
	"errors"
	"fmt"
	"sort"
)

// Record maps placeholder names to values for one clone.
type Record = map[string]string

// RowSet fills the table row anchored on a placeholder, one clone per record.
type RowSet struct {
	Anchor   string            `yaml:"anchor"`
	Records  []Record          `yaml:"records"`
	Computed map[string]string `yaml:"computed,omitempty"`
}

// BlockSet fills a named block, one clone per record.
type BlockSet struct {
	Name     string            `yaml:"name"`
	Records  []Record          `yaml:"records"`
	Computed map[string]string `yaml:"computed,omitempty"`
}

// Dataset is everything needed to merge one document.
type Dataset struct {
	Values   map[string]string `yaml:"values"`
	Rows     []RowSet          `yaml:"rows"`
	Blocks   []BlockSet        `yaml:"blocks"`
	Delete   []string          `yaml:"delete"`
	Computed map[string]string `yaml:"computed,omitempty"`
}

// Validate checks that every row set has an anchor and every block set a name.
func (d *Dataset) Validate() error {
	for i, rs := range d.Rows {
		if rs.Anchor == "" {
			return fmt.Errorf("row set %d: anchor is required", i)
		}
	}
	for i, bs := range d.Blocks {
		if bs.Name == "" {
			return fmt.Errorf("block set %d: name is required", i)
		}
	}
	for i, name := range d.Delete {
		if name == "" {
			return fmt.Errorf("delete entry %d: name is required", i)
		}
	}
	return nil
}

// Resolve returns a copy of the dataset with every computed field evaluated.
// Dataset-level fields see Values; record-level fields see Values overlaid
// with the record. Fields are evaluated in name order and each result is
// visible to the fields after it.
func (d *Dataset) Resolve(ev *Evaluator) (*Dataset, error) {
	if ev == nil {
		ev = NewEvaluator()
	}

	out := &Dataset{
		Values: copyRecord(d.Values),
		Delete: append([]string(nil), d.Delete...),
	}

	if err := ev.computeInto(out.Values, nil, d.Computed); err != nil {
		return nil, fmt.Errorf("computed values: %w", err)
	}

	for _, rs := range d.Rows {
		records, err := resolveRecords(ev, out.Values, rs.Records, rs.Computed)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", rs.Anchor, err)
		}
		out.Rows = append(out.Rows, RowSet{Anchor: rs.Anchor, Records: records})
	}

	for _, bs := range d.Blocks {
		records, err := resolveRecords(ev, out.Values, bs.Records, bs.Computed)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", bs.Name, err)
		}
		out.Blocks = append(out.Blocks, BlockSet{Name: bs.Name, Records: records})
	}

	return out, nil
}

func resolveRecords(ev *Evaluator, values map[string]string, records []Record, computed map[string]string) ([]Record, error) {
	out := make([]Record, len(records))
	for i, rec := range records {
		resolved := copyRecord(rec)
		if err := ev.computeInto(resolved, values, computed); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		out[i] = resolved
	}
	return out, nil
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Target is what a dataset is applied to. *docmerge.Template implements it.
type Target interface {
	CloneRowAndSetValues(search string, rows []map[string]string) error
	CloneBlockWithValues(name string, rows []map[string]string) error
	DeleteBlock(name string) error
	SetValues(values map[string]string) error
}

// Apply resolves the dataset and merges it into target: row sets first,
// then block sets, then deletions, then plain values.
func Apply(target Target, d *Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	resolved, err := d.Resolve(nil)
	if err != nil {
		return err
	}

	var errs []error
	for _, rs := range resolved.Rows {
		if err := target.CloneRowAndSetValues(rs.Anchor, rs.Records); err != nil {
			errs = append(errs, fmt.Errorf("row %s: %w", rs.Anchor, err))
		}
	}
	for _, bs := range resolved.Blocks {
		if err := target.CloneBlockWithValues(bs.Name, bs.Records); err != nil {
			errs = append(errs, fmt.Errorf("block %s: %w", bs.Name, err))
		}
	}
	for _, name := range resolved.Delete {
		if err := target.DeleteBlock(name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
		}
	}
	if len(resolved.Values) > 0 {
		if err := target.SetValues(resolved.Values); err != nil {
			errs = append(errs, fmt.Errorf("values: %w", err))
		}
	}
	return errors.Join(errs...)
}
