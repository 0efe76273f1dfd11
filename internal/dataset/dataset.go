// Package dataset is a small in-memory, column-typed dataset container:
// a Dataset is one split (an ordered list of records sharing a schema), a
// DatasetDict is an ordered mapping of split names to Datasets. Datasets are
// immutable; Map returns a new Dataset.
package dataset

import (
	"fmt"

	"github.com/example/go-document-tools/internal/errdefs"
)

// Record is one example, keyed by column name.
type Record map[string]any

// Dataset is a single split.
type Dataset struct {
	features    Features
	rows        []Record
	fingerprint string
}

// New builds a Dataset after checking every record against features. Records
// are copied shallowly; columns not in features are dropped.
func New(features Features, rows []Record) (*Dataset, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: dataset needs at least one feature", errdefs.ErrInvalidArgument)
	}

	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if f.Name == "" || f.Type == nil {
			return nil, fmt.Errorf("%w: feature %q is incomplete", errdefs.ErrInvalidArgument, f.Name)
		}

		if seen[f.Name] {
			return nil, fmt.Errorf("%w: duplicate feature %q", errdefs.ErrInvalidArgument, f.Name)
		}
		seen[f.Name] = true
	}

	out := make([]Record, len(rows))
	for i, row := range rows {
		rec := make(Record, len(features))
		for _, f := range features {
			v, ok := row[f.Name]
			if !ok {
				return nil, fmt.Errorf("%w: row %d is missing column %q", errdefs.ErrSchemaMismatch, i, f.Name)
			}

			if err := f.Type.Check(v); err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, f.Name, err)
			}
			rec[f.Name] = v
		}
		out[i] = rec
	}

	fs := append(Features{}, features...)

	return &Dataset{
		features:    fs,
		rows:        out,
		fingerprint: fingerprintRows(fs, out),
	}, nil
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.rows) }

// Features returns a copy of the schema.
func (d *Dataset) Features() Features { return append(Features{}, d.features...) }

// Fingerprint identifies the dataset content and lineage.
func (d *Dataset) Fingerprint() string { return d.fingerprint }

// Row returns a shallow copy of record i.
func (d *Dataset) Row(i int) Record {
	rec := make(Record, len(d.rows[i]))
	for k, v := range d.rows[i] {
		rec[k] = v
	}

	return rec
}

// Column is one column's feature and values in record order.
type Column struct {
	Name    string
	Feature Feature
	Values  []any
}

// Column returns the named column.
func (d *Dataset) Column(name string) (Column, error) {
	f, ok := d.features.Get(name)
	if !ok {
		return Column{}, fmt.Errorf("%w: column %q (available: %v)", errdefs.ErrNotFound, name, d.features.Names())
	}

	values := make([]any, len(d.rows))
	for i, row := range d.rows {
		values[i] = row[name]
	}

	return Column{Name: name, Feature: f, Values: values}, nil
}

// Select returns a Dataset holding the first n records.
func (d *Dataset) Select(n int) *Dataset {
	if n > len(d.rows) {
		n = len(d.rows)
	}

	if n < 0 {
		n = 0
	}

	rows := d.rows[:n:n]

	return &Dataset{
		features:    d.features,
		rows:        rows,
		fingerprint: fingerprintRows(d.features, rows),
	}
}

func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset(features=%v, num_rows=%d)", d.features.Names(), len(d.rows))
}

// Batch is a column-major slice of records.
type Batch map[string][]any

// Len returns the shared column length, or an error when columns disagree.
func (b Batch) Len() (int, error) {
	n := -1
	for name, col := range b {
		if n == -1 {
			n = len(col)
			continue
		}

		if len(col) != n {
			return 0, fmt.Errorf("%w: batch column %q has %d values, want %d", errdefs.ErrSchemaMismatch, name, len(col), n)
		}
	}

	if n == -1 {
		n = 0
	}

	return n, nil
}

func (d *Dataset) batch(start, end int) Batch {
	b := make(Batch, len(d.features))
	for _, f := range d.features {
		col := make([]any, 0, end-start)
		for _, row := range d.rows[start:end] {
			col = append(col, row[f.Name])
		}
		b[f.Name] = col
	}

	return b
}
