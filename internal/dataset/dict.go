package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/go-document-tools/internal/errdefs"
)

// DatasetDict is an ordered mapping of split names to Datasets. Split order
// is insertion order.
type DatasetDict struct {
	names  []string
	splits map[string]*Dataset
}

// NewDict returns an empty DatasetDict.
func NewDict() *DatasetDict {
	return &DatasetDict{splits: make(map[string]*Dataset)}
}

// Set adds or replaces a split. Replacing keeps the original position.
func (d *DatasetDict) Set(name string, ds *Dataset) error {
	if err := checkSplitName(name); err != nil {
		return err
	}

	if ds == nil {
		return fmt.Errorf("%w: split %q has no dataset", errdefs.ErrInvalidArgument, name)
	}

	if _, exists := d.splits[name]; !exists {
		d.names = append(d.names, name)
	}
	d.splits[name] = ds

	return nil
}

// checkSplitName rejects names that are not a single path element, since
// splits are saved under dir/<name>.
func checkSplitName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: split name must not be empty", errdefs.ErrInvalidArgument)
	case name == "." || name == ".." || strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: split name %q must be a single path element", errdefs.ErrInvalidArgument, name)
	}

	return nil
}

// Get returns the named split.
func (d *DatasetDict) Get(name string) (*Dataset, bool) {
	ds, ok := d.splits[name]
	return ds, ok
}

// Names returns split names in order.
func (d *DatasetDict) Names() []string { return append([]string(nil), d.names...) }

// Len returns the number of splits.
func (d *DatasetDict) Len() int { return len(d.names) }

// First returns the first split in order.
func (d *DatasetDict) First() (string, *Dataset, bool) {
	if len(d.names) == 0 {
		return "", nil, false
	}

	return d.names[0], d.splits[d.names[0]], true
}

func (d *DatasetDict) String() string {
	s := "DatasetDict{"
	for i, name := range d.names {
		if i > 0 {
			s += ", "
		}
		s += name + ": " + d.splits[name].String()
	}

	return s + "}"
}

// DictMapOptions extends MapOptions with per-split cache paths.
type DictMapOptions struct {
	MapOptions
	// CachePaths maps split name to cache directory; it overrides
	// MapOptions.CachePath, which is ignored for dicts.
	CachePaths map[string]string
}

// Map applies fn to every split independently, in split order.
func (d *DatasetDict) Map(ctx context.Context, fn BatchFunc, opts DictMapOptions) (*DatasetDict, error) {
	out := NewDict()

	for _, name := range d.names {
		splitOpts := opts.MapOptions
		splitOpts.CachePath = opts.CachePaths[name]

		mapped, err := d.splits[name].Map(ctx, fn, splitOpts)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", name, err)
		}

		if err := out.Set(name, mapped); err != nil {
			return nil, err
		}
	}

	return out, nil
}
