// Package labels derives the label vocabulary of a dataset column.
package labels

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/errdefs"
)

// Vocabulary is an ordered set of unique labels. Labels are either all
// strings or all int64. The position of a label is its class index.
type Vocabulary struct {
	values      []any
	index       map[any]int
	categorical bool
}

// Len returns the number of classes.
func (v Vocabulary) Len() int { return len(v.values) }

// Values returns the labels in class-index order.
func (v Vocabulary) Values() []any { return slices.Clone(v.values) }

// Categorical reports whether the vocabulary came from a ClassLabel column,
// in which case record values are already class indices.
func (v Vocabulary) Categorical() bool { return v.categorical }

// Names renders the labels as class names.
func (v Vocabulary) Names() []string {
	out := make([]string, len(v.values))
	for i, val := range v.values {
		switch t := val.(type) {
		case string:
			out[i] = t
		case int64:
			out[i] = strconv.FormatInt(t, 10)
		}
	}

	return out
}

// Index returns the class index of label. Integer labels of any width match
// their int64 form.
func (v Vocabulary) Index(label any) (int, bool) {
	key, ok := scalar(label)
	if !ok {
		return 0, false
	}

	i, ok := v.index[key]

	return i, ok
}

// Resolve returns the vocabulary of col. ClassLabel columns, and sequences of
// them, keep their declared names verbatim; raw columns are flattened one
// level, deduplicated and sorted.
func Resolve(col dataset.Column) (Vocabulary, error) {
	switch f := col.Feature.(type) {
	case dataset.ClassLabel:
		return categorical(f.Names), nil
	case dataset.Sequence:
		if cl, ok := f.Feature.(dataset.ClassLabel); ok {
			return categorical(cl.Names), nil
		}
	}

	vocab, err := FromValues(col.Values)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("column %q: %w", col.Name, err)
	}

	return vocab, nil
}

// FromValues builds a sorted vocabulary from a label collection: a list of
// labels or a list of per-record label lists.
func FromValues(v any) (Vocabulary, error) {
	var items []any

	switch t := v.(type) {
	case []any:
		for i, rec := range t {
			flat, err := flatten(rec)
			if err != nil {
				return Vocabulary{}, fmt.Errorf("record %d: %w", i, err)
			}
			items = append(items, flat...)
		}
	case [][]string:
		for _, rec := range t {
			for _, s := range rec {
				items = append(items, s)
			}
		}
	case [][]int64:
		for _, rec := range t {
			for _, n := range rec {
				items = append(items, n)
			}
		}
	case [][]int:
		for _, rec := range t {
			for _, n := range rec {
				items = append(items, int64(n))
			}
		}
	case []string, []int64, []int:
		flat, err := flatten(v)
		if err != nil {
			return Vocabulary{}, err
		}
		items = flat
	default:
		return Vocabulary{}, fmt.Errorf("%w: labels must be a list of label lists, not %T", errdefs.ErrTypeMismatch, v)
	}

	return sorted(items)
}

func categorical(names []string) Vocabulary {
	v := Vocabulary{
		values:      make([]any, len(names)),
		index:       make(map[any]int, len(names)),
		categorical: true,
	}

	for i, name := range names {
		v.values[i] = name
		if _, dup := v.index[name]; !dup {
			v.index[name] = i
		}
	}

	return v
}

// flatten returns the labels of one record: a scalar or a flat list of scalars.
func flatten(rec any) ([]any, error) {
	if s, ok := scalar(rec); ok {
		return []any{s}, nil
	}

	switch t := rec.(type) {
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, nil
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = int64(n)
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			s, ok := scalar(item)
			if !ok {
				return nil, fmt.Errorf("%w: label %d is %T, want a string or an integer", errdefs.ErrTypeMismatch, i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: label record is %T, want a label or a list of labels", errdefs.ErrTypeMismatch, rec)
	}
}

// scalar normalizes a single label; integer kinds become int64.
func scalar(v any) (any, bool) {
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	default:
		return nil, false
	}
}

func sorted(items []any) (Vocabulary, error) {
	var (
		strs []string
		ints []int64
	)

	for _, item := range items {
		switch t := item.(type) {
		case string:
			strs = append(strs, t)
		case int64:
			ints = append(ints, t)
		}
	}

	if len(strs) > 0 && len(ints) > 0 {
		return Vocabulary{}, fmt.Errorf("%w: labels mix strings and integers", errdefs.ErrTypeMismatch)
	}

	v := Vocabulary{index: make(map[any]int)}

	if len(strs) > 0 {
		slices.Sort(strs)
		for _, s := range slices.Compact(strs) {
			v.index[s] = len(v.values)
			v.values = append(v.values, s)
		}
	} else {
		slices.Sort(ints)
		for _, n := range slices.Compact(ints) {
			v.index[n] = len(v.values)
			v.values = append(v.values, n)
		}
	}

	return v, nil
}
