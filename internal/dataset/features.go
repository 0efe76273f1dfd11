package dataset

import (
	"fmt"
	"image"
	"strings"

	"github.com/example/go-document-tools/internal/errdefs"
)

// DType is the scalar element type of a Value, Sequence or Array feature.
type DType string

const (
	Int64   DType = "int64"
	Float32 DType = "float32"
	String  DType = "string"
)

// Feature is the semantic type of one column.
type Feature interface {
	// Check reports whether v is a valid in-memory value for the feature.
	Check(v any) error
	String() string
}

// Value is a scalar column.
type Value struct {
	DType DType
}

func (f Value) Check(v any) error {
	ok := false

	switch f.DType {
	case Int64:
		_, ok = v.(int64)
	case Float32:
		_, ok = v.(float32)
	case String:
		_, ok = v.(string)
	}

	if !ok {
		return mismatch(f, v)
	}

	return nil
}

func (f Value) String() string { return fmt.Sprintf("Value(%s)", f.DType) }

// ClassLabel is a categorical column. Values are int64 class indices into Names.
type ClassLabel struct {
	Names []string
}

// NumClasses returns len(Names).
func (f ClassLabel) NumClasses() int { return len(f.Names) }

func (f ClassLabel) Check(v any) error {
	idx, ok := v.(int64)
	if !ok {
		return mismatch(f, v)
	}

	if idx < 0 || idx >= int64(len(f.Names)) {
		return fmt.Errorf("%w: class index %d out of range for %d classes", errdefs.ErrSchemaMismatch, idx, len(f.Names))
	}

	return nil
}

func (f ClassLabel) String() string {
	return fmt.Sprintf("ClassLabel(num_classes=%d)", len(f.Names))
}

// Sequence is a list column. Length -1 means variable length.
//
// Lists of int64 values or class labels are held as []int64, lists of float32
// values as []float32, lists of strings as []string or []any, and every other
// element type as []any.
type Sequence struct {
	Feature Feature
	Length  int
}

// SequenceOf returns a variable-length Sequence of f.
func SequenceOf(f Feature) Sequence {
	return Sequence{Feature: f, Length: -1}
}

func (f Sequence) Check(v any) error {
	n := -1

	switch items := v.(type) {
	case []int64:
		if !f.holdsInt64() {
			return mismatch(f, v)
		}

		if cl, ok := f.Feature.(ClassLabel); ok {
			for _, idx := range items {
				if err := cl.Check(idx); err != nil {
					return err
				}
			}
		}

		n = len(items)
	case []float32:
		if vf, ok := f.Feature.(Value); !ok || vf.DType != Float32 {
			return mismatch(f, v)
		}

		n = len(items)
	case []string:
		if vf, ok := f.Feature.(Value); !ok || vf.DType != String {
			return mismatch(f, v)
		}

		n = len(items)
	case []any:
		for i, item := range items {
			if err := f.Feature.Check(item); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}

		n = len(items)
	default:
		return mismatch(f, v)
	}

	if f.Length >= 0 && n != f.Length {
		return fmt.Errorf("%w: %s has %d elements, want %d", errdefs.ErrSchemaMismatch, f, n, f.Length)
	}

	return nil
}

func (f Sequence) holdsInt64() bool {
	switch inner := f.Feature.(type) {
	case ClassLabel:
		return true
	case Value:
		return inner.DType == Int64
	default:
		return false
	}
}

func (f Sequence) String() string {
	if f.Length >= 0 {
		return fmt.Sprintf("Sequence(%s, length=%d)", f.Feature, f.Length)
	}

	return fmt.Sprintf("Sequence(%s)", f.Feature)
}

// Array is a fixed-rank dense tensor column. A leading dimension of -1 is
// dynamic; every other dimension is fixed. Values are *Tensor.
type Array struct {
	DType DType
	Shape []int
}

func (f Array) Check(v any) error {
	t, ok := v.(*Tensor)
	if !ok || t == nil {
		return mismatch(f, v)
	}

	if t.DType != f.DType {
		return fmt.Errorf("%w: %s got %s tensor", errdefs.ErrSchemaMismatch, f, t.DType)
	}

	if len(t.Shape) != len(f.Shape) {
		return fmt.Errorf("%w: %s got rank-%d tensor %v", errdefs.ErrSchemaMismatch, f, len(t.Shape), t.Shape)
	}

	for i, d := range f.Shape {
		if d == -1 && i == 0 {
			continue
		}

		if t.Shape[i] != d {
			return fmt.Errorf("%w: %s got tensor shape %v", errdefs.ErrSchemaMismatch, f, t.Shape)
		}
	}

	return t.Validate()
}

// Dynamic reports whether the leading dimension is dynamic.
func (f Array) Dynamic() bool { return len(f.Shape) > 0 && f.Shape[0] == -1 }

func (f Array) String() string {
	return fmt.Sprintf("Array%dD(%s, %v)", len(f.Shape), f.DType, f.Shape)
}

// Image is a decoded image column. Values are image.Image.
type Image struct{}

func (f Image) Check(v any) error {
	if img, ok := v.(image.Image); !ok || img == nil {
		return mismatch(f, v)
	}

	return nil
}

func (f Image) String() string { return "Image()" }

func mismatch(f Feature, v any) error {
	return fmt.Errorf("%w: %s cannot hold %T", errdefs.ErrSchemaMismatch, f, v)
}

// Field is one named column of a schema.
type Field struct {
	Name string
	Type Feature
}

// Features is an ordered schema.
type Features []Field

// Get returns the feature of the named column.
func (fs Features) Get(name string) (Feature, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Type, true
		}
	}

	return nil, false
}

// Names returns the column names in schema order.
func (fs Features) Names() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}

	return out
}

// Without returns a copy of fs without the named columns.
func (fs Features) Without(names ...string) Features {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	out := make(Features, 0, len(fs))
	for _, f := range fs {
		if !drop[f.Name] {
			out = append(out, f)
		}
	}

	return out
}

// Merge returns fs with every field of other appended, replacing same-named
// fields in place.
func (fs Features) Merge(other Features) Features {
	out := append(Features{}, fs...)

	for _, f := range other {
		replaced := false
		for i := range out {
			if out[i].Name == f.Name {
				out[i] = f
				replaced = true
				break
			}
		}

		if !replaced {
			out = append(out, f)
		}
	}

	return out
}

func (fs Features) String() string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.Name + ": " + f.Type.String()
	}

	return "{" + strings.Join(parts, ", ") + "}"
}
