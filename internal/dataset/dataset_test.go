package dataset

import (
	"errors"
	"image"
	"reflect"
	"strings"
	"testing"

	"github.com/example/go-document-tools/internal/errdefs"
)

func TestFeatureCheck(t *testing.T) {
	labels := ClassLabel{Names: []string{"bill", "invoice"}}

	tests := []struct {
		name    string
		feature Feature
		value   any
		ok      bool
	}{
		{"int64 value", Value{DType: Int64}, int64(3), true},
		{"int value rejected", Value{DType: Int64}, 3, false},
		{"float32 value", Value{DType: Float32}, float32(0.5), true},
		{"string value", Value{DType: String}, "x", true},
		{"class label", labels, int64(1), true},
		{"class label out of range", labels, int64(2), false},
		{"class label negative", labels, int64(-1), false},
		{"sequence of labels", SequenceOf(labels), []int64{0, 1, 1}, true},
		{"sequence of labels out of range", SequenceOf(labels), []int64{0, 5}, false},
		{"sequence of any", SequenceOf(Value{DType: String}), []any{"a", "b"}, true},
		{"sequence of any bad element", SequenceOf(Value{DType: String}), []any{"a", 1}, false},
		{"sequence float32", SequenceOf(Value{DType: Float32}), []float32{1}, true},
		{"sequence wrong slice type", SequenceOf(Value{DType: Float32}), []int64{1}, false},
		{"fixed sequence", Sequence{Feature: Value{DType: Int64}, Length: 2}, []int64{1, 2}, true},
		{"fixed sequence wrong length", Sequence{Feature: Value{DType: Int64}, Length: 2}, []int64{1}, false},
		{"array", Array{DType: Int64, Shape: []int{2, 2}}, NewInt64Tensor([]int{2, 2}, []int64{1, 2, 3, 4}), true},
		{"array dynamic", Array{DType: Int64, Shape: []int{-1, 4}}, NewInt64Tensor([]int{3, 4}, make([]int64, 12)), true},
		{"array wrong dtype", Array{DType: Int64, Shape: []int{1}}, NewFloat32Tensor([]int{1}, []float32{1}), false},
		{"array wrong shape", Array{DType: Int64, Shape: []int{-1, 4}}, NewInt64Tensor([]int{2, 3}, make([]int64, 6)), false},
		{"array short data", Array{DType: Int64, Shape: []int{2}}, NewInt64Tensor([]int{2}, []int64{1}), false},
		{"image", Image{}, image.NewRGBA(image.Rect(0, 0, 1, 1)), true},
		{"image nil", Image{}, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.feature.Check(tc.value)
			if tc.ok {
				if err != nil {
					t.Fatalf("Check(%v): %v", tc.value, err)
				}
				return
			}

			if !errors.Is(err, errdefs.ErrSchemaMismatch) {
				t.Fatalf("Check(%v) error = %v; want ErrSchemaMismatch", tc.value, err)
			}
		})
	}
}

func TestNewValidatesRows(t *testing.T) {
	features := Features{{Name: "id", Type: Value{DType: Int64}}}

	tests := []struct {
		name     string
		features Features
		rows     []Record
		want     error
	}{
		{"wrong value type", features, []Record{{"id": int64(1)}, {"id": "two"}}, errdefs.ErrSchemaMismatch},
		{"missing column", features, []Record{{"other": int64(1)}}, errdefs.ErrSchemaMismatch},
		{"no features", nil, nil, errdefs.ErrInvalidArgument},
		{"duplicate feature", Features{{Name: "a", Type: Value{DType: Int64}}, {Name: "a", Type: Value{DType: Int64}}}, nil, errdefs.ErrInvalidArgument},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.features, tc.rows); !errors.Is(err, tc.want) {
				t.Fatalf("New error = %v; want %v", err, tc.want)
			}
		})
	}
}

func TestNewDropsUndeclaredColumns(t *testing.T) {
	ds, err := New(Features{{Name: "id", Type: Value{DType: Int64}}}, []Record{{"id": int64(1), "extra": true}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := ds.Row(0); !reflect.DeepEqual(got, Record{"id": int64(1)}) {
		t.Fatalf("Row(0) = %v; want only id", got)
	}
}

func TestColumn(t *testing.T) {
	ds := numbers(t, 3)

	col, err := ds.Column("n")
	if err != nil {
		t.Fatalf("Column(n): %v", err)
	}

	if want := []any{int64(0), int64(1), int64(2)}; !reflect.DeepEqual(col.Values, want) {
		t.Fatalf("values = %v; want %v", col.Values, want)
	}

	if col.Feature != (Value{DType: Int64}) {
		t.Fatalf("feature = %v; want int64 value", col.Feature)
	}

	_, err = ds.Column("missing")
	if !errors.Is(err, errdefs.ErrNotFound) {
		t.Fatalf("Column(missing) error = %v; want ErrNotFound", err)
	}

	if !strings.Contains(err.Error(), "available") {
		t.Fatalf("missing column error should list available columns, got: %v", err)
	}
}

func TestSelect(t *testing.T) {
	ds := numbers(t, 5)

	for _, tc := range []struct{ n, want int }{{2, 2}, {10, 5}, {-1, 0}} {
		if got := ds.Select(tc.n).Len(); got != tc.want {
			t.Errorf("Select(%d).Len() = %d; want %d", tc.n, got, tc.want)
		}
	}

	if ds.Fingerprint() == ds.Select(2).Fingerprint() {
		t.Fatal("a selection must not share the parent fingerprint")
	}
}

func TestFingerprintIsContentAddressed(t *testing.T) {
	a := numbers(t, 4)
	b := numbers(t, 4)
	c := numbers(t, 5)

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("equal datasets fingerprint differently: %s vs %s", a.Fingerprint(), b.Fingerprint())
	}

	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("different datasets share a fingerprint")
	}

	if len(a.Fingerprint()) != 16 {
		t.Fatalf("fingerprint %q should be 16 characters", a.Fingerprint())
	}
}

func TestFeaturesMergeAndWithout(t *testing.T) {
	fs := Features{
		{Name: "a", Type: Value{DType: Int64}},
		{Name: "b", Type: Value{DType: String}},
	}

	merged := fs.Merge(Features{
		{Name: "b", Type: Value{DType: Float32}},
		{Name: "c", Type: Image{}},
	})
	if got := strings.Join(merged.Names(), ","); got != "a,b,c" {
		t.Fatalf("merged names = %s; want a,b,c", got)
	}

	if got, _ := merged.Get("b"); got != (Value{DType: Float32}) {
		t.Fatalf("merged b = %v; want float32 value", got)
	}

	if got := strings.Join(merged.Without("b").Names(), ","); got != "a,c" {
		t.Fatalf("Without(b) names = %s; want a,c", got)
	}

	if got := strings.Join(fs.Names(), ","); got != "a,b" {
		t.Fatalf("Merge modified the receiver: %s", got)
	}
}

func TestFeaturesJSONRoundTrip(t *testing.T) {
	fs := Features{
		{Name: "image", Type: Image{}},
		{Name: "label", Type: ClassLabel{Names: []string{"a", "b"}}},
		{Name: "labels", Type: SequenceOf(ClassLabel{Names: []string{"x"}})},
		{Name: "ids", Type: Sequence{Feature: Value{DType: Int64}, Length: 8}},
		{Name: "bbox", Type: Array{DType: Int64, Shape: []int{-1, 4}}},
	}

	raw, err := MarshalFeatures(fs)
	if err != nil {
		t.Fatalf("MarshalFeatures: %v", err)
	}

	if !strings.Contains(string(raw), `"_type":"ClassLabel"`) {
		t.Fatalf("encoded features lack the ClassLabel type tag: %s", raw)
	}

	back, err := UnmarshalFeatures(raw)
	if err != nil {
		t.Fatalf("UnmarshalFeatures: %v", err)
	}

	if !reflect.DeepEqual(back, fs) {
		t.Fatalf("round trip = %v; want %v", back, fs)
	}
}

func TestDictKeepsInsertionOrder(t *testing.T) {
	d := NewDict()
	for _, split := range []struct {
		name string
		n    int
	}{{"train", 2}, {"test", 1}, {"train", 3}} {
		if err := d.Set(split.name, numbers(t, split.n)); err != nil {
			t.Fatalf("Set(%s): %v", split.name, err)
		}
	}

	if got := strings.Join(d.Names(), ","); got != "train,test" {
		t.Fatalf("names = %s; want train,test", got)
	}

	name, first, ok := d.First()
	if !ok || name != "train" || first.Len() != 3 {
		t.Fatalf("First() = %q, %d rows, %v; want train with 3 rows", name, first.Len(), ok)
	}

	if _, _, ok := NewDict().First(); ok {
		t.Fatal("First() on an empty dict should report false")
	}
}

func TestDictSetRejectsBadSplits(t *testing.T) {
	tests := []struct {
		name  string
		split string
		ds    *Dataset
	}{
		{"empty name", "", numbers(t, 1)},
		{"nil dataset", "x", nil},
		{"parent directory", "..", numbers(t, 1)},
		{"escapes parent", "../x", numbers(t, 1)},
		{"nested path", "a/b", numbers(t, 1)},
		{"windows separator", `a\b`, numbers(t, 1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := NewDict().Set(tc.split, tc.ds); !errors.Is(err, errdefs.ErrInvalidArgument) {
				t.Fatalf("Set(%q) error = %v; want ErrInvalidArgument", tc.split, err)
			}
		})
	}
}

func numbers(t *testing.T, n int) *Dataset {
	t.Helper()

	rows := make([]Record, n)
	for i := range rows {
		rows[i] = Record{"n": int64(i)}
	}

	ds, err := New(Features{{Name: "n", Type: Value{DType: Int64}}}, rows)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return ds
}
