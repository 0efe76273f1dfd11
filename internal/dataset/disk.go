package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-document-tools/internal/compress"
	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/safetensors"
)

const (
	infoFile     = "dataset_info.json"
	dictFile     = "dataset_dict.json"
	dataFileBase = "data.safetensors"
	offsetsExt   = ".offsets"
)

// SaveOptions controls SaveToDisk.
type SaveOptions struct {
	// Compression names the codec for the tensor file (none, zstd, lz4).
	Compression string
}

type datasetInfo struct {
	Features    json.RawMessage `json:"features"`
	NumRows     int             `json:"num_rows"`
	Fingerprint string          `json:"fingerprint"`
	Compression string          `json:"compression"`
	DataFile    string          `json:"data_file,omitempty"`
}

type dictInfo struct {
	Splits []string `json:"splits"`
}

// SaveToDisk writes the dataset to dir. Only numeric columns (Value int64 and
// float32, ClassLabel, numeric Sequence and Array) can be persisted.
func (d *Dataset) SaveToDisk(dir string, opts SaveOptions) error {
	codec, err := compress.Get(opts.Compression)
	if err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	}

	tensors, err := encodeColumns(d.features, d.rows)
	if err != nil {
		return err
	}

	featuresJSON, err := MarshalFeatures(d.features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	info := datasetInfo{
		Features:    featuresJSON,
		NumRows:     len(d.rows),
		Fingerprint: d.fingerprint,
		Compression: codec.Name(),
	}

	if len(tensors) > 0 {
		blob, err := safetensors.EncodeTensors(tensors, map[string]string{"fingerprint": d.fingerprint})
		if err != nil {
			return err
		}

		blob, err = codec.Compress(blob)
		if err != nil {
			return err
		}

		info.DataFile = dataFileBase + codec.Ext()
		if err := os.WriteFile(filepath.Join(dir, info.DataFile), blob, 0o644); err != nil {
			return fmt.Errorf("write dataset data: %w", err)
		}
	}

	return writeJSON(filepath.Join(dir, infoFile), info)
}

// LoadFromDisk reads a dataset written by Dataset.SaveToDisk.
func LoadFromDisk(dir string) (*Dataset, error) {
	raw, err := os.ReadFile(filepath.Join(dir, infoFile))
	if err != nil {
		return nil, fmt.Errorf("read dataset info: %w", err)
	}

	var info datasetInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode dataset info: %w", err)
	}

	if info.NumRows < 0 {
		return nil, fmt.Errorf("%w: dataset info declares %d rows", errdefs.ErrInvalidArgument, info.NumRows)
	}

	features, err := UnmarshalFeatures(info.Features)
	if err != nil {
		return nil, err
	}

	rows := make([]Record, info.NumRows)
	for i := range rows {
		rows[i] = make(Record, len(features))
	}

	if info.DataFile != "" {
		codec, err := compress.Get(info.Compression)
		if err != nil {
			return nil, err
		}

		blob, err := os.ReadFile(filepath.Join(dir, info.DataFile))
		if err != nil {
			return nil, fmt.Errorf("read dataset data: %w", err)
		}

		blob, err = codec.Decompress(blob)
		if err != nil {
			return nil, err
		}

		store, err := safetensors.Decode(blob)
		if err != nil {
			return nil, err
		}

		if err := decodeColumns(store, features, rows); err != nil {
			return nil, err
		}
	}

	return &Dataset{features: features, rows: rows, fingerprint: info.Fingerprint}, nil
}

// SaveToDisk writes every split under dir/<split> plus the split order.
func (d *DatasetDict) SaveToDisk(dir string, opts SaveOptions) error {
	for _, name := range d.names {
		if err := d.splits[name].SaveToDisk(filepath.Join(dir, name), opts); err != nil {
			return fmt.Errorf("save split %q: %w", name, err)
		}
	}

	return writeJSON(filepath.Join(dir, dictFile), dictInfo{Splits: d.Names()})
}

// LoadDictFromDisk reads a dict written by DatasetDict.SaveToDisk.
func LoadDictFromDisk(dir string) (*DatasetDict, error) {
	raw, err := os.ReadFile(filepath.Join(dir, dictFile))
	if err != nil {
		return nil, fmt.Errorf("read dataset dict: %w", err)
	}

	var info dictInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode dataset dict: %w", err)
	}

	out := NewDict()
	for _, name := range info.Splits {
		if err := checkSplitName(name); err != nil {
			return nil, err
		}

		ds, err := LoadFromDisk(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("load split %q: %w", name, err)
		}

		if err := out.Set(name, ds); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// IsDictDir reports whether dir holds a saved DatasetDict.
func IsDictDir(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, dictFile))
	return err == nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	return nil
}

func encodeColumns(features Features, rows []Record) ([]safetensors.Tensor, error) {
	n := int64(len(rows))
	tensors := make([]safetensors.Tensor, 0, len(features))

	for _, f := range features {
		switch t := f.Type.(type) {
		case Value:
			switch t.DType {
			case Int64:
				data := make([]int64, len(rows))
				for i, row := range rows {
					data[i] = row[f.Name].(int64)
				}
				tensors = append(tensors, safetensors.I64Tensor(f.Name, []int64{n}, data))
			case Float32:
				data := make([]float32, len(rows))
				for i, row := range rows {
					data[i] = row[f.Name].(float32)
				}
				tensors = append(tensors, safetensors.F32Tensor(f.Name, []int64{n}, data))
			default:
				return nil, unsupportedColumn(f)
			}
		case ClassLabel:
			data := make([]int64, len(rows))
			for i, row := range rows {
				data[i] = row[f.Name].(int64)
			}
			tensors = append(tensors, safetensors.I64Tensor(f.Name, []int64{n}, data))
		case Sequence:
			seq, err := encodeSequence(f.Name, t, rows)
			if err != nil {
				return nil, err
			}
			tensors = append(tensors, seq...)
		case Array:
			arr, err := encodeArray(f.Name, t, rows)
			if err != nil {
				return nil, err
			}
			tensors = append(tensors, arr...)
		default:
			return nil, unsupportedColumn(f)
		}
	}

	return tensors, nil
}

func encodeSequence(name string, f Sequence, rows []Record) ([]safetensors.Tensor, error) {
	offsets := make([]int64, 1, len(rows)+1)

	if f.holdsInt64() {
		var flat []int64
		for _, row := range rows {
			vals, err := asInt64s(row[name])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			flat = append(flat, vals...)
			offsets = append(offsets, int64(len(flat)))
		}

		return []safetensors.Tensor{
			safetensors.I64Tensor(name, []int64{int64(len(flat))}, flat),
			safetensors.I64Tensor(name+offsetsExt, []int64{int64(len(offsets))}, offsets),
		}, nil
	}

	if v, ok := f.Feature.(Value); ok && v.DType == Float32 {
		var flat []float32
		for _, row := range rows {
			vals, err := asFloat32s(row[name])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			flat = append(flat, vals...)
			offsets = append(offsets, int64(len(flat)))
		}

		return []safetensors.Tensor{
			safetensors.F32Tensor(name, []int64{int64(len(flat))}, flat),
			safetensors.I64Tensor(name+offsetsExt, []int64{int64(len(offsets))}, offsets),
		}, nil
	}

	return nil, unsupportedColumn(Field{Name: name, Type: f})
}

func encodeArray(name string, f Array, rows []Record) ([]safetensors.Tensor, error) {
	if f.DType != Int64 && f.DType != Float32 {
		return nil, unsupportedColumn(Field{Name: name, Type: f})
	}

	var (
		i64     []int64
		f32     []float32
		offsets = []int64{0}
	)

	for _, row := range rows {
		t := row[name].(*Tensor)
		i64 = append(i64, t.Int64s...)
		f32 = append(f32, t.Float32s...)
		offsets = append(offsets, offsets[len(offsets)-1]+int64(t.Len()))
	}

	var shape []int64
	if f.Dynamic() {
		shape = []int64{offsets[len(offsets)-1]}
	} else {
		shape = []int64{int64(len(rows))}
		for _, d := range f.Shape {
			shape = append(shape, int64(d))
		}
	}

	var data safetensors.Tensor
	if f.DType == Int64 {
		data = safetensors.I64Tensor(name, shape, i64)
	} else {
		data = safetensors.F32Tensor(name, shape, f32)
	}

	if !f.Dynamic() {
		return []safetensors.Tensor{data}, nil
	}

	return []safetensors.Tensor{
		data,
		safetensors.I64Tensor(name+offsetsExt, []int64{int64(len(offsets))}, offsets),
	}, nil
}

func decodeColumns(store *safetensors.Store, features Features, rows []Record) error {
	for _, f := range features {
		data, err := store.Tensor(f.Name)
		if err != nil {
			return err
		}

		if want := tensorDType(f.Type); want != "" && data.DType != want {
			return fmt.Errorf("%w: column %q is stored as %s, want %s", errdefs.ErrSchemaMismatch, f.Name, data.DType, want)
		}

		switch t := f.Type.(type) {
		case Value, ClassLabel:
			if data.Len() != len(rows) {
				return fmt.Errorf("%w: column %q has %d values for %d rows", errdefs.ErrSchemaMismatch, f.Name, data.Len(), len(rows))
			}

			for i := range rows {
				if data.DType == safetensors.DTypeI64 {
					rows[i][f.Name] = data.I64[i]
				} else {
					rows[i][f.Name] = data.F32[i]
				}
			}
		case Sequence:
			offsets, err := readOffsets(store, f.Name, len(rows), data.Len())
			if err != nil {
				return err
			}

			for i := range rows {
				lo, hi := offsets[i], offsets[i+1]
				if data.DType == safetensors.DTypeI64 {
					rows[i][f.Name] = append([]int64{}, data.I64[lo:hi]...)
				} else {
					rows[i][f.Name] = append([]float32{}, data.F32[lo:hi]...)
				}
			}
		case Array:
			if err := decodeArray(store, f.Name, t, data, rows); err != nil {
				return err
			}
		default:
			return unsupportedColumn(f)
		}
	}

	return nil
}

func decodeArray(store *safetensors.Store, name string, f Array, data *safetensors.Tensor, rows []Record) error {
	inner := 1
	for _, d := range f.Shape[1:] {
		inner *= d
	}

	offsets := make([]int64, len(rows)+1)
	if f.Dynamic() {
		var err error
		if offsets, err = readOffsets(store, name, len(rows), data.Len()); err != nil {
			return err
		}
	} else {
		per := int64(numElements(f.Shape))
		for i := range offsets {
			offsets[i] = int64(i) * per
		}

		if offsets[len(rows)] != int64(data.Len()) {
			return fmt.Errorf("%w: column %q has %d elements, want %d", errdefs.ErrSchemaMismatch, name, data.Len(), offsets[len(rows)])
		}
	}

	for i := range rows {
		lo, hi := offsets[i], offsets[i+1]
		if inner > 0 && (hi-lo)%int64(inner) != 0 {
			return fmt.Errorf("%w: column %q row %d holds %d values, not a multiple of %d", errdefs.ErrSchemaMismatch, name, i, hi-lo, inner)
		}

		shape := append([]int(nil), f.Shape...)
		if f.Dynamic() {
			if inner == 0 {
				shape[0] = 0
			} else {
				shape[0] = int(hi-lo) / inner
			}
		}

		if f.DType == Int64 {
			rows[i][name] = NewInt64Tensor(shape, append([]int64{}, data.I64[lo:hi]...))
		} else {
			rows[i][name] = NewFloat32Tensor(shape, append([]float32{}, data.F32[lo:hi]...))
		}
	}

	return nil
}

func readOffsets(store *safetensors.Store, name string, numRows, numValues int) ([]int64, error) {
	t, err := store.Tensor(name + offsetsExt)
	if err != nil {
		return nil, err
	}

	if t.DType != safetensors.DTypeI64 || len(t.I64) != numRows+1 {
		return nil, fmt.Errorf("%w: column %q has %d offsets for %d rows", errdefs.ErrInvalidArgument, name, t.Len(), numRows)
	}

	if t.I64[0] < 0 || t.I64[0] > int64(numValues) {
		return nil, fmt.Errorf("%w: column %q has invalid offsets", errdefs.ErrInvalidArgument, name)
	}

	for i := 1; i < len(t.I64); i++ {
		if t.I64[i] < t.I64[i-1] || t.I64[i] > int64(numValues) {
			return nil, fmt.Errorf("%w: column %q has invalid offsets", errdefs.ErrInvalidArgument, name)
		}
	}

	return t.I64, nil
}

// tensorDType is the safetensors dtype a persisted column must have, or ""
// for columns that cannot be persisted.
func tensorDType(f Feature) string {
	switch t := f.(type) {
	case ClassLabel:
		return safetensors.DTypeI64
	case Value:
		return valueDType(t.DType)
	case Sequence:
		if t.holdsInt64() {
			return safetensors.DTypeI64
		}

		if v, ok := t.Feature.(Value); ok {
			return valueDType(v.DType)
		}
	case Array:
		return valueDType(t.DType)
	}

	return ""
}

func valueDType(d DType) string {
	switch d {
	case Int64:
		return safetensors.DTypeI64
	case Float32:
		return safetensors.DTypeF32
	default:
		return ""
	}
}

func asInt64s(v any) ([]int64, error) {
	switch t := v.(type) {
	case []int64:
		return t, nil
	case []any:
		out := make([]int64, len(t))
		for i, x := range t {
			n, ok := x.(int64)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T, want int64", errdefs.ErrTypeMismatch, i, x)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T is not an int64 sequence", errdefs.ErrTypeMismatch, v)
	}
}

func asFloat32s(v any) ([]float32, error) {
	switch t := v.(type) {
	case []float32:
		return t, nil
	case []any:
		out := make([]float32, len(t))
		for i, x := range t {
			n, ok := x.(float32)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T, want float32", errdefs.ErrTypeMismatch, i, x)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a float32 sequence", errdefs.ErrTypeMismatch, v)
	}
}

func unsupportedColumn(f Field) error {
	return fmt.Errorf("%w: column %q of type %s cannot be persisted", errdefs.ErrTypeMismatch, f.Name, f.Type)
}
