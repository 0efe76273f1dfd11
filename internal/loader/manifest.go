package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/document"
	"github.com/example/go-document-tools/internal/errdefs"
)

// manifestLine is one JSON Lines entry. Label holds a string, an integer or a
// list of either; Split defaults to DefaultSplit. Words and Boxes optionally
// carry OCR output, one 0..1000 box per word.
type manifestLine struct {
	Image string          `json:"image"`
	Label json.RawMessage `json:"label"`
	Split string          `json:"split"`
	Words []string        `json:"words"`
	Boxes [][4]int64      `json:"boxes"`
}

// JSONLines loads a manifest whose lines name an image (relative to the
// manifest directory) and its raw label or labels. Splits appear in order of
// first occurrence. Every line must use the same label type. When any line
// has words, the result gains a words column and a [n,4] boxes column, and
// lines without words get empty ones.
func JSONLines(ctx context.Context, path string, opts Options) (*dataset.DatasetDict, error) {
	opts = opts.withDefaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	base := filepath.Dir(path)

	var (
		order  []string
		paths  = map[string][]string{}
		values = map[string][]any{}
		words  = map[string][][]string{}
		boxes  = map[string][][][4]int64{}
		typ    labelType
		ocr    bool
	)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for lineNo := 1; sc.Scan(); lineNo++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var line manifestLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("%w: manifest line %d: %v", errdefs.ErrInvalidArgument, lineNo, err)
		}

		if line.Image == "" {
			return nil, fmt.Errorf("%w: manifest line %d has no image", errdefs.ErrInvalidArgument, lineNo)
		}

		if _, err := document.NewImage(line.Image); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}

		label, lt, err := decodeLabel(line.Label)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}

		switch {
		case lt == untyped:
		case typ == untyped:
			typ = lt
		case typ != lt:
			return nil, fmt.Errorf("%w: manifest line %d mixes string and integer labels", errdefs.ErrTypeMismatch, lineNo)
		}

		if len(line.Words) != len(line.Boxes) {
			return nil, fmt.Errorf("%w: manifest line %d has %d words but %d boxes",
				errdefs.ErrInvalidArgument, lineNo, len(line.Words), len(line.Boxes))
		}
		ocr = ocr || len(line.Words) > 0

		split := line.Split
		if split == "" {
			split = DefaultSplit
		}

		if _, ok := paths[split]; !ok {
			order = append(order, split)
		}

		img := line.Image
		if !filepath.IsAbs(img) {
			img = filepath.Join(base, filepath.FromSlash(img))
		}

		paths[split] = append(paths[split], img)
		values[split] = append(values[split], label)
		words[split] = append(words[split], line.Words)
		boxes[split] = append(boxes[split], line.Boxes)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("%w: manifest %s is empty", errdefs.ErrInvalidArgument, path)
	}

	dtype := dataset.String
	if typ == intLabels {
		dtype = dataset.Int64
	}

	features := dataset.Features{
		{Name: opts.ImageColumn, Type: dataset.Image{}},
		{Name: opts.LabelColumn, Type: dataset.SequenceOf(dataset.Value{DType: dtype})},
	}

	if ocr {
		features = append(features,
			dataset.Field{Name: opts.WordsColumn, Type: dataset.SequenceOf(dataset.Value{DType: dataset.String})},
			dataset.Field{Name: opts.BoxesColumn, Type: dataset.Array{DType: dataset.Int64, Shape: []int{-1, 4}}},
		)
	}

	out := dataset.NewDict()

	for _, split := range order {
		imgs, err := decodeAll(ctx, paths[split], opts.NumWorkers)
		if err != nil {
			return nil, err
		}

		rows := make([]dataset.Record, len(imgs))
		for i, img := range imgs {
			if img == nil {
				return nil, fmt.Errorf("%w: unsupported image format %s", errdefs.ErrInvalidArgument, paths[split][i])
			}

			label := values[split][i]
			if label == nil {
				label = emptyLabels(dtype)
			}

			rows[i] = dataset.Record{opts.ImageColumn: img, opts.LabelColumn: label}

			if ocr {
				rows[i][opts.WordsColumn] = append([]string{}, words[split][i]...)
				rows[i][opts.BoxesColumn] = boxTensor(boxes[split][i])
			}
		}

		ds, err := dataset.New(features, rows)
		if err != nil {
			return nil, fmt.Errorf("split %q: %w", split, err)
		}

		if err := out.Set(split, ds); err != nil {
			return nil, err
		}

		opts.Logger.Debug("loaded split", "split", split, "rows", ds.Len())
	}

	return out, nil
}

func boxTensor(boxes [][4]int64) *dataset.Tensor {
	flat := make([]int64, 0, 4*len(boxes))
	for _, b := range boxes {
		flat = append(flat, b[:]...)
	}

	return dataset.NewInt64Tensor([]int{len(boxes), 4}, flat)
}

type labelType int

const (
	untyped labelType = iota
	stringLabels
	intLabels
)

func emptyLabels(dtype dataset.DType) any {
	if dtype == dataset.Int64 {
		return []int64{}
	}

	return []string{}
}

// decodeLabel returns the label list as []string or []int64. An empty list
// decodes to nil and takes its type from the other lines.
func decodeLabel(raw json.RawMessage) (any, labelType, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, untyped, fmt.Errorf("%w: missing label", errdefs.ErrTypeMismatch)
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []string{s}, stringLabels, nil
	}

	var n int64
	if json.Unmarshal(raw, &n) == nil {
		return []int64{n}, intLabels, nil
	}

	var ss []string
	if json.Unmarshal(raw, &ss) == nil {
		if len(ss) == 0 {
			return nil, untyped, nil
		}

		return ss, stringLabels, nil
	}

	var ns []int64
	if json.Unmarshal(raw, &ns) == nil {
		return ns, intLabels, nil
	}

	return nil, untyped, fmt.Errorf("%w: label %s is not a string, an integer or a list of either", errdefs.ErrTypeMismatch, raw)
}
