package encoder

import (
	"fmt"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/processor"
)

// wordsFromBatch pairs every record's words with its [n,4] box tensor.
func wordsFromBatch(batch dataset.Batch, wordColumn, boxColumn string, n int) ([][]processor.Word, error) {
	texts, ok := batch[wordColumn]
	if !ok {
		return nil, fmt.Errorf("%w: word column %q not in batch", errdefs.ErrNotFound, wordColumn)
	}

	boxes, ok := batch[boxColumn]
	if !ok {
		return nil, fmt.Errorf("%w: box column %q not in batch", errdefs.ErrNotFound, boxColumn)
	}

	if len(texts) != n || len(boxes) != n {
		return nil, fmt.Errorf("%w: %d word lists and %d box lists for %d images", errdefs.ErrSchemaMismatch, len(texts), len(boxes), n)
	}

	out := make([][]processor.Word, n)

	for i := range out {
		words, err := stringList(texts[i])
		if err != nil {
			return nil, fmt.Errorf("record %d words: %w", i, err)
		}

		t, ok := boxes[i].(*dataset.Tensor)
		if !ok || t.DType != dataset.Int64 || len(t.Shape) != 2 || t.Shape[1] != 4 {
			return nil, fmt.Errorf("%w: record %d boxes must be an int64 [n,4] tensor, got %T", errdefs.ErrTypeMismatch, i, boxes[i])
		}

		if t.Shape[0] != len(words) || len(t.Int64s) != 4*len(words) {
			return nil, fmt.Errorf("%w: record %d has %d words but %d boxes", errdefs.ErrSchemaMismatch, i, len(words), t.Shape[0])
		}

		rec := make([]processor.Word, len(words))
		for j, w := range words {
			b := t.Int64s[4*j : 4*j+4]
			rec[j] = processor.Word{Text: w, Box: [4]int{int(b[0]), int(b[1]), int(b[2]), int(b[3])}}
		}
		out[i] = rec
	}

	return out, nil
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, len(t))
		for i, x := range t {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T, want string", errdefs.ErrTypeMismatch, i, x)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a string list", errdefs.ErrTypeMismatch, v)
	}
}
