package encoder

import (
	"fmt"

	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/labels"
)

// encodeLabel turns one record label, a scalar or a list, into class indices.
// Categorical vocabularies expect indices already; raw ones are looked up.
func encodeLabel(vocab labels.Vocabulary, v any) ([]int64, error) {
	items, err := labelItems(v)
	if err != nil {
		return nil, err
	}

	out := make([]int64, len(items))

	for i, item := range items {
		if vocab.Categorical() {
			idx, ok := asIndex(item)
			if !ok {
				return nil, fmt.Errorf("%w: categorical label %v (%T) is not a class index", errdefs.ErrTypeMismatch, item, item)
			}

			if idx < 0 || idx >= int64(vocab.Len()) {
				return nil, fmt.Errorf("%w: class index %d out of range for %d classes", errdefs.ErrSchemaMismatch, idx, vocab.Len())
			}

			out[i] = idx

			continue
		}

		idx, ok := vocab.Index(item)
		if !ok {
			return nil, fmt.Errorf("%w: label %v is not in the vocabulary", errdefs.ErrNotFound, item)
		}

		out[i] = int64(idx)
	}

	return out, nil
}

func labelItems(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, nil
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: label is nil", errdefs.ErrTypeMismatch)
	default:
		return []any{v}, nil
	}
}

func asIndex(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}
