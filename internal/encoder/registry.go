package encoder

import (
	"fmt"

	"github.com/example/go-document-tools/internal/errdefs"
)

type entry struct {
	name  string
	model string
	ctor  Constructor
}

var registry = []entry{
	{name: "layoutlmv2", model: DefaultLayoutLMv2Model, ctor: NewLayoutLMv2},
	{name: "layoutlmv3", model: DefaultLayoutLMv3Model, ctor: NewLayoutLMv3},
	{name: "layoutxlm", model: DefaultLayoutXLMModel, ctor: NewLayoutXLM},
}

// TargetModels returns the supported target model identifiers in order.
func TargetModels() []string {
	out := make([]string, len(registry))
	for i, e := range registry {
		out[i] = e.name
	}

	return out
}

// DefaultModel returns the hub model whose processor a target uses unless
// the config overrides default_model.
func DefaultModel(name string) (string, error) {
	for _, e := range registry {
		if e.name == name {
			return e.model, nil
		}
	}

	return "", fmt.Errorf("%w: target model %q is not supported (available: %v)", errdefs.ErrNotFound, name, TargetModels())
}

// Lookup returns the constructor registered under name. Matching is exact
// and case-sensitive.
func Lookup(name string) (Constructor, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: a target model is required (available: %v)", errdefs.ErrInvalidArgument, TargetModels())
	}

	for _, e := range registry {
		if e.name == name {
			return e.ctor, nil
		}
	}

	return nil, fmt.Errorf("%w: target model %q is not supported (available: %v)", errdefs.ErrNotFound, name, TargetModels())
}
