package config

import (
	"fmt"
	"strings"

	"github.com/example/go-document-tools/internal/compress"
	"github.com/example/go-document-tools/internal/errdefs"
)

// NormalizeCompression maps a user supplied codec name to its canonical form.
// Empty selects none; "zst" is accepted for zstd.
func NormalizeCompression(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "zst" {
		name = compress.Zstd
	}

	codec, err := compress.Get(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errdefs.ErrInvalidArgument, err)
	}

	return codec.Name(), nil
}
