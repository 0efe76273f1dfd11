package encoder

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/processor"
)

// Config is the merged processor configuration of an encoder.
type Config struct {
	Padding      string `mapstructure:"padding"`
	Truncation   bool   `mapstructure:"truncation"`
	MaxLength    int    `mapstructure:"max_length"`
	ImageSize    int    `mapstructure:"image_size"`
	DefaultModel string `mapstructure:"default_model"`
	// AssetsDir is the root holding <default_model>/ tokenizer files.
	AssetsDir string `mapstructure:"assets_dir"`
	// Extra keeps keys this package does not interpret.
	Extra map[string]any `mapstructure:",remain"`
}

// DefaultConfig returns the defaults every encoder starts from.
func DefaultConfig(defaultModel string) Config {
	return Config{
		Padding:      processor.PadMaxLength,
		Truncation:   true,
		MaxLength:    processor.DefaultMaxLength,
		ImageSize:    processor.DefaultImageSize,
		DefaultModel: defaultModel,
	}
}

// NewConfig overlays raw on defaults. Values are weakly typed, so "128" and
// 128.0 both decode into MaxLength. raw is not retained.
func NewConfig(raw map[string]any, defaults Config) (Config, error) {
	cfg := defaults
	cfg.Extra = nil

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, fmt.Errorf("build config decoder: %w", err)
	}

	if err := dec.Decode(raw); err != nil {
		return Config{}, fmt.Errorf("%w: processor config: %w", errdefs.ErrInvalidArgument, err)
	}

	switch cfg.Padding {
	case processor.PadMaxLength, processor.PadLongest, processor.PadNone:
	default:
		return Config{}, fmt.Errorf("%w: unknown padding strategy %q", errdefs.ErrInvalidArgument, cfg.Padding)
	}

	if cfg.MaxLength < 2 {
		return Config{}, fmt.Errorf("%w: max_length must be at least 2, got %d", errdefs.ErrInvalidArgument, cfg.MaxLength)
	}

	if cfg.ImageSize < 1 {
		return Config{}, fmt.Errorf("%w: image_size must be positive, got %d", errdefs.ErrInvalidArgument, cfg.ImageSize)
	}

	return cfg, nil
}

// sequenceLength is the fixed bbox length, or -1 when padding leaves it dynamic.
func (c Config) sequenceLength() int {
	if c.Padding == processor.PadMaxLength {
		return c.MaxLength
	}

	return -1
}
