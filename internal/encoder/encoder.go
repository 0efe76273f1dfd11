// Package encoder maps batches of (image, label) records to the tensor schema
// of a target document model.
package encoder

import (
	"context"
	"fmt"
	"image"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/labels"
	"github.com/example/go-document-tools/internal/processor"
)

// Encoder turns a batch holding the image and label columns into a batch
// holding exactly the Schema columns.
type Encoder interface {
	Name() string
	Schema() dataset.Features
	Encode(ctx context.Context, batch dataset.Batch) (dataset.Batch, error)
}

// Processor is the model-specific preprocessing step.
type Processor interface {
	Process(ctx context.Context, images []image.Image) (dataset.Batch, error)
}

// WordProcessor is a Processor that also accepts words extracted beforehand,
// with boxes in 0..1000 page coordinates.
type WordProcessor interface {
	Processor
	ProcessWords(ctx context.Context, images []image.Image, words [][]processor.Word) (dataset.Batch, error)
}

// ProcessorFactory builds a Processor from the merged config.
type ProcessorFactory func(cfg Config) (Processor, error)

// Constructor builds an encoder from the label vocabulary and the caller's
// processor config.
type Constructor func(vocab labels.Vocabulary, raw map[string]any, opts ...Option) (Encoder, error)

// Option customizes encoder construction.
type Option func(*settings)

type settings struct {
	imageColumn string
	labelColumn string
	processor   Processor
	factory     ProcessorFactory
	ocr         processor.OCR
	wordColumn  string
	boxColumn   string
}

// WithColumns sets the input column names (default "image" and "label").
func WithColumns(image, label string) Option {
	return func(s *settings) {
		s.imageColumn = image
		s.labelColumn = label
	}
}

// WithProcessor uses p instead of the built-in processor.
func WithProcessor(p Processor) Option {
	return func(s *settings) { s.processor = p }
}

// WithProcessorFactory builds the processor from the merged config.
func WithProcessorFactory(f ProcessorFactory) Option {
	return func(s *settings) { s.factory = f }
}

// WithOCR sets the word source of the built-in processor.
func WithOCR(o processor.OCR) Option {
	return func(s *settings) { s.ocr = o }
}

// WithWordColumns reads each record's words and their boxes from the named
// columns instead of running the OCR. Words are a string list and boxes a
// [n,4] int64 tensor in 0..1000 page coordinates.
func WithWordColumns(words, boxes string) Option {
	return func(s *settings) {
		s.wordColumn = words
		s.boxColumn = boxes
	}
}

func newSettings(opts []Option) settings {
	s := settings{imageColumn: "image", labelColumn: "label"}
	for _, opt := range opts {
		opt(&s)
	}

	return s
}

// Base holds what every encoder shares. It declares no schema and cannot encode.
type Base struct {
	vocab       labels.Vocabulary
	cfg         Config
	imageColumn string
	labelColumn string
}

// NewBase merges raw over the base defaults (padding max_length, truncation on).
func NewBase(vocab labels.Vocabulary, raw map[string]any, opts ...Option) (*Base, error) {
	return newBase(vocab, raw, DefaultConfig(""), newSettings(opts))
}

func newBase(vocab labels.Vocabulary, raw map[string]any, defaults Config, s settings) (*Base, error) {
	if s.imageColumn == "" || s.labelColumn == "" {
		return nil, fmt.Errorf("%w: image and label column names must not be empty", errdefs.ErrInvalidArgument)
	}

	if (s.wordColumn == "") != (s.boxColumn == "") {
		return nil, fmt.Errorf("%w: word and box columns must be set together", errdefs.ErrInvalidArgument)
	}

	cfg, err := NewConfig(raw, defaults)
	if err != nil {
		return nil, err
	}

	return &Base{vocab: vocab, cfg: cfg, imageColumn: s.imageColumn, labelColumn: s.labelColumn}, nil
}

func (b *Base) Name() string { return "base" }

// Schema is empty for the base encoder.
func (b *Base) Schema() dataset.Features { return dataset.Features{} }

func (b *Base) Encode(context.Context, dataset.Batch) (dataset.Batch, error) {
	return nil, fmt.Errorf("%w: base encoder has no processor", errdefs.ErrNotImplemented)
}

// Config returns the merged config.
func (b *Base) Config() Config { return b.cfg }

// Vocabulary returns the label vocabulary.
func (b *Base) Vocabulary() labels.Vocabulary { return b.vocab }

// Columns returns the image and label column names.
func (b *Base) Columns() (image, label string) { return b.imageColumn, b.labelColumn }
