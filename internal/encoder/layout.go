package encoder

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/labels"
	"github.com/example/go-document-tools/internal/processor"
)

// Default hub models per target.
const (
	DefaultLayoutLMv2Model = "microsoft/layoutlmv2-base-uncased"
	DefaultLayoutLMv3Model = "microsoft/layoutlmv3-base"
	DefaultLayoutXLMModel  = "microsoft/layoutxlm-base"
)

// LayoutEncoder encodes batches for one LayoutLM family model.
type LayoutEncoder struct {
	*Base
	name   string
	kind   processor.Kind
	schema dataset.Features
	proc   Processor
	words  string
	boxes  string
}

// NewLayoutLMv2 builds the layoutlmv2 encoder.
func NewLayoutLMv2(vocab labels.Vocabulary, raw map[string]any, opts ...Option) (Encoder, error) {
	return newLayout("layoutlmv2", processor.LayoutLMv2, DefaultLayoutLMv2Model, vocab, raw, opts)
}

// NewLayoutLMv3 builds the layoutlmv3 encoder.
func NewLayoutLMv3(vocab labels.Vocabulary, raw map[string]any, opts ...Option) (Encoder, error) {
	return newLayout("layoutlmv3", processor.LayoutLMv3, DefaultLayoutLMv3Model, vocab, raw, opts)
}

// NewLayoutXLM builds the layoutxlm encoder.
func NewLayoutXLM(vocab labels.Vocabulary, raw map[string]any, opts ...Option) (Encoder, error) {
	return newLayout("layoutxlm", processor.LayoutXLM, DefaultLayoutXLMModel, vocab, raw, opts)
}

func newLayout(name string, kind processor.Kind, model string, vocab labels.Vocabulary, raw map[string]any, opts []Option) (Encoder, error) {
	s := newSettings(opts)

	base, err := newBase(vocab, raw, DefaultConfig(model), s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	proc, err := buildProcessor(kind, base.cfg, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if s.wordColumn != "" {
		if _, ok := proc.(WordProcessor); !ok {
			return nil, fmt.Errorf("%w: %s: processor %T cannot take word columns", errdefs.ErrNotImplemented, name, proc)
		}
	}

	return &LayoutEncoder{
		Base:   base,
		name:   name,
		kind:   kind,
		schema: layoutSchema(kind, base.cfg, vocab),
		proc:   proc,
		words:  s.wordColumn,
		boxes:  s.boxColumn,
	}, nil
}

func buildProcessor(kind processor.Kind, cfg Config, s settings) (Processor, error) {
	if s.processor != nil {
		return s.processor, nil
	}

	if s.factory != nil {
		p, err := s.factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("build processor: %w", err)
		}

		return p, nil
	}

	p, err := processor.New(kind, processor.Options{
		MaxLength:  cfg.MaxLength,
		Padding:    cfg.Padding,
		Truncation: cfg.Truncation,
		ImageSize:  cfg.ImageSize,
		OCR:        s.ocr,
		AssetsDir:  cfg.AssetsDir,
		Model:      cfg.DefaultModel,
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

func layoutSchema(kind processor.Kind, cfg Config, vocab labels.Vocabulary) dataset.Features {
	size := cfg.ImageSize
	ints := dataset.SequenceOf(dataset.Value{DType: dataset.Int64})
	bbox := dataset.Array{DType: dataset.Int64, Shape: []int{cfg.sequenceLength(), 4}}

	if kind == processor.LayoutLMv3 {
		return dataset.Features{
			{Name: "pixel_values", Type: dataset.Array{DType: dataset.Float32, Shape: []int{3, size, size}}},
			{Name: "input_ids", Type: ints},
			{Name: "attention_mask", Type: ints},
			{Name: "bbox", Type: bbox},
			{Name: "labels", Type: ints},
		}
	}

	return dataset.Features{
		{Name: "image", Type: dataset.Array{DType: dataset.Int64, Shape: []int{3, size, size}}},
		{Name: "input_ids", Type: ints},
		{Name: "attention_mask", Type: ints},
		{Name: "token_type_ids", Type: ints},
		{Name: "bbox", Type: bbox},
		{Name: "labels", Type: dataset.SequenceOf(dataset.ClassLabel{Names: vocab.Names()})},
	}
}

func (e *LayoutEncoder) Name() string { return e.name }

// Fingerprint identifies the encoder's processor and word source. It is empty
// when the processor cannot be identified, and results must then not be
// reused from a cache.
func (e *LayoutEncoder) Fingerprint() string {
	proc := processor.Identify(e.proc)
	if proc == "" || proc == "-" {
		return ""
	}

	return fmt.Sprintf("%s|%s|%s|%s", e.name, e.words, e.boxes, proc)
}

// InputColumns returns the batch columns Encode reads.
func (e *LayoutEncoder) InputColumns() []string {
	cols := []string{e.imageColumn, e.labelColumn}
	if e.words != "" {
		cols = append(cols, e.words, e.boxes)
	}

	return cols
}

// Schema returns a copy of the output features.
func (e *LayoutEncoder) Schema() dataset.Features { return append(dataset.Features{}, e.schema...) }

// Encode converts every image to opaque RGB, runs the processor, attaches
// the label indices and checks the result against the schema.
func (e *LayoutEncoder) Encode(ctx context.Context, batch dataset.Batch) (dataset.Batch, error) {
	images, ok := batch[e.imageColumn]
	if !ok {
		return nil, fmt.Errorf("%w: image column %q not in batch", errdefs.ErrNotFound, e.imageColumn)
	}

	rawLabels, ok := batch[e.labelColumn]
	if !ok {
		return nil, fmt.Errorf("%w: label column %q not in batch", errdefs.ErrNotFound, e.labelColumn)
	}

	n := len(images)
	if len(rawLabels) != n {
		return nil, fmt.Errorf("%w: %d images but %d labels", errdefs.ErrSchemaMismatch, n, len(rawLabels))
	}

	rgb := make([]image.Image, n)
	for i, v := range images {
		img, ok := v.(image.Image)
		if !ok || img == nil {
			return nil, fmt.Errorf("%w: record %d image is %T", errdefs.ErrTypeMismatch, i, v)
		}
		rgb[i] = toRGB(img)
	}

	encodedLabels := make([]any, n)
	for i, v := range rawLabels {
		idx, err := encodeLabel(e.vocab, v)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		encodedLabels[i] = idx
	}

	processed, err := e.process(ctx, batch, rgb)
	if err != nil {
		return nil, fmt.Errorf("%s processor: %w", e.name, err)
	}

	out := make(dataset.Batch, len(e.schema))
	for _, f := range e.schema {
		col := processed[f.Name]
		if f.Name == "labels" {
			col = encodedLabels
		}

		if col == nil {
			return nil, fmt.Errorf("%w: processor did not produce %q", errdefs.ErrSchemaMismatch, f.Name)
		}

		if len(col) != n {
			return nil, fmt.Errorf("%w: column %q has %d values for %d records", errdefs.ErrSchemaMismatch, f.Name, len(col), n)
		}

		for i, v := range col {
			if err := f.Type.Check(v); err != nil {
				return nil, fmt.Errorf("record %d column %q: %w", i, f.Name, err)
			}
		}

		out[f.Name] = col
	}

	return out, nil
}

func (e *LayoutEncoder) process(ctx context.Context, batch dataset.Batch, images []image.Image) (dataset.Batch, error) {
	if e.words == "" {
		return e.proc.Process(ctx, images)
	}

	words, err := wordsFromBatch(batch, e.words, e.boxes, len(images))
	if err != nil {
		return nil, err
	}

	return e.proc.(WordProcessor).ProcessWords(ctx, images, words)
}

// toRGB returns an opaque copy of img. Alpha is discarded, not composited.
func toRGB(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}

	return dst
}
