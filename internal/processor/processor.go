// Package processor implements the LayoutLM family preprocessing: image
// resize and pixel layout, OCR words to subword tokens with word-level
// boxes, and sequence padding and truncation.
package processor

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/tokenizer"
)

// Padding strategies.
const (
	PadMaxLength = "max_length"
	PadLongest   = "longest"
	PadNone      = "do_not_pad"
)

const (
	DefaultMaxLength = 512
	DefaultImageSize = 224
)

// Kind selects the model family conventions.
type Kind int

const (
	LayoutLMv2 Kind = iota
	LayoutLMv3
	LayoutXLM
)

func (k Kind) String() string {
	switch k {
	case LayoutLMv2:
		return "layoutlmv2"
	case LayoutLMv3:
		return "layoutlmv3"
	case LayoutXLM:
		return "layoutxlm"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind returns the kind named by a target model identifier.
func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{LayoutLMv2, LayoutLMv3, LayoutXLM} {
		if k.String() == name {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown processor kind %q", errdefs.ErrNotFound, name)
}

// AssetFiles lists the tokenizer files a kind loads from <assets>/<model>/.
func (k Kind) AssetFiles() []string {
	switch k {
	case LayoutLMv2:
		return []string{"vocab.txt"}
	case LayoutLMv3:
		return []string{"vocab.json", "merges.txt"}
	case LayoutXLM:
		return []string{"sentencepiece.bpe.model"}
	default:
		return nil
	}
}

// Word is one OCR word and its pixel box (x0, y0, x1, y1).
type Word struct {
	Text string
	Box  [4]int
}

// OCR extracts words from a page image.
type OCR interface {
	Words(ctx context.Context, img image.Image) ([]Word, error)
}

// Fingerprinter is implemented by word sources, tokenizers and processors
// whose output is determined by the returned string.
type Fingerprinter interface {
	Fingerprint() string
}

// Identify returns v's fingerprint prefixed with its type, "-" for nil, or ""
// when v cannot be identified.
func Identify(v any) string {
	if v == nil {
		return "-"
	}

	f, ok := v.(Fingerprinter)
	if !ok {
		return ""
	}

	fp := f.Fingerprint()
	if fp == "" {
		return ""
	}

	return fmt.Sprintf("%T(%s)", v, fp)
}

// NoOCR yields no words; sequences then hold only the special tokens.
type NoOCR struct{}

func (NoOCR) Words(context.Context, image.Image) ([]Word, error) { return nil, nil }

func (NoOCR) Fingerprint() string { return "none" }

// Options configures a Processor. Zero values take the package defaults.
type Options struct {
	MaxLength  int
	Padding    string
	Truncation bool
	ImageSize  int
	OCR        OCR
	// Tokenizer overrides the one loaded from AssetsDir/Model.
	Tokenizer tokenizer.Tokenizer
	AssetsDir string
	Model     string
}

// Processor turns page images into model inputs.
type Processor struct {
	kind Kind
	opts Options
	tok  func() (tokenizer.Tokenizer, error)
}

// NewLayoutLMv2 returns a processor producing BGR int64 "image" tensors and WordPiece tokens.
func NewLayoutLMv2(opts Options) (*Processor, error) { return New(LayoutLMv2, opts) }

// NewLayoutLMv3 returns a processor producing normalized float32 "pixel_values" and BPE tokens.
func NewLayoutLMv3(opts Options) (*Processor, error) { return New(LayoutLMv3, opts) }

// NewLayoutXLM returns a processor producing BGR int64 "image" tensors and SentencePiece tokens.
func NewLayoutXLM(opts Options) (*Processor, error) { return New(LayoutXLM, opts) }

// New returns a processor for kind. The tokenizer is loaded on first use, so
// a processor whose OCR yields no words needs no assets.
func New(kind Kind, opts Options) (*Processor, error) {
	if opts.MaxLength == 0 {
		opts.MaxLength = DefaultMaxLength
	}

	if opts.ImageSize == 0 {
		opts.ImageSize = DefaultImageSize
	}

	if opts.Padding == "" {
		opts.Padding = PadMaxLength
	}

	if opts.OCR == nil {
		opts.OCR = NoOCR{}
	}

	if opts.MaxLength < 2 {
		return nil, fmt.Errorf("%w: max_length %d leaves no room for special tokens", errdefs.ErrInvalidArgument, opts.MaxLength)
	}

	if opts.ImageSize < 1 {
		return nil, fmt.Errorf("%w: image_size must be positive, got %d", errdefs.ErrInvalidArgument, opts.ImageSize)
	}

	switch opts.Padding {
	case PadMaxLength, PadLongest, PadNone:
	default:
		return nil, fmt.Errorf("%w: unknown padding strategy %q", errdefs.ErrInvalidArgument, opts.Padding)
	}

	p := &Processor{kind: kind, opts: opts}

	if opts.Tokenizer != nil {
		tok := opts.Tokenizer
		p.tok = func() (tokenizer.Tokenizer, error) { return tok, nil }
	} else {
		p.tok = sync.OnceValues(p.loadTokenizer)
	}

	return p, nil
}

// Tokenizer returns the processor's tokenizer, loading it on first use.
func (p *Processor) Tokenizer() (tokenizer.Tokenizer, error) { return p.tok() }

// Fingerprint identifies the processor's options, word source and tokenizer.
// It is empty when the word source or tokenizer override has no fingerprint.
func (p *Processor) Fingerprint() string {
	ocr := Identify(p.opts.OCR)
	if ocr == "" {
		return ""
	}

	tok := "assets"
	if p.opts.Tokenizer != nil {
		if tok = Identify(p.opts.Tokenizer); tok == "" {
			return ""
		}
	}

	return fmt.Sprintf("%s|%d|%s|%t|%d|%s|%s|%s|%s", p.kind, p.opts.MaxLength, p.opts.Padding,
		p.opts.Truncation, p.opts.ImageSize, p.opts.AssetsDir, p.opts.Model, ocr, tok)
}

// Kind returns the model family.
func (p *Processor) Kind() Kind { return p.kind }

// PixelKey is the output column holding the image tensor.
func (p *Processor) PixelKey() string {
	if p.kind == LayoutLMv3 {
		return "pixel_values"
	}

	return "image"
}

// HasTokenTypeIDs reports whether the output carries token_type_ids.
func (p *Processor) HasTokenTypeIDs() bool { return p.kind != LayoutLMv3 }

// Process encodes a batch of RGB images, taking words from the OCR. Output
// columns are the pixel key, input_ids, attention_mask, bbox and, except for
// LayoutLMv3, token_type_ids.
func (p *Processor) Process(ctx context.Context, images []image.Image) (dataset.Batch, error) {
	words := make([][]Word, len(images))

	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if img == nil {
			return nil, fmt.Errorf("%w: image %d is nil", errdefs.ErrInvalidArgument, i)
		}

		w, err := p.opts.OCR.Words(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("ocr image %d: %w", i, err)
		}
		words[i] = w
	}

	return p.process(ctx, images, words, false)
}

// ProcessWords encodes images with words extracted beforehand; the OCR is
// not consulted. Word boxes are already in 0..1000 page coordinates.
func (p *Processor) ProcessWords(ctx context.Context, images []image.Image, words [][]Word) (dataset.Batch, error) {
	if len(words) != len(images) {
		return nil, fmt.Errorf("%w: %d word lists for %d images", errdefs.ErrInvalidArgument, len(words), len(images))
	}

	return p.process(ctx, images, words, true)
}

func (p *Processor) process(ctx context.Context, images []image.Image, words [][]Word, normalized bool) (dataset.Batch, error) {
	seqs := make([]sequence, len(images))
	pixels := make([]any, len(images))
	needTokenizer := false

	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if img == nil {
			return nil, fmt.Errorf("%w: image %d is nil", errdefs.ErrInvalidArgument, i)
		}

		needTokenizer = needTokenizer || len(words[i]) > 0

		seq, err := p.encodeWords(words[i], img.Bounds(), normalized)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		seqs[i] = seq

		pixels[i] = p.pixels(img)
	}

	specials, err := p.specials(needTokenizer)
	if err != nil {
		return nil, err
	}

	p.frame(seqs, specials)

	out := dataset.Batch{
		p.PixelKey():     pixels,
		"input_ids":      make([]any, len(seqs)),
		"attention_mask": make([]any, len(seqs)),
		"bbox":           make([]any, len(seqs)),
	}

	if p.HasTokenTypeIDs() {
		out["token_type_ids"] = make([]any, len(seqs))
	}

	for i, s := range seqs {
		out["input_ids"][i] = s.ids
		out["attention_mask"][i] = s.mask
		out["bbox"][i] = s.bboxTensor()

		if p.HasTokenTypeIDs() {
			out["token_type_ids"][i] = make([]int64, len(s.ids))
		}
	}

	return out, nil
}

func (p *Processor) loadTokenizer() (tokenizer.Tokenizer, error) {
	if p.opts.AssetsDir == "" || p.opts.Model == "" {
		return nil, fmt.Errorf("%w: %s tokenizer needs an assets dir and a model name", errdefs.ErrInvalidArgument, p.kind)
	}

	dir := filepath.Join(p.opts.AssetsDir, filepath.FromSlash(p.opts.Model))

	var (
		tok tokenizer.Tokenizer
		err error
	)

	switch p.kind {
	case LayoutLMv2:
		tok, err = tokenizer.NewWordPieceTokenizer(filepath.Join(dir, "vocab.txt"))
	case LayoutLMv3:
		tok, err = tokenizer.NewBPETokenizer(filepath.Join(dir, "vocab.json"), filepath.Join(dir, "merges.txt"))
	case LayoutXLM:
		tok, err = tokenizer.NewXLMTokenizer(filepath.Join(dir, "sentencepiece.bpe.model"))
	default:
		return nil, fmt.Errorf("%w: no tokenizer for %s", errdefs.ErrNotFound, p.kind)
	}

	if err != nil {
		return nil, fmt.Errorf("load %s tokenizer from %s: %w", p.kind, dir, err)
	}

	return tok, nil
}
