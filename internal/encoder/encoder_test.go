package encoder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"reflect"
	"slices"
	"testing"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/labels"
	"github.com/example/go-document-tools/internal/processor"
	"github.com/example/go-document-tools/internal/tokenizer"
)

func rawVocab(t *testing.T, values ...string) labels.Vocabulary {
	t.Helper()

	v, err := labels.FromValues(values)
	if err != nil {
		t.Fatalf("FromValues: %v", err)
	}

	return v
}

func categoricalVocab(t *testing.T, names ...string) labels.Vocabulary {
	t.Helper()

	v, err := labels.Resolve(dataset.Column{Name: "label", Feature: dataset.ClassLabel{Names: names}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	return v
}

func pageImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img
}

func smallConfig() map[string]any {
	return map[string]any{"image_size": 4, "max_length": 8}
}

func TestBaseEncoder(t *testing.T) {
	vocab, err := labels.FromValues([]int{1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("FromValues: %v", err)
	}

	base, err := NewBase(vocab, nil)
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}

	if !reflect.DeepEqual(base.Vocabulary(), vocab) {
		t.Fatal("Vocabulary() does not return the constructor vocabulary")
	}

	if base.Config().Padding != "max_length" || !base.Config().Truncation {
		t.Fatalf("config = %+v; want max_length padding with truncation", base.Config())
	}

	if len(base.Schema()) != 0 {
		t.Fatalf("base schema = %v; want empty", base.Schema())
	}

	_, err = base.Encode(context.Background(), dataset.Batch{"image": {pageImage()}})
	if !errors.Is(err, errdefs.ErrNotImplemented) {
		t.Fatalf("base Encode error = %v; want ErrNotImplemented", err)
	}
}

func TestVariantSchemas(t *testing.T) {
	vocab := rawVocab(t, "bill", "invoice")

	tests := []struct {
		name   string
		ctor   Constructor
		fields []string
		pixel  dataset.Array
		labels dataset.Feature
	}{
		{
			name:   "layoutlmv2",
			ctor:   NewLayoutLMv2,
			fields: []string{"image", "input_ids", "attention_mask", "token_type_ids", "bbox", "labels"},
			pixel:  dataset.Array{DType: dataset.Int64, Shape: []int{3, 224, 224}},
			labels: dataset.SequenceOf(dataset.ClassLabel{Names: []string{"bill", "invoice"}}),
		},
		{
			name:   "layoutlmv3",
			ctor:   NewLayoutLMv3,
			fields: []string{"pixel_values", "input_ids", "attention_mask", "bbox", "labels"},
			pixel:  dataset.Array{DType: dataset.Float32, Shape: []int{3, 224, 224}},
			labels: dataset.SequenceOf(dataset.Value{DType: dataset.Int64}),
		},
		{
			name:   "layoutxlm",
			ctor:   NewLayoutXLM,
			fields: []string{"image", "input_ids", "attention_mask", "token_type_ids", "bbox", "labels"},
			pixel:  dataset.Array{DType: dataset.Int64, Shape: []int{3, 224, 224}},
			labels: dataset.SequenceOf(dataset.ClassLabel{Names: []string{"bill", "invoice"}}),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := tc.ctor(vocab, nil)
			if err != nil {
				t.Fatalf("constructor: %v", err)
			}

			if enc.Name() != tc.name {
				t.Fatalf("Name() = %q; want %q", enc.Name(), tc.name)
			}

			schema := enc.Schema()
			if !reflect.DeepEqual(schema.Names(), tc.fields) {
				t.Fatalf("schema names = %v; want %v", schema.Names(), tc.fields)
			}

			if pixel, _ := schema.Get(tc.fields[0]); !reflect.DeepEqual(pixel, tc.pixel) {
				t.Errorf("%s = %v; want %v", tc.fields[0], pixel, tc.pixel)
			}

			wantBox := dataset.Array{DType: dataset.Int64, Shape: []int{512, 4}}
			if bbox, _ := schema.Get("bbox"); !reflect.DeepEqual(bbox, wantBox) {
				t.Errorf("bbox = %v; want %v", bbox, wantBox)
			}

			if lbl, _ := schema.Get("labels"); !reflect.DeepEqual(lbl, tc.labels) {
				t.Errorf("labels = %v; want %v", lbl, tc.labels)
			}
		})
	}
}

func TestSchemaFollowsConfig(t *testing.T) {
	enc, err := NewLayoutLMv2(rawVocab(t, "a"), map[string]any{"padding": "longest", "image_size": "32"})
	if err != nil {
		t.Fatalf("NewLayoutLMv2: %v", err)
	}

	want := dataset.Array{DType: dataset.Int64, Shape: []int{-1, 4}}
	if bbox, _ := enc.Schema().Get("bbox"); !reflect.DeepEqual(bbox, want) {
		t.Fatalf("bbox = %v; want %v", bbox, want)
	}

	want = dataset.Array{DType: dataset.Int64, Shape: []int{3, 32, 32}}
	if img, _ := enc.Schema().Get("image"); !reflect.DeepEqual(img, want) {
		t.Fatalf("image = %v; want %v", img, want)
	}
}

func TestEncodeProducesExactSchema(t *testing.T) {
	for _, name := range TargetModels() {
		t.Run(name, func(t *testing.T) {
			ctor, err := Lookup(name)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}

			enc, err := ctor(rawVocab(t, "bill", "invoice", "receipt"), smallConfig())
			if err != nil {
				t.Fatalf("constructor: %v", err)
			}

			batch := dataset.Batch{
				"image": {pageImage(), pageImage()},
				"label": {"receipt", []string{"bill", "invoice"}},
				"other": {1, 2},
			}

			out, err := enc.Encode(context.Background(), batch)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			want := enc.Schema().Names()
			slices.Sort(want)
			if got := keys(out); !reflect.DeepEqual(got, want) {
				t.Fatalf("output columns = %v; want %v", got, want)
			}

			if !reflect.DeepEqual(out["labels"], []any{[]int64{2}, []int64{0, 1}}) {
				t.Fatalf("labels = %v; want [[2] [0 1]]", out["labels"])
			}

			for _, f := range enc.Schema() {
				if len(out[f.Name]) != 2 {
					t.Fatalf("column %q has %d values; want 2", f.Name, len(out[f.Name]))
				}
				for _, v := range out[f.Name] {
					if err := f.Type.Check(v); err != nil {
						t.Fatalf("column %q: %v", f.Name, err)
					}
				}
			}
		})
	}
}

func TestEncodeCategoricalLabels(t *testing.T) {
	enc, err := NewLayoutXLM(categoricalVocab(t, "z", "a"), smallConfig())
	if err != nil {
		t.Fatalf("NewLayoutXLM: %v", err)
	}

	out, err := enc.Encode(context.Background(), dataset.Batch{
		"image": {pageImage(), pageImage()},
		"label": {int64(1), []int64{0, 1}},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if want := []any{[]int64{1}, []int64{0, 1}}; !reflect.DeepEqual(out["labels"], want) {
		t.Fatalf("labels = %v; want %v", out["labels"], want)
	}

	_, err = enc.Encode(context.Background(), dataset.Batch{"image": {pageImage()}, "label": {int64(2)}})
	if !errors.Is(err, errdefs.ErrSchemaMismatch) {
		t.Fatalf("out of range class error = %v; want ErrSchemaMismatch", err)
	}

	_, err = enc.Encode(context.Background(), dataset.Batch{"image": {pageImage()}, "label": {"a"}})
	if !errors.Is(err, errdefs.ErrTypeMismatch) {
		t.Fatalf("string class error = %v; want ErrTypeMismatch", err)
	}
}

func TestEncodeInputErrors(t *testing.T) {
	enc, err := NewLayoutLMv3(rawVocab(t, "a"), smallConfig(), WithColumns("page", "class"))
	if err != nil {
		t.Fatalf("NewLayoutLMv3: %v", err)
	}

	ctx := context.Background()

	tests := []struct {
		name  string
		batch dataset.Batch
		want  error
	}{
		{"missing image column", dataset.Batch{"class": {"a"}}, errdefs.ErrNotFound},
		{"missing label column", dataset.Batch{"page": {pageImage()}}, errdefs.ErrNotFound},
		{"length mismatch", dataset.Batch{"page": {pageImage()}, "class": {"a", "a"}}, errdefs.ErrSchemaMismatch},
		{"not an image", dataset.Batch{"page": {"png"}, "class": {"a"}}, errdefs.ErrTypeMismatch},
		{"unknown label", dataset.Batch{"page": {pageImage()}, "class": {"b"}}, errdefs.ErrNotFound},
		{"nil label", dataset.Batch{"page": {pageImage()}, "class": {nil}}, errdefs.ErrTypeMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := enc.Encode(ctx, tc.batch); !errors.Is(err, tc.want) {
				t.Fatalf("Encode error = %v; want %v", err, tc.want)
			}
		})
	}
}

type fakeProcessor struct {
	out dataset.Batch
	err error
	got []image.Image
}

func (f *fakeProcessor) Process(_ context.Context, images []image.Image) (dataset.Batch, error) {
	f.got = images
	return f.out, f.err
}

type fakeWordProcessor struct {
	fakeProcessor
	words [][]processor.Word
}

func (f *fakeWordProcessor) ProcessWords(_ context.Context, images []image.Image, words [][]processor.Word) (dataset.Batch, error) {
	f.got = images
	f.words = words
	return f.out, f.err
}

func TestEncodeDropsExtrasAndRejectsMissing(t *testing.T) {
	ints := []any{[]int64{1, 2}}
	fake := &fakeProcessor{out: dataset.Batch{
		"pixel_values":   {dataset.NewFloat32Tensor([]int{3, 1, 1}, []float32{0, 0, 0})},
		"input_ids":      ints,
		"attention_mask": ints,
		"bbox":           {dataset.NewInt64Tensor([]int{2, 4}, make([]int64, 8))},
		"offset_mapping": ints,
	}}

	enc, err := NewLayoutLMv3(rawVocab(t, "a"), map[string]any{"image_size": 1, "padding": "do_not_pad"}, WithProcessor(fake))
	if err != nil {
		t.Fatalf("NewLayoutLMv3: %v", err)
	}

	batch := dataset.Batch{"image": {pageImage()}, "label": {"a"}}

	out, err := enc.Encode(context.Background(), batch)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, ok := out["offset_mapping"]; ok {
		t.Fatal("undeclared processor output offset_mapping was kept")
	}

	delete(fake.out, "bbox")
	if _, err := enc.Encode(context.Background(), batch); !errors.Is(err, errdefs.ErrSchemaMismatch) {
		t.Fatalf("missing bbox error = %v; want ErrSchemaMismatch", err)
	}

	fake.out["bbox"] = []any{dataset.NewInt64Tensor([]int{2, 3}, make([]int64, 6))}
	if _, err := enc.Encode(context.Background(), batch); !errors.Is(err, errdefs.ErrSchemaMismatch) {
		t.Fatalf("malformed bbox error = %v; want ErrSchemaMismatch", err)
	}
}

func TestEncodeNormalizesToOpaqueRGB(t *testing.T) {
	fake := &fakeProcessor{err: errors.New("stop")}

	enc, err := NewLayoutLMv2(rawVocab(t, "a"), nil, WithProcessor(fake))
	if err != nil {
		t.Fatalf("NewLayoutLMv2: %v", err)
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	rgba.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})

	if _, err := enc.Encode(context.Background(), dataset.Batch{"image": {rgba}, "label": {"a"}}); err == nil {
		t.Fatal("Encode should surface the processor error")
	}

	if len(fake.got) != 1 {
		t.Fatalf("processor received %d images; want 1", len(fake.got))
	}

	r, g, b, a := fake.got[0].At(0, 0).RGBA()
	if got := []uint32{r >> 8, g >> 8, b >> 8, a >> 8}; !reflect.DeepEqual(got, []uint32{10, 20, 30, 255}) {
		t.Fatalf("pixel = %v; want [10 20 30 255]", got)
	}
}

func TestProcessorFactoryReceivesMergedConfig(t *testing.T) {
	var got Config
	factory := func(cfg Config) (Processor, error) {
		got = cfg
		return &fakeProcessor{}, nil
	}

	if _, err := NewLayoutXLM(rawVocab(t, "a"), map[string]any{"max_length": 128, "apply_ocr": false}, WithProcessorFactory(factory)); err != nil {
		t.Fatalf("NewLayoutXLM: %v", err)
	}

	if got.MaxLength != 128 || got.DefaultModel != DefaultLayoutXLMModel {
		t.Fatalf("factory config = %+v; want max_length 128 and the layoutxlm model", got)
	}

	if !reflect.DeepEqual(got.Extra, map[string]any{"apply_ocr": false}) {
		t.Fatalf("extra = %v; want apply_ocr", got.Extra)
	}

	boom := errors.New("no assets")
	_, err := NewLayoutXLM(rawVocab(t, "a"), nil, WithProcessorFactory(func(Config) (Processor, error) { return nil, boom }))
	if !errors.Is(err, boom) {
		t.Fatalf("factory error = %v; want %v", err, boom)
	}
}

// letterTokenizer maps every rune to a token in 10..35 and marks the
// specials with small ids.
type letterTokenizer struct{}

func (letterTokenizer) Encode(text string) ([]int64, error) {
	var out []int64
	for _, r := range text {
		out = append(out, 10+int64(r-'a'))
	}
	return out, nil
}

func (letterTokenizer) Specials() tokenizer.Specials {
	return tokenizer.Specials{CLS: 1, SEP: 2, PAD: 0, UNK: 3}
}

func wordBatch(words []any, boxes []any) dataset.Batch {
	images := make([]any, len(words))
	labels := make([]any, len(words))
	for i := range words {
		images[i] = pageImage()
		labels[i] = "a"
	}

	return dataset.Batch{"image": images, "label": labels, "words": words, "boxes": boxes}
}

func TestEncodeWordColumns(t *testing.T) {
	factory := func(cfg Config) (Processor, error) {
		p, err := processor.New(processor.LayoutLMv2, processor.Options{
			MaxLength: cfg.MaxLength,
			ImageSize: cfg.ImageSize,
			Tokenizer: letterTokenizer{},
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	enc, err := NewLayoutLMv2(rawVocab(t, "a"), smallConfig(), WithProcessorFactory(factory), WithWordColumns("words", "boxes"))
	if err != nil {
		t.Fatalf("NewLayoutLMv2: %v", err)
	}

	out, err := enc.Encode(context.Background(), wordBatch(
		[]any{[]any{"ab", "c"}, []string{}},
		[]any{
			dataset.NewInt64Tensor([]int{2, 4}, []int64{10, 20, 110, 40, 500, 20, 1400, 40}),
			dataset.NewInt64Tensor([]int{0, 4}, []int64{}),
		},
	))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if want := []int64{1, 10, 11, 12, 2, 0, 0, 0}; !reflect.DeepEqual(out["input_ids"][0], want) {
		t.Fatalf("row 0 input_ids = %v; want %v", out["input_ids"][0], want)
	}

	if want := []int64{1, 2, 0, 0, 0, 0, 0, 0}; !reflect.DeepEqual(out["input_ids"][1], want) {
		t.Fatalf("row 1 input_ids = %v; want %v", out["input_ids"][1], want)
	}

	wantBoxes := []int64{
		0, 0, 0, 0,
		10, 20, 110, 40,
		10, 20, 110, 40,
		500, 20, 1000, 40,
		1000, 1000, 1000, 1000,
	}
	if got := out["bbox"][0].(*dataset.Tensor).Int64s[:20]; !reflect.DeepEqual(got, wantBoxes) {
		t.Fatalf("row 0 bbox = %v; want %v", got, wantBoxes)
	}
}

func TestEncodeWordColumnErrors(t *testing.T) {
	fake := &fakeWordProcessor{}
	enc, err := NewLayoutLMv3(rawVocab(t, "a"), smallConfig(), WithProcessor(fake), WithWordColumns("words", "boxes"))
	if err != nil {
		t.Fatalf("NewLayoutLMv3: %v", err)
	}

	oneBox := dataset.NewInt64Tensor([]int{1, 4}, []int64{1, 2, 3, 4})

	tests := []struct {
		name  string
		batch dataset.Batch
		want  error
	}{
		{"missing box column", dataset.Batch{"image": {pageImage()}, "label": {"a"}, "words": {[]string{"x"}}}, errdefs.ErrNotFound},
		{"missing word column", dataset.Batch{"image": {pageImage()}, "label": {"a"}, "boxes": {oneBox}}, errdefs.ErrNotFound},
		{"more boxes than words", wordBatch([]any{[]string{}}, []any{oneBox}), errdefs.ErrSchemaMismatch},
		{"fewer box lists than records", dataset.Batch{"image": {pageImage()}, "label": {"a"}, "words": {[]string{"x"}}, "boxes": {}}, errdefs.ErrSchemaMismatch},
		{"words not strings", wordBatch([]any{[]any{1}}, []any{oneBox}), errdefs.ErrTypeMismatch},
		{"boxes not a tensor", wordBatch([]any{[]string{"x"}}, []any{[]int64{1, 2, 3, 4}}), errdefs.ErrTypeMismatch},
		{"boxes with three columns", wordBatch([]any{[]string{"x"}}, []any{dataset.NewInt64Tensor([]int{1, 3}, []int64{1, 2, 3})}), errdefs.ErrTypeMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := enc.Encode(context.Background(), tc.batch); !errors.Is(err, tc.want) {
				t.Fatalf("Encode error = %v; want %v", err, tc.want)
			}
		})
	}

	if fake.words != nil {
		t.Fatalf("processor ran for invalid word columns: %v", fake.words)
	}
}

func TestWordColumnsOptionValidation(t *testing.T) {
	if _, err := NewLayoutLMv2(rawVocab(t, "a"), nil, WithWordColumns("words", "")); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("words without boxes error = %v; want ErrInvalidArgument", err)
	}

	_, err := NewLayoutLMv2(rawVocab(t, "a"), nil, WithProcessor(&fakeProcessor{}), WithWordColumns("words", "boxes"))
	if !errors.Is(err, errdefs.ErrNotImplemented) {
		t.Fatalf("word columns with a plain processor error = %v; want ErrNotImplemented", err)
	}
}

// namedOCR yields no words but carries a fingerprint.
type namedOCR string

func (namedOCR) Words(context.Context, image.Image) ([]processor.Word, error) { return nil, nil }

func (n namedOCR) Fingerprint() string { return string(n) }

// anonymousOCR yields no words and cannot be fingerprinted.
type anonymousOCR struct{}

func (anonymousOCR) Words(context.Context, image.Image) ([]processor.Word, error) { return nil, nil }

func TestEncoderFingerprint(t *testing.T) {
	fingerprint := func(opts ...Option) string {
		t.Helper()

		enc, err := NewLayoutLMv2(rawVocab(t, "a"), smallConfig(), opts...)
		if err != nil {
			t.Fatalf("NewLayoutLMv2: %v", err)
		}

		fp, ok := enc.(processor.Fingerprinter)
		if !ok {
			t.Fatalf("%T does not implement Fingerprinter", enc)
		}

		return fp.Fingerprint()
	}

	base := fingerprint()
	if base == "" {
		t.Fatal("the built-in processor should be fingerprinted")
	}

	if got := fingerprint(); got != base {
		t.Fatalf("fingerprint is not stable: %q vs %q", got, base)
	}

	for name, got := range map[string]string{
		"ocr":          fingerprint(WithOCR(namedOCR("tesseract-eng"))),
		"other ocr":    fingerprint(WithOCR(namedOCR("tesseract-deu"))),
		"word columns": fingerprint(WithWordColumns("words", "boxes")),
	} {
		if got == "" || got == base {
			t.Errorf("%s: fingerprint %q should differ from %q", name, got, base)
		}
	}

	if a, b := fingerprint(WithOCR(namedOCR("tesseract-eng"))), fingerprint(WithOCR(namedOCR("tesseract-deu"))); a == b {
		t.Errorf("different OCR fingerprints share an encoder fingerprint: %q", a)
	}

	if got := fingerprint(WithOCR(anonymousOCR{})); got != "" {
		t.Errorf("an OCR without a fingerprint must disable the encoder fingerprint, got %q", got)
	}

	if got := fingerprint(WithProcessor(&fakeProcessor{})); got != "" {
		t.Errorf("a custom processor without a fingerprint must disable the encoder fingerprint, got %q", got)
	}
}

func TestInputColumns(t *testing.T) {
	enc, err := NewLayoutXLM(rawVocab(t, "a"), nil, WithColumns("page", "class"), WithWordColumns("tokens", "token_boxes"))
	if err != nil {
		t.Fatalf("NewLayoutXLM: %v", err)
	}

	got := enc.(*LayoutEncoder).InputColumns()
	if want := []string{"page", "class", "tokens", "token_boxes"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("InputColumns() = %v; want %v", got, want)
	}
}

func keys(b dataset.Batch) []string {
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
