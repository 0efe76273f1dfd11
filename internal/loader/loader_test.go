package loader

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/errdefs"
	"github.com/example/go-document-tools/internal/labels"
	"github.com/example/go-document-tools/internal/testutil"
)

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	switch filepath.Ext(path) {
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, nil)
	default:
		err = png.Encode(f, img)
	}

	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func split(t *testing.T, dict *dataset.DatasetDict, name string) *dataset.Dataset {
	t.Helper()

	ds, ok := dict.Get(name)
	if !ok {
		t.Fatalf("split %q missing; have %v", name, dict.Names())
	}

	return ds
}

func columnValues(t *testing.T, ds *dataset.Dataset, name string) []any {
	t.Helper()

	col, err := ds.Column(name)
	if err != nil {
		t.Fatalf("Column(%s): %v", name, err)
	}

	return col.Values
}

func TestDecodeImageFormats(t *testing.T) {
	dir := t.TempDir()
	src := testutil.SolidImage(3, 2, color.NRGBA{R: 200, G: 10, B: 30, A: 255})

	for _, name := range []string{"a.png", "a.bmp", "a.tiff"} {
		path := filepath.Join(dir, name)
		writeImage(t, path, src)

		img, err := DecodeImage(path)
		if err != nil {
			t.Fatalf("DecodeImage(%s): %v", name, err)
		}

		if img.Bounds() != image.Rect(0, 0, 3, 2) {
			t.Errorf("%s bounds = %v; want 3x2", name, img.Bounds())
		}

		r, g, b, _ := img.At(1, 1).RGBA()
		if got := []uint32{r >> 8, g >> 8, b >> 8}; !reflect.DeepEqual(got, []uint32{200, 10, 30}) {
			t.Errorf("%s pixel = %v; want [200 10 30]", name, got)
		}
	}

	if _, err := DecodeImage(filepath.Join(dir, "missing.png")); err == nil {
		t.Fatal("DecodeImage should fail for a missing file")
	}
}

func TestOrient(t *testing.T) {
	// 2x1 source: red then blue.
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, red)
	src.Set(1, 0, blue)

	at := func(img image.Image, x, y int) color.NRGBA {
		return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	}

	for _, o := range []int{1, 9} {
		if got := orient(src, o); got != image.Image(src) {
			t.Errorf("orient(%d) should return the source unchanged", o)
		}
	}

	if got := at(orient(src, 2), 0, 0); got != blue {
		t.Errorf("mirrored (0,0) = %v; want blue", got)
	}

	cw := orient(src, 6)
	if cw.Bounds() != image.Rect(0, 0, 1, 2) {
		t.Fatalf("rotated bounds = %v; want 1x2", cw.Bounds())
	}
	if at(cw, 0, 0) != red || at(cw, 0, 1) != blue {
		t.Errorf("clockwise rotation = %v,%v; want red,blue", at(cw, 0, 0), at(cw, 0, 1))
	}

	ccw := orient(src, 8)
	if at(ccw, 0, 0) != blue || at(ccw, 0, 1) != red {
		t.Errorf("counter-clockwise rotation = %v,%v; want blue,red", at(ccw, 0, 0), at(ccw, 0, 1))
	}

	if got := at(orient(src, 3), 0, 0); got != blue {
		t.Errorf("upside down (0,0) = %v; want blue", got)
	}
}

func TestImageFolderSingleSplit(t *testing.T) {
	root := t.TempDir()
	img := testutil.SolidImage(4, 4, color.White)

	writeImage(t, filepath.Join(root, "receipt", "r1.png"), img)
	writeImage(t, filepath.Join(root, "invoice", "i1.png"), img)
	writeImage(t, filepath.Join(root, "invoice", "nested", "i2.bmp"), img)
	writeFile(t, filepath.Join(root, "invoice", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "invoice", "scan.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, "README.md"), "ignored")

	rec := &testutil.LogRecorder{}

	dict, err := ImageFolder(context.Background(), root, Options{Logger: rec.Logger()})
	if err != nil {
		t.Fatalf("ImageFolder: %v", err)
	}

	if got := strings.Join(dict.Names(), ","); got != "train" {
		t.Fatalf("splits = %s; want train", got)
	}

	train := split(t, dict, "train")
	if train.Len() != 3 {
		t.Fatalf("train rows = %d; want 3", train.Len())
	}
	testutil.AssertConforms(t, train)

	want := dataset.ClassLabel{Names: []string{"invoice", "receipt"}}
	if f, _ := train.Features().Get("label"); !reflect.DeepEqual(f, want) {
		t.Fatalf("label feature = %v; want %v", f, want)
	}

	col, err := train.Column("label")
	if err != nil {
		t.Fatalf("Column(label): %v", err)
	}

	if want := []any{int64(0), int64(0), int64(1)}; !reflect.DeepEqual(col.Values, want) {
		t.Fatalf("labels = %v; want %v", col.Values, want)
	}

	if n := len(rec.AtLevel(slog.LevelWarn)); n != 1 {
		t.Fatalf("the pdf should be reported once, got %d warnings", n)
	}

	vocab, err := labels.Resolve(col)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !vocab.Categorical() || !reflect.DeepEqual(vocab.Names(), []string{"invoice", "receipt"}) {
		t.Fatalf("vocab = %v (categorical %v)", vocab.Names(), vocab.Categorical())
	}
}

func TestImageFolderSplits(t *testing.T) {
	root := t.TempDir()
	img := testutil.SolidImage(2, 2, color.Black)

	writeImage(t, filepath.Join(root, "train", "a", "1.png"), img)
	writeImage(t, filepath.Join(root, "train", "b", "2.png"), img)
	writeImage(t, filepath.Join(root, "test", "c", "3.png"), img)
	writeImage(t, filepath.Join(root, "validation", "a", "4.png"), img)

	dict, err := ImageFolder(context.Background(), root, Options{NumWorkers: 3, LabelColumn: "category"})
	if err != nil {
		t.Fatalf("ImageFolder: %v", err)
	}

	if got := strings.Join(dict.Names(), ","); got != "train,validation,test" {
		t.Fatalf("splits = %s; want train,validation,test", got)
	}

	test := split(t, dict, "test")

	want := dataset.ClassLabel{Names: []string{"a", "b", "c"}}
	if f, ok := test.Features().Get("category"); !ok || !reflect.DeepEqual(f, want) {
		t.Fatalf("classes should span all splits: category = %v, %v", f, ok)
	}

	if got := columnValues(t, test, "category"); !reflect.DeepEqual(got, []any{int64(2)}) {
		t.Fatalf("test categories = %v; want [2]", got)
	}
}

func TestImageFolderErrors(t *testing.T) {
	if _, err := ImageFolder(context.Background(), filepath.Join(t.TempDir(), "absent"), Options{}); err == nil {
		t.Fatal("ImageFolder should fail for a missing root")
	}

	if _, err := ImageFolder(context.Background(), t.TempDir(), Options{}); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Fatalf("empty root error = %v; want ErrInvalidArgument", err)
	}

	root := t.TempDir()
	writeImage(t, filepath.Join(root, "a", "1.png"), testutil.SolidImage(2, 2, color.Black))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ImageFolder(ctx, root, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled error = %v; want context.Canceled", err)
	}
}

func TestJSONLines(t *testing.T) {
	dir := t.TempDir()
	img := testutil.SolidImage(2, 2, color.White)

	writeImage(t, filepath.Join(dir, "pages", "1.png"), img)
	writeImage(t, filepath.Join(dir, "pages", "2.png"), img)
	writeImage(t, filepath.Join(dir, "pages", "3.png"), img)

	manifest := filepath.Join(dir, "manifest.jsonl")
	writeFile(t, manifest, `{"image": "pages/1.png", "label": "invoice", "split": "validation"}

{"image": "pages/2.png", "label": ["receipt", "paid"]}
{"image": "pages/3.png", "label": []}
`)

	dict, err := JSONLines(context.Background(), manifest, Options{})
	if err != nil {
		t.Fatalf("JSONLines: %v", err)
	}

	if got := strings.Join(dict.Names(), ","); got != "validation,train" {
		t.Fatalf("splits = %s; want validation,train", got)
	}

	train := split(t, dict, "train")
	testutil.AssertConforms(t, train)

	if _, ok := train.Features().Get("words"); ok {
		t.Fatal("a manifest without words must not gain a words column")
	}

	col, err := train.Column("label")
	if err != nil {
		t.Fatalf("Column(label): %v", err)
	}

	if want := []any{[]string{"receipt", "paid"}, []string{}}; !reflect.DeepEqual(col.Values, want) {
		t.Fatalf("labels = %v; want %v", col.Values, want)
	}

	vocab, err := labels.Resolve(col)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if want := []string{"paid", "receipt"}; !reflect.DeepEqual(vocab.Names(), want) {
		t.Fatalf("vocab = %v; want %v", vocab.Names(), want)
	}
}

func TestJSONLinesIntegerLabels(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "1.png"), testutil.SolidImage(2, 2, color.White))

	manifest := filepath.Join(dir, "m.jsonl")
	writeFile(t, manifest, `{"image": "1.png", "label": []}
{"image": "1.png", "label": 3}
{"image": "1.png", "label": [1, 2]}
`)

	dict, err := JSONLines(context.Background(), manifest, Options{})
	if err != nil {
		t.Fatalf("JSONLines: %v", err)
	}

	want := []any{[]int64{}, []int64{3}, []int64{1, 2}}
	if got := columnValues(t, split(t, dict, "train"), "label"); !reflect.DeepEqual(got, want) {
		t.Fatalf("labels = %v; want %v", got, want)
	}
}

func TestJSONLinesWords(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "1.png"), testutil.SolidImage(2, 2, color.White))

	manifest := filepath.Join(dir, "m.jsonl")
	writeFile(t, manifest, `{"image": "1.png", "label": "invoice", "words": ["Total", "12.00"], "boxes": [[10, 20, 80, 40], [90, 20, 160, 40]]}
{"image": "1.png", "label": "receipt"}
`)

	dict, err := JSONLines(context.Background(), manifest, Options{WordsColumn: "tokens", BoxesColumn: "token_boxes"})
	if err != nil {
		t.Fatalf("JSONLines: %v", err)
	}

	train := split(t, dict, "train")
	testutil.AssertConforms(t, train)

	if got := strings.Join(train.Features().Names(), ","); got != "image,label,tokens,token_boxes" {
		t.Fatalf("features = %s; want image,label,tokens,token_boxes", got)
	}

	if want := []any{[]string{"Total", "12.00"}, []string{}}; !reflect.DeepEqual(columnValues(t, train, "tokens"), want) {
		t.Fatalf("tokens = %v; want %v", columnValues(t, train, "tokens"), want)
	}

	boxes := columnValues(t, train, "token_boxes")

	first := boxes[0].(*dataset.Tensor)
	if !reflect.DeepEqual(first.Shape, []int{2, 4}) || !reflect.DeepEqual(first.Int64s, []int64{10, 20, 80, 40, 90, 20, 160, 40}) {
		t.Fatalf("row 0 boxes = %v %v", first.Shape, first.Int64s)
	}

	if second := boxes[1].(*dataset.Tensor); !reflect.DeepEqual(second.Shape, []int{0, 4}) || len(second.Int64s) != 0 {
		t.Fatalf("a line without words should get an empty [0,4] box tensor, got %v %v", second.Shape, second.Int64s)
	}
}

func TestJSONLinesErrors(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "1.png"), testutil.SolidImage(2, 2, color.White))

	cases := map[string]struct {
		body string
		want error
	}{
		"mixed":          {`{"image":"1.png","label":"a"}` + "\n" + `{"image":"1.png","label":2}`, errdefs.ErrTypeMismatch},
		"float":          {`{"image":"1.png","label":1.5}`, errdefs.ErrTypeMismatch},
		"nested":         {`{"image":"1.png","label":[["a"]]}`, errdefs.ErrTypeMismatch},
		"no label":       {`{"image":"1.png"}`, errdefs.ErrTypeMismatch},
		"no image":       {`{"label":"a"}`, errdefs.ErrInvalidArgument},
		"not image":      {`{"image":"doc.pdf","label":"a"}`, errdefs.ErrInvalidArgument},
		"bad json":       {`{"image":`, errdefs.ErrInvalidArgument},
		"empty file":     {"\n\n", errdefs.ErrInvalidArgument},
		"words no boxes": {`{"image":"1.png","label":"a","words":["x"]}`, errdefs.ErrInvalidArgument},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".jsonl")
			writeFile(t, path, tc.body)

			if _, err := JSONLines(context.Background(), path, Options{}); !errors.Is(err, tc.want) {
				t.Fatalf("JSONLines error = %v; want %v", err, tc.want)
			}
		})
	}
}
