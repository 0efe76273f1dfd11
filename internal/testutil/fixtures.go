package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/example/go-document-tools/internal/dataset"
)

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)

	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = nc.R
		img.Pix[i+1] = nc.G
		img.Pix[i+2] = nc.B
		img.Pix[i+3] = nc.A
	}

	return img
}

// PNG encodes img as PNG bytes.
func PNG(tb testing.TB, img image.Image) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode png: %v", err)
	}

	return buf.Bytes()
}

// DocumentDataset returns a dataset of n page images whose "label" column
// holds raw string label lists cycling through labels.
func DocumentDataset(tb testing.TB, n int, labels ...string) *dataset.Dataset {
	tb.Helper()

	if len(labels) == 0 {
		labels = []string{"invoice"}
	}

	rows := make([]dataset.Record, n)
	for i := range rows {
		rows[i] = dataset.Record{
			"image": SolidImage(16+i, 24, color.NRGBA{R: uint8(10 * i), G: 128, B: 200, A: 255}),
			"label": []string{labels[i%len(labels)]},
		}
	}

	ds, err := dataset.New(dataset.Features{
		{Name: "image", Type: dataset.Image{}},
		{Name: "label", Type: dataset.SequenceOf(dataset.Value{DType: dataset.String})},
	}, rows)
	if err != nil {
		tb.Fatalf("build document dataset: %v", err)
	}

	return ds
}

// CategoricalDataset is DocumentDataset with a ClassLabel "label" column;
// record i has class i % len(names).
func CategoricalDataset(tb testing.TB, n int, names ...string) *dataset.Dataset {
	tb.Helper()

	rows := make([]dataset.Record, n)
	for i := range rows {
		rows[i] = dataset.Record{
			"image": SolidImage(8, 8, color.White),
			"label": int64(i % len(names)),
		}
	}

	ds, err := dataset.New(dataset.Features{
		{Name: "image", Type: dataset.Image{}},
		{Name: "label", Type: dataset.ClassLabel{Names: names}},
	}, rows)
	if err != nil {
		tb.Fatalf("build categorical dataset: %v", err)
	}

	return ds
}

// AssertConforms fails the test unless every record of ds matches its features.
func AssertConforms(tb testing.TB, ds *dataset.Dataset) {
	tb.Helper()

	for _, f := range ds.Features() {
		col, err := ds.Column(f.Name)
		if err != nil {
			tb.Fatalf("column %q: %v", f.Name, err)
		}

		for i, v := range col.Values {
			if err := f.Type.Check(v); err != nil {
				tb.Fatalf("row %d column %q: %v", i, f.Name, err)
			}
		}
	}
}
