package processor

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/example/go-document-tools/internal/dataset"
)

// Image normalization for LayoutLMv3 (IMAGENET_STANDARD mean and std).
const (
	pixelMean = 0.5
	pixelStd  = 0.5
)

// pixels resizes img to ImageSize x ImageSize and lays it out channel-first.
// LayoutLMv2 and LayoutXLM take raw BGR bytes as int64; LayoutLMv3 takes
// normalized RGB float32.
func (p *Processor) pixels(img image.Image) *dataset.Tensor {
	size := p.opts.ImageSize
	dst := resize(img, size)
	plane := size * size

	if p.kind == LayoutLMv3 {
		data := make([]float32, 3*plane)
		for i := 0; i < plane; i++ {
			px := dst.Pix[i*4 : i*4+3 : i*4+3]
			for c := 0; c < 3; c++ {
				data[c*plane+i] = (float32(px[c])/255 - pixelMean) / pixelStd
			}
		}

		return dataset.NewFloat32Tensor([]int{3, size, size}, data)
	}

	data := make([]int64, 3*plane)
	for i := 0; i < plane; i++ {
		px := dst.Pix[i*4 : i*4+3 : i*4+3]
		data[i] = int64(px[2])
		data[plane+i] = int64(px[1])
		data[2*plane+i] = int64(px[0])
	}

	return dataset.NewInt64Tensor([]int{3, size, size}, data)
}

func resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	return dst
}
