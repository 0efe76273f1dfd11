package processor

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/example/go-document-tools/internal/dataset"
	"github.com/example/go-document-tools/internal/tokenizer"
)

// boxScale is the coordinate range of normalized boxes.
const boxScale = 1000

type sequence struct {
	ids   []int64
	boxes [][4]int64
	mask  []int64
}

func (s sequence) bboxTensor() *dataset.Tensor {
	flat := make([]int64, 0, 4*len(s.boxes))
	for _, b := range s.boxes {
		flat = append(flat, b[:]...)
	}

	return dataset.NewInt64Tensor([]int{len(s.boxes), 4}, flat)
}

// encodeWords tokenizes each word and repeats the word box for every subword.
// Pixel boxes are scaled to the page; normalized boxes are only clamped.
func (p *Processor) encodeWords(words []Word, bounds image.Rectangle, normalized bool) (sequence, error) {
	var s sequence
	if len(words) == 0 {
		return s, nil
	}

	tok, err := p.tok()
	if err != nil {
		return s, err
	}

	for i, w := range words {
		text := strings.TrimSpace(norm.NFKC.String(w.Text))
		if text == "" {
			continue
		}

		ids, err := tok.Encode(text)
		if err != nil {
			return s, fmt.Errorf("tokenize word %d: %w", i, err)
		}

		box := normalizeBox(w.Box, bounds)
		if normalized {
			box = clampBox(w.Box)
		}
		for _, id := range ids {
			s.ids = append(s.ids, id)
			s.boxes = append(s.boxes, box)
		}
	}

	return s, nil
}

// specials returns the tokenizer's special IDs, or the family defaults when
// no sequence needed a tokenizer.
func (p *Processor) specials(needTokenizer bool) (tokenizer.Specials, error) {
	if p.opts.Tokenizer == nil && !needTokenizer {
		return defaultSpecials(p.kind), nil
	}

	tok, err := p.tok()
	if err != nil {
		return tokenizer.Specials{}, err
	}

	return tok.Specials(), nil
}

func defaultSpecials(k Kind) tokenizer.Specials {
	if k == LayoutLMv2 {
		return tokenizer.Specials{CLS: 101, SEP: 102, PAD: 0, UNK: 100}
	}

	return tokenizer.Specials{CLS: 0, SEP: 2, PAD: 1, UNK: 3}
}

// sepBox is the box assigned to the closing separator token.
func (p *Processor) sepBox() [4]int64 {
	if p.kind == LayoutLMv3 {
		return [4]int64{}
	}

	return [4]int64{boxScale, boxScale, boxScale, boxScale}
}

// frame truncates, adds the special tokens and pads every sequence in place.
func (p *Processor) frame(seqs []sequence, sp tokenizer.Specials) {
	longest := 0

	for i := range seqs {
		s := &seqs[i]

		if p.opts.Truncation && len(s.ids) > p.opts.MaxLength-2 {
			s.ids = s.ids[:p.opts.MaxLength-2]
			s.boxes = s.boxes[:p.opts.MaxLength-2]
		}

		ids := make([]int64, 0, len(s.ids)+2)
		ids = append(ids, sp.CLS)
		ids = append(ids, s.ids...)
		ids = append(ids, sp.SEP)

		boxes := make([][4]int64, 0, len(ids))
		boxes = append(boxes, [4]int64{})
		boxes = append(boxes, s.boxes...)
		boxes = append(boxes, p.sepBox())

		mask := make([]int64, len(ids))
		for j := range mask {
			mask[j] = 1
		}

		*s = sequence{ids: ids, boxes: boxes, mask: mask}
		longest = max(longest, len(ids))
	}

	target := 0
	switch p.opts.Padding {
	case PadMaxLength:
		target = p.opts.MaxLength
	case PadLongest:
		target = longest
	}

	for i := range seqs {
		s := &seqs[i]
		for len(s.ids) < target {
			s.ids = append(s.ids, sp.PAD)
			s.boxes = append(s.boxes, [4]int64{})
			s.mask = append(s.mask, 0)
		}
	}
}

func clampBox(box [4]int) [4]int64 {
	var out [4]int64
	for i, v := range box {
		out[i] = int64(min(max(v, 0), boxScale))
	}

	return out
}

// normalizeBox maps a pixel box to the 0..1000 page coordinate range.
func normalizeBox(box [4]int, bounds image.Rectangle) [4]int64 {
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return [4]int64{}
	}

	scale := func(v, origin, size int) int64 {
		n := int64(boxScale * (v - origin) / size)
		return min(max(n, 0), boxScale)
	}

	return [4]int64{
		scale(box[0], bounds.Min.X, w),
		scale(box[1], bounds.Min.Y, h),
		scale(box[2], bounds.Min.X, w),
		scale(box[3], bounds.Min.Y, h),
	}
}
