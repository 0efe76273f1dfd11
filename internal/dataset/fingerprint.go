package dataset

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

func fingerprintRows(features Features, rows []Record) string {
	h := xxhash.New()

	desc, err := MarshalFeatures(features)
	if err != nil {
		_, _ = h.WriteString(features.String())
	} else {
		_, _ = h.Write(desc)
	}

	fmt.Fprintf(h, "|%d|", len(rows))

	var scratch [8]byte
	for _, row := range rows {
		for _, f := range features {
			hashValue(h, row[f.Name], scratch[:])
		}
	}

	return formatSum(h.Sum64())
}

// DeriveFingerprint combines a parent fingerprint with transform parameters.
func DeriveFingerprint(parent string, parts ...string) string {
	return formatSum(xxhash.Sum64String(parent + "\x00" + strings.Join(parts, "\x00")))
}

func formatSum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

func hashValue(h *xxhash.Digest, v any, scratch []byte) {
	switch t := v.(type) {
	case *Tensor:
		fmt.Fprintf(h, "T%s%v", t.DType, t.Shape)
		for _, x := range t.Int64s {
			binary.LittleEndian.PutUint64(scratch, uint64(x))
			_, _ = h.Write(scratch)
		}
		for _, x := range t.Float32s {
			binary.LittleEndian.PutUint32(scratch, math.Float32bits(x))
			_, _ = h.Write(scratch[:4])
		}
	case image.Image:
		hashImage(h, t)
	default:
		fmt.Fprintf(h, "%T:%v|", v, v)
	}
}

func hashImage(h *xxhash.Digest, img image.Image) {
	b := img.Bounds()
	fmt.Fprintf(h, "I%v", b)

	switch t := img.(type) {
	case *image.RGBA:
		_, _ = h.Write(t.Pix)
	case *image.NRGBA:
		_, _ = h.Write(t.Pix)
	case *image.Gray:
		_, _ = h.Write(t.Pix)
	case *image.YCbCr:
		_, _ = h.Write(t.Y)
		_, _ = h.Write(t.Cb)
		_, _ = h.Write(t.Cr)
	default:
		var px [8]byte
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, a := img.At(x, y).RGBA()
				binary.LittleEndian.PutUint16(px[0:], uint16(r))
				binary.LittleEndian.PutUint16(px[2:], uint16(g))
				binary.LittleEndian.PutUint16(px[4:], uint16(bl))
				binary.LittleEndian.PutUint16(px[6:], uint16(a))
				_, _ = h.Write(px[:])
			}
		}
	}
}
