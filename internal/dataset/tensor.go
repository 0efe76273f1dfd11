package dataset

import (
	"fmt"

	"github.com/example/go-document-tools/internal/errdefs"
)

// Tensor is a dense row-major tensor value of an Array column. Exactly one of
// Int64s or Float32s is populated, selected by DType.
type Tensor struct {
	DType    DType
	Shape    []int
	Int64s   []int64
	Float32s []float32
}

// NewInt64Tensor wraps data with the given shape.
func NewInt64Tensor(shape []int, data []int64) *Tensor {
	return &Tensor{DType: Int64, Shape: append([]int(nil), shape...), Int64s: data}
}

// NewFloat32Tensor wraps data with the given shape.
func NewFloat32Tensor(shape []int, data []float32) *Tensor {
	return &Tensor{DType: Float32, Shape: append([]int(nil), shape...), Float32s: data}
}

// Len returns the number of stored elements.
func (t *Tensor) Len() int {
	if t.DType == Float32 {
		return len(t.Float32s)
	}

	return len(t.Int64s)
}

// Validate checks that the stored element count matches the shape.
func (t *Tensor) Validate() error {
	want := numElements(t.Shape)
	if want < 0 {
		return fmt.Errorf("%w: tensor has invalid shape %v", errdefs.ErrSchemaMismatch, t.Shape)
	}

	if t.Len() != want {
		return fmt.Errorf("%w: tensor shape %v needs %d elements, has %d", errdefs.ErrSchemaMismatch, t.Shape, want, t.Len())
	}

	return nil
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return -1
		}
		n *= d
	}

	return n
}
