// Package safetensors reads and writes the safetensors container format
// (8-byte LE header length, JSON header, raw little-endian tensor data).
// Encoded dataset splits are persisted as one safetensors blob per split.
package safetensors

import "fmt"

const (
	DTypeF32  = "F32"
	DTypeI64  = "I64"
	dtypeF16  = "F16"
	dtypeBF16 = "BF16"
)

// metadataKey is the reserved header entry holding string metadata.
const metadataKey = "__metadata__"

// Tensor is a named, dense tensor. Exactly one of F32 or I64 is populated,
// selected by DType.
type Tensor struct {
	Name  string
	DType string
	Shape []int64
	F32   []float32
	I64   []int64
}

// F32Tensor builds a float32 tensor.
func F32Tensor(name string, shape []int64, data []float32) Tensor {
	return Tensor{Name: name, DType: DTypeF32, Shape: shape, F32: data}
}

// I64Tensor builds an int64 tensor.
func I64Tensor(name string, shape []int64, data []int64) Tensor {
	return Tensor{Name: name, DType: DTypeI64, Shape: shape, I64: data}
}

// Len returns the number of stored elements.
func (t Tensor) Len() int {
	if t.DType == DTypeI64 {
		return len(t.I64)
	}

	return len(t.F32)
}

func (t Tensor) elemBytes() (int, error) {
	switch t.DType {
	case DTypeF32:
		return 4, nil
	case DTypeI64:
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", t.DType)
	}
}
