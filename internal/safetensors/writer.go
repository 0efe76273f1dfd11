package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// EncodeTensors serializes tensors into safetensors format. Metadata, if
// non-empty, is stored under the reserved __metadata__ header entry.
func EncodeTensors(tensors []Tensor, metadata map[string]string) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	sorted := make([]Tensor, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	header := make(map[string]any, len(sorted)+1)
	raw := make([]byte, 0, estimateTensorBytes(sorted))

	for _, tensor := range sorted {
		name := strings.TrimSpace(tensor.Name)
		if name == "" {
			return nil, errors.New("safetensors: tensor name must not be empty")
		}

		if name == metadataKey {
			return nil, fmt.Errorf("safetensors: tensor name %q is reserved", name)
		}

		if _, exists := header[name]; exists {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		elemBytes, err := tensor.elemBytes()
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		elemCount, err := shapeElementCount(tensor.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if int64(tensor.Len()) != elemCount {
			return nil, fmt.Errorf(
				"safetensors: tensor %q shape %v expects %d elements, got %d",
				name,
				tensor.Shape,
				elemCount,
				tensor.Len(),
			)
		}

		start := len(raw)

		raw = append(raw, make([]byte, tensor.Len()*elemBytes)...)
		switch tensor.DType {
		case DTypeF32:
			for i, v := range tensor.F32 {
				binary.LittleEndian.PutUint32(raw[start+i*4:], math.Float32bits(v))
			}
		case DTypeI64:
			for i, v := range tensor.I64 {
				binary.LittleEndian.PutUint64(raw[start+i*8:], uint64(v))
			}
		}

		header[name] = storeHeaderEntry{
			DType:   tensor.DType,
			Shape:   append([]int64{}, tensor.Shape...),
			Offsets: [2]int{start, len(raw)},
		}
	}

	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 0, 8+len(headerJSON)+len(raw))
	lenPrefix := make([]byte, 8)
	binary.LittleEndian.PutUint64(lenPrefix, uint64(len(headerJSON)))
	out = append(out, lenPrefix...)
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out, nil
}

func estimateTensorBytes(tensors []Tensor) int {
	total := 0
	for _, tensor := range tensors {
		n, err := tensor.elemBytes()
		if err != nil {
			continue
		}
		total += tensor.Len() * n
	}

	return total
}
