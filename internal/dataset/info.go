package dataset

import (
	"encoding/json"
	"fmt"
)

// featureJSON mirrors the Hugging Face datasets feature descriptor layout.
type featureJSON struct {
	Type    string       `json:"_type"`
	DType   DType        `json:"dtype,omitempty"`
	Names   []string     `json:"names,omitempty"`
	Feature *featureJSON `json:"feature,omitempty"`
	Length  *int         `json:"length,omitempty"`
	Shape   []int        `json:"shape,omitempty"`
}

type fieldJSON struct {
	Name    string      `json:"name"`
	Feature featureJSON `json:"feature"`
}

func encodeFeature(f Feature) (featureJSON, error) {
	switch t := f.(type) {
	case Value:
		return featureJSON{Type: "Value", DType: t.DType}, nil
	case ClassLabel:
		names := t.Names
		if names == nil {
			names = []string{}
		}
		return featureJSON{Type: "ClassLabel", Names: names}, nil
	case Sequence:
		inner, err := encodeFeature(t.Feature)
		if err != nil {
			return featureJSON{}, err
		}
		length := t.Length
		return featureJSON{Type: "Sequence", Feature: &inner, Length: &length}, nil
	case Array:
		return featureJSON{Type: "Array", DType: t.DType, Shape: append([]int(nil), t.Shape...)}, nil
	case Image:
		return featureJSON{Type: "Image"}, nil
	default:
		return featureJSON{}, fmt.Errorf("unsupported feature %T", f)
	}
}

func decodeFeature(j featureJSON) (Feature, error) {
	switch j.Type {
	case "Value":
		return Value{DType: j.DType}, nil
	case "ClassLabel":
		return ClassLabel{Names: append([]string{}, j.Names...)}, nil
	case "Sequence":
		if j.Feature == nil {
			return nil, fmt.Errorf("sequence descriptor has no inner feature")
		}
		inner, err := decodeFeature(*j.Feature)
		if err != nil {
			return nil, err
		}
		length := -1
		if j.Length != nil {
			length = *j.Length
		}
		return Sequence{Feature: inner, Length: length}, nil
	case "Array":
		return Array{DType: j.DType, Shape: append([]int(nil), j.Shape...)}, nil
	case "Image":
		return Image{}, nil
	default:
		return nil, fmt.Errorf("unknown feature type %q", j.Type)
	}
}

// MarshalFeatures encodes a schema as JSON.
func MarshalFeatures(fs Features) ([]byte, error) {
	out := make([]fieldJSON, 0, len(fs))
	for _, f := range fs {
		j, err := encodeFeature(f.Type)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", f.Name, err)
		}
		out = append(out, fieldJSON{Name: f.Name, Feature: j})
	}

	return json.Marshal(out)
}

// UnmarshalFeatures decodes a schema encoded by MarshalFeatures.
func UnmarshalFeatures(data []byte) (Features, error) {
	var raw []fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}

	fs := make(Features, 0, len(raw))
	for _, r := range raw {
		f, err := decodeFeature(r.Feature)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", r.Name, err)
		}
		fs = append(fs, Field{Name: r.Name, Type: f})
	}

	return fs, nil
}
