package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/bpe"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// BPETokenizer is a RoBERTa style byte-level BPE tokenizer. Every encoded
// word gets a leading space, matching add_prefix_space=True.
type BPETokenizer struct {
	t        *tk.Tokenizer
	specials Specials
}

// NewBPETokenizer loads vocab.json and merges.txt.
func NewBPETokenizer(vocabPath, mergesPath string) (*BPETokenizer, error) {
	if vocabPath == "" || mergesPath == "" {
		return nil, ErrEmptyPath
	}

	specials, err := bpeSpecials(vocabPath)
	if err != nil {
		return nil, err
	}

	model, err := bpe.NewBpeFromFiles(vocabPath, mergesPath)
	if err != nil {
		return nil, fmt.Errorf("load bpe model %q: %w", vocabPath, err)
	}

	t := tk.NewTokenizer(model)
	t.WithPreTokenizer(pretokenizer.NewByteLevel())

	return &BPETokenizer{t: t, specials: specials}, nil
}

func (b *BPETokenizer) Encode(text string) ([]int64, error) {
	if text == "" {
		return []int64{}, nil
	}

	enc, err := b.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), false)
	if err != nil {
		return nil, fmt.Errorf("bpe encode: %w", err)
	}

	ids := enc.GetIds()

	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}

	return out, nil
}

func (b *BPETokenizer) Specials() Specials { return b.specials }

func bpeSpecials(vocabPath string) (Specials, error) {
	raw, err := os.ReadFile(vocabPath)
	if err != nil {
		return Specials{}, fmt.Errorf("read bpe vocab %q: %w", vocabPath, err)
	}

	var vocab map[string]int64
	if err := json.Unmarshal(raw, &vocab); err != nil {
		return Specials{}, fmt.Errorf("decode bpe vocab %q: %w", vocabPath, err)
	}

	s := Specials{CLS: 0, PAD: 1, SEP: 2, UNK: 3}
	for tok, dst := range map[string]*int64{"<s>": &s.CLS, "</s>": &s.SEP, "<pad>": &s.PAD, "<unk>": &s.UNK} {
		if id, ok := vocab[tok]; ok {
			*dst = id
		}
	}

	return s, nil
}
