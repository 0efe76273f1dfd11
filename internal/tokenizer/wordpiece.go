package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// WordPieceTokenizer is an uncased BERT WordPiece tokenizer loaded from vocab.txt.
type WordPieceTokenizer struct {
	t        *tk.Tokenizer
	specials Specials
}

// NewWordPieceTokenizer loads a BERT vocab.txt (one token per line, line
// number is the token ID).
func NewWordPieceTokenizer(vocabPath string) (*WordPieceTokenizer, error) {
	if vocabPath == "" {
		return nil, ErrEmptyPath
	}

	specials, err := wordPieceSpecials(vocabPath)
	if err != nil {
		return nil, err
	}

	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, "[UNK]")
	if err != nil {
		return nil, fmt.Errorf("load wordpiece vocab %q: %w", vocabPath, err)
	}

	t := tk.NewTokenizer(wp)
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	return &WordPieceTokenizer{t: t, specials: specials}, nil
}

func (w *WordPieceTokenizer) Encode(text string) ([]int64, error) {
	if strings.TrimSpace(text) == "" {
		return []int64{}, nil
	}

	enc, err := w.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), false)
	if err != nil {
		return nil, fmt.Errorf("wordpiece encode: %w", err)
	}

	ids := enc.GetIds()

	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}

	return out, nil
}

func (w *WordPieceTokenizer) Specials() Specials { return w.specials }

func wordPieceSpecials(vocabPath string) (Specials, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return Specials{}, fmt.Errorf("open wordpiece vocab %q: %w", vocabPath, err)
	}
	defer f.Close()

	s := Specials{CLS: 101, SEP: 102, PAD: 0, UNK: 100}

	sc := bufio.NewScanner(f)
	for id := int64(0); sc.Scan(); id++ {
		switch strings.TrimSpace(sc.Text()) {
		case "[CLS]":
			s.CLS = id
		case "[SEP]":
			s.SEP = id
		case "[PAD]":
			s.PAD = id
		case "[UNK]":
			s.UNK = id
		}
	}

	if err := sc.Err(); err != nil {
		return Specials{}, fmt.Errorf("read wordpiece vocab %q: %w", vocabPath, err)
	}

	return s, nil
}
