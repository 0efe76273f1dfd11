package tokenizer

import (
	"errors"
	"fmt"
	"os"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

// SentencePieceTokenizer implements Tokenizer using a pure-Go UNIGRAM SentencePiece model.
type SentencePieceTokenizer struct {
	proc     gosp.Sentencepiece
	specials Specials
}

// NewSentencePieceTokenizer loads a SentencePiece model from the given path.
func NewSentencePieceTokenizer(modelPath string) (*SentencePieceTokenizer, error) {
	if modelPath == "" {
		return nil, ErrEmptyPath
	}

	proc, err := gosp.NewSentencepieceFromFile(modelPath, false)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", modelPath, err)
	}

	raw, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read sentencepiece model %q: %w", modelPath, err)
	}

	specials, err := sentencePieceSpecials(raw)
	if err != nil {
		return nil, fmt.Errorf("sentencepiece model %q: %w", modelPath, err)
	}

	return &SentencePieceTokenizer{proc: proc, specials: specials}, nil
}

// NewSentencePieceTokenizerFromBytes loads a SentencePiece model from raw bytes.
// The upstream library only exposes a file-path API, so the data goes through
// a temporary file.
func NewSentencePieceTokenizerFromBytes(data []byte) (*SentencePieceTokenizer, error) {
	if len(data) == 0 {
		return nil, errors.New("tokenizer model data must not be empty")
	}

	f, err := os.CreateTemp("", "sp-*.model")
	if err != nil {
		return nil, fmt.Errorf("create temp sentencepiece file: %w", err)
	}

	defer func() { _ = os.Remove(f.Name()) }()

	_, err = f.Write(data)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write tokenizer model bytes: %w", err)
	}

	path := f.Name()

	err = f.Close()
	if err != nil {
		return nil, fmt.Errorf("close tokenizer temp file: %w", err)
	}

	return NewSentencePieceTokenizer(path)
}

// Encode tokenizes text and returns SentencePiece token IDs as int64.
func (t *SentencePieceTokenizer) Encode(text string) ([]int64, error) {
	if text == "" {
		return []int64{}, nil
	}

	ids := t.proc.TokenizeToIDs(text)

	result := make([]int64, len(ids))
	for i, id := range ids {
		result[i] = int64(id)
	}

	return result, nil
}

// Specials returns the control-piece IDs declared by the model.
func (t *SentencePieceTokenizer) Specials() Specials { return t.specials }

// sentencePieceSpecials reads the UNKNOWN and CONTROL pieces of a serialized
// model. Missing pieces keep the sentencepiece trainer defaults.
func sentencePieceSpecials(data []byte) (Specials, error) {
	var model gosp.ModelProto
	if err := proto.Unmarshal(data, &model); err != nil {
		return Specials{}, fmt.Errorf("unmarshal sentencepiece model: %w", err)
	}

	s := Specials{UNK: 0, CLS: 1, SEP: 2, PAD: 0}
	hasPad := false

	for i, piece := range model.GetPieces() {
		switch piece.GetType() {
		case gosp.ModelProto_SentencePiece_UNKNOWN:
			s.UNK = int64(i)
		case gosp.ModelProto_SentencePiece_CONTROL:
			switch piece.GetPiece() {
			case "<s>":
				s.CLS = int64(i)
			case "</s>":
				s.SEP = int64(i)
			case "<pad>":
				s.PAD = int64(i)
				hasPad = true
			}
		}
	}

	if !hasPad {
		s.PAD = s.UNK
	}

	return s, nil
}

// fairseq id space used by XLM-RoBERTa derived checkpoints.
const (
	fairseqCLS    = 0
	fairseqPAD    = 1
	fairseqSEP    = 2
	fairseqUNK    = 3
	fairseqOffset = 1
)

// FairseqTokenizer remaps SentencePiece IDs into the fairseq vocabulary
// layout: <s>=0, <pad>=1, </s>=2, <unk>=3 and every other piece shifted by one.
type FairseqTokenizer struct {
	sp Tokenizer
}

// NewFairseqTokenizer wraps a SentencePiece tokenizer.
func NewFairseqTokenizer(sp Tokenizer) *FairseqTokenizer {
	return &FairseqTokenizer{sp: sp}
}

// NewXLMTokenizer loads a LayoutXLM sentencepiece.bpe.model.
func NewXLMTokenizer(modelPath string) (*FairseqTokenizer, error) {
	sp, err := NewSentencePieceTokenizer(modelPath)
	if err != nil {
		return nil, err
	}

	return NewFairseqTokenizer(sp), nil
}

func (t *FairseqTokenizer) Encode(text string) ([]int64, error) {
	ids, err := t.sp.Encode(text)
	if err != nil {
		return nil, err
	}

	unk := t.sp.Specials().UNK

	out := make([]int64, len(ids))
	for i, id := range ids {
		if id == unk {
			out[i] = fairseqUNK
			continue
		}
		out[i] = id + fairseqOffset
	}

	return out, nil
}

func (t *FairseqTokenizer) Specials() Specials {
	return Specials{CLS: fairseqCLS, SEP: fairseqSEP, PAD: fairseqPAD, UNK: fairseqUNK}
}
