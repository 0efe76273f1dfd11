// Package tokenizer turns OCR words into subword token IDs for the LayoutLM
// model family: WordPiece for LayoutLMv2, byte-level BPE for LayoutLMv3 and
// SentencePiece (in fairseq id space) for LayoutXLM.
package tokenizer

import "errors"

// ErrEmptyPath is returned when a tokenizer constructor is called with an empty path.
var ErrEmptyPath = errors.New("tokenizer model path must not be empty")

// Specials holds the special-token IDs used to frame and pad a sequence.
type Specials struct {
	CLS int64
	SEP int64
	PAD int64
	UNK int64
}

// Tokenizer encodes text into subword token IDs without special tokens.
type Tokenizer interface {
	Encode(text string) ([]int64, error)
	Specials() Specials
}
