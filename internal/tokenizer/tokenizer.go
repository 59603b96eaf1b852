package tokenizer

import "errors"

// ErrUnknownToken is returned by Encode when a text piece has no vocabulary
// entry and the vocabulary has no unknown token to fall back to.
var ErrUnknownToken = errors.New("unknown token")

// Tokenizer is the adapter the generation loop talks to.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	// TokenToID resolves a string that is a single atomic vocabulary entry.
	TokenToID(text string) (int, bool)
	VocabSize() int
}
