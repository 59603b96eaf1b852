package inference

import (
	"slices"

	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

// EndTokens are control tokens that end a turn for the ChatML family.
var EndTokens = []string{EndOfTurn, "<|endoftext|>"}

// BuildStopTokens returns the end-of-sequence set: the tokenizer's EOS id
// (when >= 0) followed by every EndTokens entry present in the vocabulary.
func BuildStopTokens(tok tokenizer.Tokenizer, eosID int) []int {
	stop := []int{}
	if eosID >= 0 {
		stop = append(stop, eosID)
	}
	for _, s := range EndTokens {
		if id, ok := tok.TokenToID(s); ok && !slices.Contains(stop, id) {
			stop = append(stop, id)
		}
	}
	return stop
}
