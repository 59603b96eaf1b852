package tokenizer

// SpecialTokens lists the control token ids of a vocabulary. A missing
// token is -1.
type SpecialTokens struct {
	BOS    int
	EOS    int
	PAD    int
	UNK    int
	AddBOS bool
	AddEOS bool
}

func tokenID(encoder map[string]int, tok string) int {
	if tok == "" {
		return -1
	}
	if id, ok := encoder[tok]; ok {
		return id
	}
	return -1
}
