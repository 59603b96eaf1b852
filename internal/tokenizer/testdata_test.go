package tokenizer

import "testing"

// A tiny byte-level vocabulary. "Ġ" is the byte-level form of a space and
// "Ã" "©" are the two bytes of "é".
const testTokenizerJSON = `{
	"model": {
		"type": "BPE",
		"vocab": {
			"h": 0, "e": 1, "l": 2, "o": 3, "Ġ": 4, "w": 5, "r": 6, "d": 7,
			"he": 8, "ll": 9, "hell": 10, "hello": 11, "Ġw": 12,
			"2": 14, "+": 15, "=": 16, "4": 17, "Ã": 18, "©": 19
		},
		"merges": ["h e", "l l", "he ll", "hell o", "Ġ w"]
	},
	"added_tokens": [
		{"id": 13, "content": "<|im_end|>", "special": true},
		{"id": 20, "content": "<|endoftext|>", "special": true},
		{"id": 21, "content": "<think>", "special": false}
	]
}`

const testTokenizerConfig = `{
	"add_bos_token": false,
	"eos_token": {"content": "<|im_end|>", "special": true},
	"pad_token": "<|endoftext|>"
}`

func newTestTokenizer(t *testing.T) *HFTokenizer {
	t.Helper()
	tok, err := LoadHFTokenizerBytes([]byte(testTokenizerJSON), []byte(testTokenizerConfig))
	if err != nil {
		t.Fatalf("load tokenizer: %v", err)
	}
	return tok
}
