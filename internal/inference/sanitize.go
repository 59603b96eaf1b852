package inference

import (
	"strings"

	"github.com/tsuki-kuma/tsuki/internal/reasoning"
)

const thinkClose = "</think>"

// CleanReply returns the answer part of generated text. Think blocks and the
// EndTokens markers are removed. A close tag with no open tag before it ends
// a reasoning preamble, which Qwen3 emits when its template pre-opens the
// block.
func CleanReply(text string) string {
	lower := strings.ToLower(text)
	if end := strings.Index(lower, thinkClose); end >= 0 && !strings.Contains(lower[:end], "<think>") {
		text = text[end+len(thinkClose):]
	}
	s := reasoning.SplitRaw(text).Content
	for _, tok := range EndTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return strings.TrimSpace(s)
}
