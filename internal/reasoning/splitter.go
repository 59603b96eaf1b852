package reasoning

import (
	"strings"

	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

type SplitResult struct {
	Content   string
	Reasoning string
}

// SplitRaw separates content and reasoning from raw model output using
// <think>...</think> tags as emitted by Qwen3. If a think block is opened but not
// closed, the remainder is treated as reasoning.
func SplitRaw(raw string) SplitResult {
	source := raw
	lower := strings.ToLower(source)
	const (
		openTag  = "<think>"
		closeTag = "</think>"
	)

	var content strings.Builder
	var reasoning strings.Builder
	cursor := 0

	for cursor < len(source) {
		start := strings.Index(lower[cursor:], openTag)
		if start < 0 {
			content.WriteString(source[cursor:])
			break
		}
		start += cursor
		content.WriteString(source[cursor:start])

		thinkStart := start + len(openTag)
		end := strings.Index(lower[thinkStart:], closeTag)
		if end < 0 {
			reasoning.WriteString(source[thinkStart:])
			break
		}
		end += thinkStart
		reasoning.WriteString(source[thinkStart:end])
		cursor = end + len(closeTag)
	}

	return SplitResult{
		Content:   content.String(),
		Reasoning: reasoning.String(),
	}
}

// Splitter turns raw text deltas into separate content and reasoning
// deltas. Input deltas may rewrite earlier text, and so may the outputs:
// a partial "<thi" first surfaces as content and is retracted once the tag
// completes.
type Splitter struct {
	raw       string
	content   string
	reasoning string
}

func (s *Splitter) Push(d tokenizer.Delta) (content, reasoning tokenizer.Delta) {
	if d.Empty() {
		return tokenizer.Delta{}, tokenizer.Delta{}
	}
	s.raw = d.Apply(s.raw)
	out := SplitRaw(s.raw)
	content = tokenizer.Diff(s.content, out.Content)
	reasoning = tokenizer.Diff(s.reasoning, out.Reasoning)
	s.content, s.reasoning = out.Content, out.Reasoning
	return content, reasoning
}

func (s *Splitter) Result() SplitResult {
	return SplitResult{Content: s.content, Reasoning: s.reasoning}
}
