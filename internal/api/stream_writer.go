package api

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/tsuki-kuma/tsuki/internal/inference"
	"github.com/tsuki-kuma/tsuki/internal/reasoning"
	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

// SSEStreamWriter emits completion chunks as server-sent events. Raw text
// deltas are split into content and reasoning before they are sent.
type SSEStreamWriter struct {
	w       io.Writer
	flusher func()
	id      string
	created int64
	model   string
	split   reasoning.Splitter
	err     error
}

func NewSSEStreamWriter(c *echo.Context, id string, created int64, model string) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	return &SSEStreamWriter{
		w:       res,
		flusher: flusher.Flush,
		id:      id,
		created: created,
		model:   model,
	}, nil
}

// EmitDelta forwards one raw text delta. Write errors are kept and stop
// further output.
func (s *SSEStreamWriter) EmitDelta(d tokenizer.Delta) {
	if s.err != nil {
		return
	}
	content, thought := s.split.Push(d)
	if content.Empty() && thought.Empty() {
		return
	}
	s.err = s.send(s.chunk(CompletionChoice{
		Text:             content.Text,
		Replace:          content.Replace,
		Reasoning:        thought.Text,
		ReasoningReplace: thought.Replace,
	}))
}

// Complete sends the closing chunk with the finish reason.
func (s *SSEStreamWriter) Complete(res *inference.Result) error {
	if s.err != nil {
		return s.err
	}
	seed := res.Seed
	chunk := s.chunk(CompletionChoice{
		FinishReason: strPtr(string(res.FinishReason)),
		Seed:         &seed,
	})
	chunk.Usage = usageOf(res)
	if err := s.send(chunk); err != nil {
		return err
	}
	return s.done()
}

// Failed reports err in-band; the status line is already sent.
func (s *SSEStreamWriter) Failed(err error) error {
	_, errType := statusFor(err)
	if err := s.send(map[string]any{
		"error": ResponseError{Message: FlattenError(err), Type: errType},
	}); err != nil {
		return err
	}
	return s.done()
}

func (s *SSEStreamWriter) chunk(choice CompletionChoice) CompletionResponse {
	return CompletionResponse{
		ID:      s.id,
		Object:  "text_completion",
		Created: s.created,
		Model:   s.model,
		Choices: []CompletionChoice{choice},
	}
}

func (s *SSEStreamWriter) done() error {
	_, err := fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flush()
	return err
}

func (s *SSEStreamWriter) send(payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *SSEStreamWriter) flush() {
	if s.flusher != nil {
		s.flusher()
	}
}

func usageOf(res *inference.Result) *CompletionUsage {
	return &CompletionUsage{
		PromptTokens:     res.Stats.PromptTokens,
		CompletionTokens: res.Stats.TokensGenerated,
		TotalTokens:      res.Stats.PromptTokens + res.Stats.TokensGenerated,
	}
}
