package inference

import (
	"time"

	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

// StreamFunc receives visible text deltas as generation proceeds.
type StreamFunc func(d tokenizer.Delta)

type Request struct {
	Prompt string
	Config GenerationConfig
}

// State is a step of the generation state machine.
type State int

const (
	StateInit State = iota
	StatePrefill
	StateDecoding
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePrefill:
		return "prefill"
	case StateDecoding:
		return "decoding"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// FinishReason records which termination condition ended decoding.
type FinishReason string

const (
	FinishEOS    FinishReason = "eos"
	FinishLength FinishReason = "length"
	FinishStop   FinishReason = "stop"
)

type Stats struct {
	PromptTokens    int
	TokensGenerated int
	PrefillDuration time.Duration
	Duration        time.Duration
	TPS             float64
}

type Result struct {
	// Text is the decode of the generated tokens, truncated before the stop
	// string.
	Text string
	// Content and Reasoning split Text on <think> blocks.
	Content   string
	Reasoning string
	Tokens    []int
	Seed      int64

	FinishReason FinishReason
	Stats        Stats
}
