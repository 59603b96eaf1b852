package inference

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/tsuki-kuma/tsuki/internal/backend"
	"github.com/tsuki-kuma/tsuki/internal/logits"
	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
	"github.com/tsuki-kuma/tsuki/internal/toy"
)

func greedy() GenerationConfig {
	return GenerationConfig{Temperature: Ptr(0.0)}
}

func TestGenerateTwoPlusTwo(t *testing.T) {
	t.Parallel()

	tok := newFakeTokenizer("2", "+", "=", "4", "<|im_end|>", "<|endoftext|>")
	four, eos := tok.id("4"), tok.id("<|endoftext|>")
	model := &scriptedModel{
		vocab: tok.VocabSize(),
		next: func(seq []int) int {
			if seq[len(seq)-1] == four {
				return eos
			}
			return four
		},
	}
	g := &Generator{Model: model, Tokenizer: tok, StopTokens: BuildStopTokens(tok, -1)}

	var streamed string
	res, err := g.Run(context.Background(), "2+2=", greedy(), func(d tokenizer.Delta) {
		streamed = d.Apply(streamed)
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text != "4" {
		t.Fatalf("text: got %q want %q", res.Text, "4")
	}
	if streamed != "4" {
		t.Fatalf("streamed: got %q", streamed)
	}
	if res.FinishReason != FinishEOS {
		t.Fatalf("finish: got %s", res.FinishReason)
	}
	if !slices.Equal(res.Tokens, []int{four}) {
		t.Fatalf("tokens: got %v", res.Tokens)
	}
	if res.Stats.PromptTokens != 5 {
		t.Fatalf("prompt tokens: got %d want 5 (chat wrapped)", res.Stats.PromptTokens)
	}
	// prefill + two decode steps
	if n := model.calls.Load(); n != 3 {
		t.Fatalf("forward calls: got %d want 3", n)
	}
	if g.State() != StateTerminated {
		t.Fatalf("state: got %s", g.State())
	}
}

func TestGenerateInvalidConfigBeforeForward(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  GenerationConfig
	}{
		{"negative max tokens", GenerationConfig{MaxTokens: Ptr(-1)}},
		{"top p above one", GenerationConfig{TopP: Ptr(1.5)}},
		{"top p zero", GenerationConfig{TopP: Ptr(0.0)}},
		{"negative temperature", GenerationConfig{Temperature: Ptr(-0.1)}},
		{"nan temperature", GenerationConfig{Temperature: Ptr(math.NaN())}},
		{"repeat penalty below one", GenerationConfig{RepeatPenalty: Ptr(0.5)}},
		{"negative repeat window", GenerationConfig{RepeatWindow: Ptr(-2)}},
		{"negative top k", GenerationConfig{TopK: Ptr(-1)}},
		{"min p above one", GenerationConfig{MinP: Ptr(2.0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok := newFakeTokenizer("a", "<|im_end|>")
			model := &scriptedModel{vocab: 2}
			g := &Generator{Model: model, Tokenizer: tok}
			res, err := g.Run(context.Background(), "a", tc.cfg, nil)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if res != nil {
				t.Fatalf("expected nil result")
			}
			if model.calls.Load() != 0 {
				t.Fatalf("forward was called")
			}
			if tok.encodes.Load() != 0 {
				t.Fatalf("encode was called")
			}
		})
	}
}

func TestGenerateMaxTokensBound(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 5, 17} {
		tok := newFakeTokenizer("a", "<|im_end|>")
		model := &scriptedModel{vocab: 2, next: func([]int) int { return 0 }}
		g := &Generator{Model: model, Tokenizer: tok, StopTokens: BuildStopTokens(tok, -1)}
		cfg := greedy()
		cfg.MaxTokens = Ptr(n)
		res, err := g.Run(context.Background(), "a", cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Tokens) != n || res.Text != strings.Repeat("a", n) {
			t.Fatalf("n=%d: got %d tokens %q", n, len(res.Tokens), res.Text)
		}
		if res.FinishReason != FinishLength {
			t.Fatalf("n=%d: finish %s", n, res.FinishReason)
		}
		if calls := model.calls.Load(); calls > int64(n+1) {
			t.Fatalf("n=%d: %d forward calls", n, calls)
		}
	}
}

func TestGenerateZeroMaxTokens(t *testing.T) {
	t.Parallel()

	tok := newFakeTokenizer("a", "<|im_end|>")
	model := &scriptedModel{vocab: 2, next: func([]int) int { return 0 }}
	g := &Generator{Model: model, Tokenizer: tok}
	res, err := g.Run(context.Background(), "aa", GenerationConfig{MaxTokens: Ptr(0)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "" || len(res.Tokens) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if tok.encodes.Load() != 1 {
		t.Fatalf("prompt should still be encoded")
	}
	if model.calls.Load() != 0 {
		t.Fatalf("no forward pass expected, got %d", model.calls.Load())
	}
	if res.Stats.PromptTokens != 3 {
		t.Fatalf("prompt tokens: %d", res.Stats.PromptTokens)
	}
}

func TestGenerateStopStringTruncates(t *testing.T) {
	t.Parallel()

	tok := newFakeTokenizer("h", "i", " ", "E", "N", "D", "x", "<|im_end|>")
	script := []int{0, 1, 2, 3, 4, 5, 6}
	model := sequenceModel(tok.VocabSize(), 3, script, 6)
	g := &Generator{Model: model, Tokenizer: tok, StopTokens: BuildStopTokens(tok, -1)}

	cfg := greedy()
	cfg.MaxTokens = Ptr(20)
	cfg.Stop = Ptr("END")
	var streamed string
	var sawHeld bool
	res, err := g.Run(context.Background(), "hi", cfg, func(d tokenizer.Delta) {
		streamed = d.Apply(streamed)
		if strings.Contains(streamed, "E") {
			sawHeld = true
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hi " {
		t.Fatalf("text: got %q want %q", res.Text, "hi ")
	}
	if res.FinishReason != FinishStop {
		t.Fatalf("finish: %s", res.FinishReason)
	}
	if streamed != res.Text {
		t.Fatalf("streamed %q, result %q", streamed, res.Text)
	}
	if sawHeld {
		t.Fatalf("a prefix of the stop string was streamed")
	}
	if len(res.Tokens) != 6 {
		t.Fatalf("tokens: %v", res.Tokens)
	}
}

func TestGenerateStopPrefixReleased(t *testing.T) {
	t.Parallel()

	// "E" looks like the start of "END" but is followed by "x".
	tok := newFakeTokenizer("h", "E", "x", "<|im_end|>", "<|endoftext|>")
	model := sequenceModel(tok.VocabSize(), 2, []int{0, 1, 2, 4}, 4)
	g := &Generator{Model: model, Tokenizer: tok, StopTokens: BuildStopTokens(tok, -1)}

	cfg := greedy()
	cfg.Stop = Ptr("END")
	var streamed string
	res, err := g.Run(context.Background(), "h", cfg, func(d tokenizer.Delta) {
		streamed = d.Apply(streamed)
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hEx" || streamed != "hEx" {
		t.Fatalf("text %q streamed %q", res.Text, streamed)
	}
}

func TestGenerateStopStringSingleToken(t *testing.T) {
	t.Parallel()

	tok := newFakeTokenizer("a", "b", "<|im_end|>")
	model := sequenceModel(tok.VocabSize(), 2, []int{0, 1}, 0)
	g := &Generator{Model: model, Tokenizer: tok}

	cfg := greedy()
	cfg.Stop = Ptr("b")
	cfg.MaxTokens = Ptr(10)
	res, err := g.Run(context.Background(), "a", cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "a" || res.FinishReason != FinishStop || !slices.Equal(res.Tokens, []int{0}) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerateSplitsReasoning(t *testing.T) {
	t.Parallel()

	tok := newFakeTokenizer("<think>", "x", "</think>", "4", "<|im_end|>")
	model := sequenceModel(tok.VocabSize(), 2, []int{0, 1, 2, 3, 4}, 4)
	g := &Generator{Model: model, Tokenizer: tok, StopTokens: BuildStopTokens(tok, -1)}

	res, err := g.Run(context.Background(), "x", greedy(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "<think>x</think>4" || res.Content != "4" || res.Reasoning != "x" {
		t.Fatalf("unexpected split %+v", res)
	}
}

func TestGenerateDeltasConcatenateToText(t *testing.T) {
	t.Parallel()

	tok := newFakeTokenizer("a", "b", "c", "d", "<|im_end|>")
	m := toy.NewToyLM(tok.VocabSize(), 8, 3)
	g := &Generator{Model: m, Tokenizer: tok}

	cfg := GenerationConfig{MaxTokens: Ptr(24), Seed: Ptr(int64(5)), ChatWrap: Ptr(false)}
	var streamed string
	res, err := g.Run(context.Background(), "ab", cfg, func(d tokenizer.Delta) {
		streamed = d.Apply(streamed)
	})
	if err != nil {
		t.Fatal(err)
	}
	if streamed != res.Text {
		t.Fatalf("streamed %q != text %q", streamed, res.Text)
	}
	want, _ := tok.Decode(res.Tokens)
	if res.Text != want {
		t.Fatalf("text %q != decode(tokens) %q", res.Text, want)
	}
}

func newToyEngine(t *testing.T) *Engine {
	t.Helper()
	tok := newFakeTokenizer("a", "b", "c", "d", "e", "f", "g", "h", "<|im_end|>")
	return &Engine{
		Name:       "toy",
		Model:      backend.Serialized(toy.NewToyLM(tok.VocabSize(), 8, 3)),
		Tokenizer:  tok,
		StopTokens: BuildStopTokens(tok, -1),
	}
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()
	e := newToyEngine(t)

	req := &Request{Prompt: "abc", Config: GenerationConfig{
		MaxTokens:   Ptr(16),
		Temperature: Ptr(0.9),
		TopP:        Ptr(0.95),
		Seed:        Ptr(int64(42)),
	}}
	first, err := e.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			res, err := e.Generate(context.Background(), req, nil)
			if err != nil {
				t.Error(err)
				return
			}
			if res.Text != first.Text || !slices.Equal(res.Tokens, first.Tokens) {
				t.Errorf("non-deterministic output %q vs %q", res.Text, first.Text)
			}
		})
	}
	wg.Wait()
}

func TestGenerateGreedyIgnoresSeed(t *testing.T) {
	t.Parallel()
	e := newToyEngine(t)

	var texts []string
	for _, seed := range []int64{1, 2, 99} {
		cfg := greedy()
		cfg.MaxTokens = Ptr(10)
		cfg.Seed = Ptr(seed)
		res, err := e.Generate(context.Background(), &Request{Prompt: "ab", Config: cfg}, nil)
		if err != nil {
			t.Fatal(err)
		}
		texts = append(texts, res.Text)
	}
	if texts[0] != texts[1] || texts[1] != texts[2] {
		t.Fatalf("greedy output depends on seed: %q", texts)
	}
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	vocab := []string{"a", "<|im_end|>"}
	always := func([]int) int { return 0 }
	cases := []struct {
		name     string
		model    backend.Model
		tok      tokenizer.Tokenizer
		prompt   string
		kind     error
		contains string
		cause    error
	}{
		{
			name:  "prefill failure",
			model: &scriptedModel{vocab: 2, next: always, failAt: 1},
			kind:  ErrBackend, cause: errForced,
		},
		{
			name:  "decode failure",
			model: &scriptedModel{vocab: 2, next: always, failAt: 3},
			kind:  ErrBackend, cause: errForced,
		},
		{
			name:  "forward panic",
			model: panicModel{},
			kind:  ErrBackend, contains: "panic in Forward",
		},
		{
			name:   "unknown text",
			model:  &scriptedModel{vocab: 2, next: always},
			prompt: "zzz",
			kind:   ErrTokenization, cause: tokenizer.ErrUnknownToken,
		},
		{
			name:  "encode panic",
			model: &scriptedModel{vocab: 2, next: always},
			tok:   panicEncodeTokenizer{newFakeTokenizer(vocab...)},
			kind:  ErrTokenization, contains: "panic in Encode",
		},
		{
			name:  "vocab mismatch",
			model: &scriptedModel{vocab: 3, next: always},
			kind:  ErrSampling, cause: logits.ErrVocabMismatch,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok := tc.tok
			if tok == nil {
				tok = newFakeTokenizer(vocab...)
			}
			prompt := tc.prompt
			if prompt == "" {
				prompt = "a"
			}
			g := &Generator{Model: tc.model, Tokenizer: tok}
			cfg := greedy()
			cfg.MaxTokens = Ptr(4)
			var deltas int
			res, err := g.Run(context.Background(), prompt, cfg, func(tokenizer.Delta) { deltas++ })
			if res != nil {
				t.Fatalf("expected nil result on failure, got %+v", res)
			}
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if tc.cause != nil && !errors.Is(err, tc.cause) {
				t.Fatalf("expected cause %v, got %v", tc.cause, err)
			}
			if tc.contains != "" && !strings.Contains(err.Error(), tc.contains) {
				t.Fatalf("unexpected error: %v", err)
			}
			if KindOf(err) != tc.kind {
				t.Fatalf("KindOf: got %v", KindOf(err))
			}
		})
	}
}

func TestGenerateCanceled(t *testing.T) {
	t.Parallel()

	tok := newFakeTokenizer("a", "<|im_end|>")
	model := &scriptedModel{vocab: 2, next: func([]int) int { return 0 }}
	g := &Generator{Model: model, Tokenizer: tok}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := greedy()
	cfg.MaxTokens = Ptr(50)
	res, err := g.Run(ctx, "a", cfg, func(tokenizer.Delta) { cancel() })
	if res != nil {
		t.Fatalf("expected nil result")
	}
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if n := model.calls.Load(); n >= 50 {
		t.Fatalf("forward kept running after cancel: %d calls", n)
	}
}

func TestGenerateDefaults(t *testing.T) {
	t.Parallel()

	tok := newFakeTokenizer("a", "<|im_end|>")
	model := &scriptedModel{vocab: 2, context: 8, next: func([]int) int { return 0 }}

	// Context length bounds the default: 8 - 4 prompt tokens.
	g := &Generator{Model: model, Tokenizer: tok}
	res, err := g.Run(context.Background(), "aaa", greedy(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tokens) != 4 {
		t.Fatalf("context default: got %d tokens", len(res.Tokens))
	}

	g = &Generator{Model: model, Tokenizer: tok, Defaults: GenerationConfig{MaxTokens: Ptr(2), Temperature: Ptr(0.0)}}
	res, err = g.Run(context.Background(), "a", GenerationConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tokens) != 2 {
		t.Fatalf("model default: got %d tokens", len(res.Tokens))
	}

	res, err = g.Run(context.Background(), "a", GenerationConfig{MaxTokens: Ptr(3), ChatWrap: Ptr(false)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tokens) != 3 || res.Stats.PromptTokens != 1 {
		t.Fatalf("request override: got %d tokens, %d prompt", len(res.Tokens), res.Stats.PromptTokens)
	}
}

func TestEngineNil(t *testing.T) {
	t.Parallel()

	var e *Engine
	if _, err := e.Generate(context.Background(), &Request{Prompt: "a"}, nil); !errors.Is(err, ErrUninitializedResource) {
		t.Fatalf("expected ErrUninitializedResource, got %v", err)
	}
}
