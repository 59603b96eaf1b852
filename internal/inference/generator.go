package inference

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tsuki-kuma/tsuki/internal/backend"
	"github.com/tsuki-kuma/tsuki/internal/logits"
	"github.com/tsuki-kuma/tsuki/internal/reasoning"
	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

// Generator runs one generation. It owns the token sequence, the decode
// buffer and the sampler; none of it is shared with other calls.
type Generator struct {
	Model      backend.Model
	Tokenizer  tokenizer.Tokenizer
	StopTokens []int
	// Defaults fill fields the request leaves unset.
	Defaults GenerationConfig

	state State
}

func (g *Generator) State() State { return g.state }

// Run drives Init, Prefill and Decoding to Terminated. On error the result
// is nil; deltas already passed to stream stay delivered.
func (g *Generator) Run(ctx context.Context, prompt string, cfg GenerationConfig, stream StreamFunc) (*Result, error) {
	g.state = StateInit
	defer func() { g.state = StateTerminated }()

	if ctx == nil {
		return nil, invalidConfig("context is required")
	}
	if g.Model == nil || g.Tokenizer == nil {
		return nil, newError(ErrUninitializedResource, "generate", errors.New("generator has no model or tokenizer"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Merge(g.Defaults)
	if err := ctx.Err(); err != nil {
		return nil, newError(ErrCanceled, "generate", err)
	}

	g.state = StatePrefill
	text := prompt
	if cfg.chatWrap() {
		text += EndOfTurn
	}
	ids, err := safeEncode(g.Tokenizer, text)
	if err != nil {
		return nil, newError(ErrTokenization, "encode", err)
	}
	p := resolve(cfg, len(ids), backend.ContextLengthOf(g.Model))
	res := &Result{
		Seed:         p.seed,
		FinishReason: FinishLength,
		Stats:        Stats{PromptTokens: len(ids)},
	}
	if p.maxTokens == 0 {
		return res, nil
	}
	if len(ids) == 0 {
		return nil, newError(ErrTokenization, "encode", errors.New("prompt encodes to no tokens"))
	}

	start := time.Now()
	if _, err := safeForward(g.Model, ids); err != nil {
		return nil, newError(ErrBackend, "prefill", err)
	}
	res.Stats.PrefillDuration = time.Since(start)

	// A stop string that is one vocabulary entry also stops at token level.
	stopID := -1
	if p.stop != "" {
		if id, ok := g.Tokenizer.TokenToID(p.stop); ok {
			stopID = id
		}
	}
	sampler := logits.NewSampler(logits.SamplerConfig{
		VocabSize:     g.Tokenizer.VocabSize(),
		Seed:          p.seed,
		Temperature:   p.temperature,
		TopK:          p.topK,
		TopP:          p.topP,
		MinP:          p.minP,
		RepeatPenalty: p.repeatPenalty,
		RepeatWindow:  p.repeatWindow,
	})
	out := tokenizer.NewOutputStream(g.Tokenizer)
	seq := make([]int, len(ids), len(ids)+min(p.maxTokens, 4096))
	copy(seq, ids)

	g.state = StateDecoding
	var emitted string
	emit := func(visible string) {
		if stream == nil {
			return
		}
		if d := tokenizer.Diff(emitted, visible); !d.Empty() {
			stream(d)
		}
		emitted = visible
	}

	decodeStart := time.Now()
	stopAt := -1
decode:
	for out.Len() < p.maxTokens {
		if err := ctx.Err(); err != nil {
			return nil, newError(ErrCanceled, "decode", err)
		}
		lv, err := safeForward(g.Model, seq)
		if err != nil {
			return nil, newError(ErrBackend, "forward", err)
		}
		next, err := safeSample(sampler, lv, seq)
		if err != nil {
			return nil, newError(ErrSampling, "sample", err)
		}
		if slices.Contains(g.StopTokens, next) {
			res.FinishReason = FinishEOS
			break
		}
		if next == stopID {
			res.FinishReason = FinishStop
			break
		}
		seq = append(seq, next)
		if _, err := safePush(out, next); err != nil {
			return nil, newError(ErrTokenization, "decode", err)
		}

		full := out.Decoded()
		if p.stop != "" {
			stopAt = strings.Index(full, p.stop)
		}
		switch {
		case out.Len() >= p.maxTokens:
			res.FinishReason = FinishLength
			break decode
		case stopAt >= 0:
			res.FinishReason = FinishStop
			break decode
		}
		emit(visibleText(out.Text(), p.stop))
	}

	out.Flush()
	final := out.Decoded()
	if p.stop != "" {
		if i := strings.Index(final, p.stop); i >= 0 {
			final = final[:i]
		}
	}
	emit(final)

	split := reasoning.SplitRaw(final)
	res.Text = final
	res.Content = split.Content
	res.Reasoning = split.Reasoning
	res.Tokens = out.Tokens()
	res.Stats.TokensGenerated = out.Len()
	res.Stats.Duration = time.Since(decodeStart)
	if res.Stats.Duration.Seconds() > 0 {
		res.Stats.TPS = float64(res.Stats.TokensGenerated) / res.Stats.Duration.Seconds()
	}
	return res, nil
}

// visibleText holds back any suffix of text that could still grow into the
// stop string.
func visibleText(text, stop string) string {
	if stop == "" {
		return text
	}
	for k := min(len(stop)-1, len(text)); k > 0; k-- {
		if strings.HasSuffix(text, stop[:k]) {
			return text[:len(text)-k]
		}
	}
	return text
}

func safeForward(m backend.Model, tokens []int) (lv []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Forward: %v", rec)
		}
	}()
	return m.Forward(tokens)
}

func safeSample(s *logits.Sampler, lv []float32, history []int) (id int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Sample: %v", rec)
		}
	}()
	return s.Sample(lv, history)
}

func safeEncode(tok tokenizer.Tokenizer, prompt string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(prompt)
}

func safePush(out *tokenizer.OutputStream, id int) (d tokenizer.Delta, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Decode: %v", rec)
		}
	}()
	return out.PushToken(id)
}
