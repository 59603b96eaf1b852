package inference

import (
	"context"
	"errors"

	"github.com/tsuki-kuma/tsuki/internal/backend"
	"github.com/tsuki-kuma/tsuki/internal/logger"
	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

// Engine pairs a loaded model with its tokenizer. It is shared read-only by
// concurrent Generate calls; each call gets its own Generator.
type Engine struct {
	Name       string
	Model      backend.Model
	Tokenizer  tokenizer.Tokenizer
	StopTokens []int
	Defaults   GenerationConfig
	Logger     logger.Logger
}

func (e *Engine) Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error) {
	if e == nil {
		return nil, newError(ErrUninitializedResource, "generate", errors.New("engine not loaded"))
	}
	if req == nil {
		return nil, invalidConfig("request is required")
	}
	log := e.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}

	g := &Generator{
		Model:      e.Model,
		Tokenizer:  e.Tokenizer,
		StopTokens: e.StopTokens,
		Defaults:   e.Defaults,
	}
	res, err := g.Run(ctx, req.Prompt, req.Config, stream)
	if err != nil {
		log.Warn("generation failed", "model", e.Name, "error", err)
		return nil, err
	}
	args := []any{
		"model", e.Name,
		"prompt_tokens", res.Stats.PromptTokens,
		"tokens", res.Stats.TokensGenerated,
		"tps", res.Stats.TPS,
		"finish", string(res.FinishReason),
		"seed", res.Seed,
	}
	if pc, ok := e.Model.(*backend.PrefixCache); ok {
		st := pc.Stats()
		args = append(args, "cache_hits", st.Hits, "cache_misses", st.Misses)
	}
	log.Debug("generation finished", args...)
	return res, nil
}

func (e *Engine) Close() error {
	if e == nil || e.Model == nil {
		return nil
	}
	return backend.Close(e.Model)
}
