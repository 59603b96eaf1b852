package api

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/tsuki-kuma/tsuki/internal/inference"
	"github.com/tsuki-kuma/tsuki/internal/logger"
	"github.com/tsuki-kuma/tsuki/internal/resources"
)

// Facade is the entry point used by the CLI and the HTTP server. It
// resolves the model path once at construction and forwards prompts to the
// service.
type Facade struct {
	service *InferenceService
	paths   resources.Paths
	// Config fills fields a call leaves unset, ahead of the model's
	// generation_config.json.
	Config inference.GenerationConfig
	// KeepReasoning returns the raw text, think blocks included.
	KeepReasoning bool
	Logger        logger.Logger
}

func NewFacade(service *InferenceService, paths resources.Paths) *Facade {
	return &Facade{service: service, paths: paths}
}

func (f *Facade) Paths() resources.Paths { return f.paths }

// ModelName is the base name of the resolved LLM directory, or "" when it
// was not resolved.
func (f *Facade) ModelName() string {
	if f.paths.LLM == "" {
		return ""
	}
	return filepath.Base(f.paths.LLM)
}

func (f *Facade) log(ctx context.Context) logger.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return logger.FromContext(ctx)
}

// Infer runs prompt with the facade defaults and returns the reply. The
// error, if any, reads as a single line.
func (f *Facade) Infer(ctx context.Context, prompt string) (string, error) {
	res, err := f.Generate(ctx, inference.GenerationConfig{}, prompt, nil)
	if err != nil {
		return "", flatten(err)
	}
	return f.Reply(res), nil
}

// Reply picks the text shown to a user from res.
func (f *Facade) Reply(res *inference.Result) string {
	if f.KeepReasoning {
		return res.Text
	}
	return inference.CleanReply(res.Text)
}

// Generate runs one request and returns the full result.
func (f *Facade) Generate(ctx context.Context, cfg inference.GenerationConfig, prompt string, stream inference.StreamFunc) (*inference.Result, error) {
	if f == nil {
		return nil, &inference.Error{Kind: inference.ErrUninitializedResource, Op: "infer", Err: errors.New("facade not built")}
	}
	if f.paths.LLM == "" {
		err := &inference.Error{Kind: inference.ErrUninitializedResource, Op: "infer", Err: errors.New("LLM model path not resolved")}
		f.log(ctx).Error("inference failed", "error", err)
		return nil, err
	}
	req := &inference.Request{Prompt: prompt, Config: cfg.Merge(f.Config)}
	res, err := f.service.Generate(ctx, f.paths.LLM, req, stream)
	if err != nil {
		f.log(ctx).Error("inference failed", "error", err)
		return nil, err
	}
	return res, nil
}
