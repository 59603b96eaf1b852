package api

import (
	"context"
	"errors"
	"sync"

	"github.com/tsuki-kuma/tsuki/internal/inference"
	"github.com/tsuki-kuma/tsuki/internal/resources"
	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

type testEngine struct {
	deltas []tokenizer.Delta
	result inference.Result
	err    error

	mu   sync.Mutex
	last *inference.Request
}

func (e *testEngine) Generate(ctx context.Context, req *inference.Request, stream inference.StreamFunc) (*inference.Result, error) {
	e.mu.Lock()
	e.last = req
	e.mu.Unlock()
	if stream != nil {
		for _, d := range e.deltas {
			stream(d)
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	res := e.result
	return &res, nil
}

func (e *testEngine) lastRequest() *inference.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

type testProvider struct {
	engine Engine
	err    error
	models []string
}

func (p testProvider) Engine(path string) (Engine, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.engine, nil
}

func (p testProvider) ListModels() ([]string, error) {
	return p.models, nil
}

var testPaths = resources.Paths{
	Root: "/res",
	TTS:  "/res/ai_models/supertonic",
	LLM:  "/res/ai_models/Qwen3-0.6B",
}

func newTestFacade(engine Engine, paths resources.Paths) *Facade {
	return NewFacade(NewInferenceService(testProvider{engine: engine}, 1), paths)
}

var errEngine = errors.New("engine exploded")
