package api

import (
	"context"

	"github.com/tsuki-kuma/tsuki/internal/inference"
)

// Engine runs one generation.
type Engine interface {
	Generate(ctx context.Context, req *inference.Request, stream inference.StreamFunc) (*inference.Result, error)
}

// EngineProvider hands out the engine for a model base path.
type EngineProvider interface {
	Engine(path string) (Engine, error)
}

// CachedEngineProvider adapts inference.Provider, which loads each path
// once and shares the engine afterwards.
type CachedEngineProvider struct {
	provider *inference.Provider
}

func NewCachedEngineProvider(loader inference.Loader) *CachedEngineProvider {
	return &CachedEngineProvider{provider: inference.NewProvider(loader)}
}

func (p *CachedEngineProvider) Engine(path string) (Engine, error) {
	e, err := p.provider.Get(path)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListModels reports the paths loaded so far.
func (p *CachedEngineProvider) ListModels() ([]string, error) {
	return p.provider.Loaded(), nil
}

func (p *CachedEngineProvider) Close() error {
	return p.provider.Close()
}
