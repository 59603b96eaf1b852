package inference

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Provider loads each model directory once and hands out the shared Engine.
type Provider struct {
	load func(dir string) (*Engine, error)

	mu    sync.Mutex
	cache map[string]*Engine
}

func NewProvider(loader Loader) *Provider {
	return newProvider(loader.Load)
}

func newProvider(load func(string) (*Engine, error)) *Provider {
	return &Provider{load: load, cache: make(map[string]*Engine)}
}

// Get returns the engine for dir, loading it on first use.
func (p *Provider) Get(dir string) (*Engine, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, newError(ErrUninitializedResource, "provider", errors.New("model path not resolved"))
	}
	path := filepath.Clean(dir)

	p.mu.Lock()
	e, ok := p.cache[path]
	p.mu.Unlock()
	if ok {
		return e, nil
	}

	loaded, err := p.load(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.cache[path]; ok {
		_ = loaded.Close()
		return existing, nil
	}
	p.cache[path] = loaded
	return loaded, nil
}

// Loaded lists the cached model paths.
func (p *Provider) Loaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.cache))
	for k := range p.cache {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for k, e := range p.cache {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.cache, k)
	}
	return errors.Join(errs...)
}
