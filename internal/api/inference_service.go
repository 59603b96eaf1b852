package api

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/tsuki-kuma/tsuki/internal/inference"
)

const DefaultMaxConcurrent = 2

// InferenceService bounds how many generations run at once. Each call holds
// one slot until its generation returns.
type InferenceService struct {
	provider EngineProvider
	sem      *semaphore.Weighted
	limit    int64
}

func NewInferenceService(provider EngineProvider, maxConcurrent int) *InferenceService {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &InferenceService{
		provider: provider,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		limit:    int64(maxConcurrent),
	}
}

func (s *InferenceService) MaxConcurrent() int { return int(s.limit) }

// Generate runs req against the engine for path. Waiting for a slot honors
// ctx.
func (s *InferenceService) Generate(ctx context.Context, path string, req *inference.Request, stream inference.StreamFunc) (*inference.Result, error) {
	if s == nil || s.provider == nil {
		return nil, &inference.Error{Kind: inference.ErrUninitializedResource, Op: "service"}
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, &inference.Error{Kind: inference.ErrCanceled, Op: "acquire", Err: err}
	}
	defer s.sem.Release(1)

	engine, err := s.provider.Engine(path)
	if err != nil {
		return nil, err
	}
	return engine.Generate(ctx, req, stream)
}

// ListModels forwards to the provider when it can enumerate models.
func (s *InferenceService) ListModels() ([]string, error) {
	if s == nil || s.provider == nil {
		return nil, nil
	}
	if lister, ok := s.provider.(interface {
		ListModels() ([]string, error)
	}); ok {
		return lister.ListModels()
	}
	return nil, nil
}
