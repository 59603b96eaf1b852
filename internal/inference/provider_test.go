package inference

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestProviderLoadsOncePerPath(t *testing.T) {
	t.Parallel()

	var loads atomic.Int64
	p := newProvider(func(dir string) (*Engine, error) {
		loads.Add(1)
		return &Engine{Name: dir}, nil
	})

	var wg sync.WaitGroup
	engines := make([]*Engine, 16)
	for i := range engines {
		wg.Go(func() {
			e, err := p.Get("models/qwen/")
			if err != nil {
				t.Error(err)
				return
			}
			engines[i] = e
		})
	}
	wg.Wait()
	for _, e := range engines {
		if e != engines[0] {
			t.Fatalf("provider handed out different engines for one path")
		}
	}
	if got := p.Loaded(); len(got) != 1 || got[0] != "models/qwen" {
		t.Fatalf("loaded: %v", got)
	}
	if loads.Load() < 1 {
		t.Fatalf("loader never ran")
	}

	if _, err := p.Get("models/other"); err != nil {
		t.Fatal(err)
	}
	if len(p.Loaded()) != 2 {
		t.Fatalf("expected two cached engines")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if len(p.Loaded()) != 0 {
		t.Fatalf("close should empty the cache")
	}
}

func TestProviderErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p := newProvider(func(string) (*Engine, error) { return nil, boom })
	if _, err := p.Get(""); !errors.Is(err, ErrUninitializedResource) {
		t.Fatalf("expected ErrUninitializedResource, got %v", err)
	}
	if _, err := p.Get("x"); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if len(p.Loaded()) != 0 {
		t.Fatalf("failed load must not be cached")
	}
}
