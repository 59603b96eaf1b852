package backend

import "sync"

type serialized struct {
	mu sync.Mutex
	m  Model
}

// Serialized guards m with a single mutex. Models that report themselves
// reentrant are returned unchanged.
func Serialized(m Model) Model {
	if IsReentrant(m) {
		return m
	}
	if _, ok := m.(*serialized); ok {
		return m
	}
	return &serialized{m: m}
}

func (s *serialized) Forward(tokens []int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Forward(tokens)
}

func (s *serialized) VocabSize() int     { return s.m.VocabSize() }
func (s *serialized) ContextLength() int { return ContextLengthOf(s.m) }
func (s *serialized) Reentrant() bool    { return true }

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Close(s.m)
}
