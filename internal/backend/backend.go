// Package backend defines the model capability the generation loop drives
// and a few wrappers around it.
package backend

import (
	"errors"
	"io"
)

// ErrEmptyInput is returned by Forward when called with no tokens.
var ErrEmptyInput = errors.New("forward called with empty token sequence")

// Model maps a token sequence to next-token logits for the last position.
// The returned slice has VocabSize entries. Callers must treat it as
// read-only; wrappers may hand the same slice to several callers.
type Model interface {
	Forward(tokens []int) ([]float32, error)
	VocabSize() int
}

// Reentrant is implemented by models whose Forward may run concurrently.
type Reentrant interface {
	Reentrant() bool
}

// ContextLength is implemented by models with a bounded sequence length.
type ContextLength interface {
	ContextLength() int
}

func IsReentrant(m Model) bool {
	r, ok := m.(Reentrant)
	return ok && r.Reentrant()
}

// ContextLengthOf returns the model context length, or 0 when unknown.
func ContextLengthOf(m Model) int {
	if c, ok := m.(ContextLength); ok {
		return c.ContextLength()
	}
	return 0
}

// Close releases m if it holds resources.
func Close(m Model) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
