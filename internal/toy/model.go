// Package toy provides a small deterministic bigram language model. It needs
// no weights on disk, which makes it useful for demos, benchmarks and tests
// of the generation loop.
package toy

import (
	"fmt"
	"math/rand"

	"github.com/tsuki-kuma/tsuki/internal/backend"
)

// Mat is a dense row-major matrix.
type Mat struct {
	Rows, Cols int
	Data       []float32
}

func NewMat(rows, cols int) Mat {
	return Mat{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

func (m Mat) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// FillRand fills m with values in [-1, 1) from a seeded source.
func FillRand(m *Mat, seed int64) {
	r := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = r.Float32()*2 - 1
	}
}

// ToyLM consists of an embedding matrix, a weight matrix projecting hidden
// activations back to vocab logits, and a bias vector. Logits depend only on
// the last token of the sequence.
type ToyLM struct {
	Vocab   int
	Hidden  int
	Context int

	Emb  Mat       // [Vocab x Hidden] embedding matrix
	W    Mat       // [Hidden x Vocab] projection weights
	Bias []float32 // [Vocab] bias added to logits
}

var _ backend.Model = (*ToyLM)(nil)

// NewToyLM constructs a model with the given vocabulary and hidden size. The
// embedding and weight matrices are filled from the seed; biases are zeroed.
func NewToyLM(vocab, hidden int, seed int64) *ToyLM {
	m := &ToyLM{
		Vocab:  vocab,
		Hidden: hidden,
		Emb:    NewMat(vocab, hidden),
		W:      NewMat(hidden, vocab),
		Bias:   make([]float32, vocab),
	}
	FillRand(&m.Emb, seed+11)
	FillRand(&m.W, seed+23)
	return m
}

// Forward computes logits for the last token of tokens. Token ids outside
// [0, Vocab) are an error. A newly allocated slice is returned.
func (m *ToyLM) Forward(tokens []int) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, backend.ErrEmptyInput
	}
	if m.Context > 0 && len(tokens) > m.Context {
		return nil, fmt.Errorf("toy: sequence length %d exceeds context %d", len(tokens), m.Context)
	}
	tok := tokens[len(tokens)-1]
	if tok < 0 || tok >= m.Vocab {
		return nil, fmt.Errorf("toy: token %d out of range [0,%d)", tok, m.Vocab)
	}
	h := m.Emb.Row(tok)
	logits := make([]float32, m.Vocab)
	copy(logits, m.Bias)
	for i := 0; i < m.Hidden; i++ {
		hi := h[i]
		row := m.W.Row(i)
		for j := range logits {
			logits[j] += hi * row[j]
		}
	}
	return logits, nil
}

func (m *ToyLM) VocabSize() int     { return m.Vocab }
func (m *ToyLM) ContextLength() int { return m.Context }

// Reentrant reports true: Forward only reads the weights.
func (m *ToyLM) Reentrant() bool { return true }
