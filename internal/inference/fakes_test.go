package inference

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

// fakeTokenizer matches the longest vocabulary entry at each position.
type fakeTokenizer struct {
	vocab   []string
	encodes atomic.Int64
}

func newFakeTokenizer(vocab ...string) *fakeTokenizer {
	return &fakeTokenizer{vocab: vocab}
}

func (f *fakeTokenizer) Encode(text string) ([]int, error) {
	f.encodes.Add(1)
	var ids []int
	for len(text) > 0 {
		best, bestLen := -1, 0
		for id, v := range f.vocab {
			if len(v) > bestLen && strings.HasPrefix(text, v) {
				best, bestLen = id, len(v)
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("%w: %q", tokenizer.ErrUnknownToken, text)
		}
		ids = append(ids, best)
		text = text[bestLen:]
	}
	return ids, nil
}

func (f *fakeTokenizer) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(f.vocab) {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		b.WriteString(f.vocab[id])
	}
	return b.String(), nil
}

func (f *fakeTokenizer) TokenToID(text string) (int, bool) {
	for id, v := range f.vocab {
		if v == text {
			return id, true
		}
	}
	return 0, false
}

func (f *fakeTokenizer) VocabSize() int { return len(f.vocab) }

func (f *fakeTokenizer) id(text string) int {
	id, ok := f.TokenToID(text)
	if !ok {
		panic("no token " + text)
	}
	return id
}

// scriptedModel favors the token chosen by next for each sequence and
// records how often Forward ran.
type scriptedModel struct {
	vocab   int
	context int
	next    func(seq []int) int
	failAt  int64
	calls   atomic.Int64
}

var errForced = errors.New("forced forward failure")

func (m *scriptedModel) Forward(tokens []int) ([]float32, error) {
	n := m.calls.Add(1)
	if m.failAt > 0 && n == m.failAt {
		return nil, errForced
	}
	out := make([]float32, m.vocab)
	if m.next != nil {
		out[m.next(tokens)] = 10
	}
	return out, nil
}

func (m *scriptedModel) VocabSize() int     { return m.vocab }
func (m *scriptedModel) ContextLength() int { return m.context }

// sequenceModel emits script[i] as the i-th generated token, then fallback.
func sequenceModel(vocab, promptLen int, script []int, fallback int) *scriptedModel {
	return &scriptedModel{
		vocab: vocab,
		next: func(seq []int) int {
			i := len(seq) - promptLen
			if i >= 0 && i < len(script) {
				return script[i]
			}
			return fallback
		},
	}
}

type panicModel struct{}

func (panicModel) Forward([]int) ([]float32, error) { panic("boom") }
func (panicModel) VocabSize() int                  { return 2 }

type panicEncodeTokenizer struct{ *fakeTokenizer }

func (panicEncodeTokenizer) Encode(string) ([]int, error) { panic("encode boom") }
