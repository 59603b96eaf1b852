package logits

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
)

var (
	// ErrVocabMismatch means the backend produced a logits vector whose
	// length differs from the tokenizer vocabulary.
	ErrVocabMismatch = errors.New("logits length does not match vocabulary size")
	// ErrNumeric means the logits could not be turned into a distribution.
	ErrNumeric = errors.New("logits not a valid distribution")
)

// SamplerConfig configures the behaviour of a Sampler. Zero values disable
// the optional filters; Temperature 0 selects greedy decoding.
type SamplerConfig struct {
	VocabSize     int
	Seed          int64
	Temperature   float64
	TopK          int
	TopP          float64
	MinP          float64
	RepeatPenalty float64
	// RepeatWindow is the number of trailing history tokens penalized.
	// 0 means the whole history.
	RepeatWindow int
}

// Sampler turns logits into token ids. A Sampler is owned by a single
// generation and is not safe for concurrent use.
type Sampler struct {
	rng       *rand.Rand
	cfg       SamplerConfig
	greedy    bool
	scratch   []float32
	idx       []int
	prob      []float64
	seenMark  []uint32
	seenEpoch uint32
	seenList  []int
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	// A temperature whose inverse overflows is argmax in the limit.
	greedy := cfg.Temperature <= 0 || math.IsInf(1/cfg.Temperature, 1)
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty < 1 {
		cfg.RepeatPenalty = 1
	}
	if cfg.RepeatWindow < 0 {
		cfg.RepeatWindow = 0
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Sample draws a single token id from logits. history is the token sequence
// produced so far and only feeds the repeat penalty. logits is never written.
//
//  1. Apply the repeat penalty over the trailing window of history.
//  2. With Temperature 0 return the argmax, lowest id on ties.
//  3. Otherwise scale by 1/Temperature and take a softmax with the max
//     logit subtracted.
//  4. Filter by TopK, then MinP, then TopP, renormalizing the survivors.
//  5. Draw once from the seeded source.
func (s *Sampler) Sample(logits []float32, history []int) (int, error) {
	if s.cfg.VocabSize > 0 && len(logits) != s.cfg.VocabSize {
		return 0, fmt.Errorf("%w: got %d want %d", ErrVocabMismatch, len(logits), s.cfg.VocabSize)
	}
	if len(logits) == 0 {
		return 0, fmt.Errorf("%w: empty logits", ErrVocabMismatch)
	}
	if cap(s.scratch) < len(logits) {
		s.scratch = make([]float32, len(logits))
	}
	x := s.scratch[:len(logits)]
	copy(x, logits)
	for i, v := range x {
		if math.IsNaN(float64(v)) {
			return 0, fmt.Errorf("%w: NaN at index %d", ErrNumeric, i)
		}
	}

	s.applyRepeatPenalty(x, history)

	if s.greedy {
		return argmax(x), nil
	}

	invTemp := 1 / s.cfg.Temperature
	maxv := float64(x[argmax(x)]) * invTemp

	if cap(s.prob) < len(x) {
		s.prob = make([]float64, len(x))
	}
	prob := s.prob[:len(x)]
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v)*invTemp - maxv)
		prob[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, fmt.Errorf("%w: softmax sum %v", ErrNumeric, sum)
	}
	for i := range prob {
		prob[i] /= sum
	}

	if s.cfg.TopK == 0 && s.cfg.MinP == 0 && s.cfg.TopP >= 1 {
		return s.draw(prob, nil), nil
	}

	// Candidates in descending probability, ascending id on ties.
	if cap(s.idx) < len(x) {
		s.idx = make([]int, len(x))
	}
	idx := s.idx[:len(x)]
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int {
		if c := cmp.Compare(prob[b], prob[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	cut := len(idx)
	if s.cfg.TopK > 0 && s.cfg.TopK < cut {
		cut = s.cfg.TopK
	}
	if s.cfg.MinP > 0 {
		threshold := prob[idx[0]] * s.cfg.MinP
		n := 0
		for n < cut && prob[idx[n]] >= threshold {
			n++
		}
		cut = max(n, 1)
	}
	if s.cfg.TopP < 1 {
		var kept float64
		for i := 0; i < cut; i++ {
			kept += prob[idx[i]]
		}
		var c float64
		for i := 0; i < cut; i++ {
			c += prob[idx[i]] / kept
			if c >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}
	return s.draw(prob, idx[:cut]), nil
}

// draw picks from prob restricted to the candidate ids, renormalizing over
// them. A nil candidate list means every id.
func (s *Sampler) draw(prob []float64, candidates []int) int {
	if candidates == nil {
		r := s.rng.Float64()
		var c float64
		for i, p := range prob {
			c += p
			if r < c {
				return i
			}
		}
		return argmax64(prob)
	}
	var total float64
	for _, id := range candidates {
		total += prob[id]
	}
	r := s.rng.Float64() * total
	var c float64
	for _, id := range candidates {
		c += prob[id]
		if r < c {
			return id
		}
	}
	return candidates[len(candidates)-1]
}

func (s *Sampler) applyRepeatPenalty(x []float32, history []int) {
	if s.cfg.RepeatPenalty <= 1 || len(history) == 0 {
		return
	}
	window := history
	if s.cfg.RepeatWindow > 0 && len(history) > s.cfg.RepeatWindow {
		window = history[len(history)-s.cfg.RepeatWindow:]
	}

	if len(s.seenMark) < len(x) {
		s.seenMark = make([]uint32, len(x))
	}
	s.seenEpoch++
	if s.seenEpoch == 0 {
		clear(s.seenMark)
		s.seenEpoch = 1
	}
	s.seenList = s.seenList[:0]
	for _, id := range window {
		if id >= 0 && id < len(x) && s.seenMark[id] != s.seenEpoch {
			s.seenMark[id] = s.seenEpoch
			s.seenList = append(s.seenList, id)
		}
	}

	for _, id := range s.seenList {
		if x[id] > 0 {
			x[id] = float32(float64(x[id]) / s.cfg.RepeatPenalty)
		} else {
			x[id] = float32(float64(x[id]) * s.cfg.RepeatPenalty)
		}
	}
}

// argmax returns the index of the maximum value, the lowest index on ties.
// If the slice is empty it panics.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

func argmax64(x []float64) int {
	bestI := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[bestI] {
			bestI = i
		}
	}
	return bestI
}
