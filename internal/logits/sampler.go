package logits

import (
	"math"
	"math/rand"
	"slices"

	"github.com/samcharles93/kaiwa/internal/tensor"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Temperature float32
	TopP        float32
}

// Sampler draws token ids from logits with temperature scaling and nucleus
// (top-p) truncation. The random source is owned by the caller so one seed
// drives every draw of a run.
type Sampler struct {
	rng  *rand.Rand
	cfg  SamplerConfig
	idx  []int
	prob []float64
}

// NewSampler returns a sampler drawing from rng.
func NewSampler(rng *rand.Rand, cfg SamplerConfig) *Sampler {
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{rng: rng, cfg: cfg}
}

// Sample draws a single index from the provided logits vector. The sample
// process involves the following steps:
//
//  1. The logits are scaled by the inverse temperature.
//  2. A softmax is computed and the indices are sorted by probability,
//     highest first; ties keep the lower index first.
//  3. The sorted list is cut after the smallest prefix whose cumulative
//     probability reaches TopP. At least one index always survives.
//  4. A random value is drawn from [0,1) and used to select an index from the
//     renormalised prefix.
//
// Tokens at -Inf are never drawn. If every logit is -Inf the argmax (index 0)
// is returned.
func (s *Sampler) Sample(logits []float32) int {
	if len(logits) == 0 {
		panic("sample: empty logits")
	}
	invTemp := 1 / float64(s.cfg.Temperature)

	maxv := math.Inf(-1)
	for _, l := range logits {
		if v := float64(l); v > maxv {
			maxv = v
		}
	}
	if math.IsInf(maxv, -1) {
		return tensor.Argmax(logits)
	}

	if cap(s.prob) < len(logits) {
		s.prob = make([]float64, len(logits))
		s.idx = make([]int, len(logits))
	}
	prob := s.prob[:len(logits)]
	idx := s.idx[:len(logits)]
	var sum float64
	for i, l := range logits {
		e := math.Exp((float64(l) - maxv) * invTemp)
		prob[i] = e
		sum += e
		idx[i] = i
	}
	for i := range prob {
		prob[i] /= sum
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case prob[a] > prob[b]:
			return -1
		case prob[a] < prob[b]:
			return 1
		}
		return 0
	})

	cut := len(idx)
	kept := 1.0
	if s.cfg.TopP < 1 {
		var c float64
		for i, id := range idx {
			c += prob[id]
			if c >= float64(s.cfg.TopP) {
				cut = i + 1
				kept = c
				break
			}
		}
	}

	r := s.rng.Float64() * kept
	var c float64
	for i := 0; i < cut; i++ {
		id := idx[i]
		if prob[id] == 0 {
			break
		}
		c += prob[id]
		if r < c {
			return id
		}
	}
	return idx[0]
}

// TopK returns the indices and values of the k largest elements, ordered from
// largest to smallest. Equal values keep their original order. This is an
// O(N*K) selection suited to small k.
func TopK(values []float32, k int) ([]int, []float32) {
	if k <= 0 {
		return nil, nil
	}
	k = min(k, len(values))
	topIdx := make([]int, 0, k+1)
	topVal := make([]float32, 0, k+1)

	for i, v := range values {
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)

		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	return topIdx, topVal
}
