package logits

import (
	"math"
	"slices"
)

// Processors holds the logits adjustments applied before every decoding step.
// A zero penalty, n-gram size or minimum length disables that processor.
type Processors struct {
	RepetitionPenalty float32
	NoRepeatNGramSize int
	MinLength         int
	EOS               int

	seenMark  []uint32
	seenEpoch uint32
}

// Apply adjusts logits in place for the next token after seq, the decoder ids
// generated so far (starting with bos). Order: repetition penalty, n-gram ban,
// minimum length.
func (p *Processors) Apply(logits []float32, seq []int) {
	if p.RepetitionPenalty > 0 && p.RepetitionPenalty != 1 {
		p.penalize(logits, seq)
	}
	if p.NoRepeatNGramSize > 0 {
		BanRepeatedNGrams(logits, seq, p.NoRepeatNGramSize)
	}
	if len(seq) < p.MinLength && p.EOS >= 0 && p.EOS < len(logits) {
		logits[p.EOS] = float32(math.Inf(-1))
	}
}

// penalize scales each distinct token of seq once: positive logits are divided
// by the penalty and negative ones multiplied.
func (p *Processors) penalize(logits []float32, seq []int) {
	if len(p.seenMark) < len(logits) {
		p.seenMark = make([]uint32, len(logits))
	}
	p.seenEpoch++
	if p.seenEpoch == 0 {
		clear(p.seenMark)
		p.seenEpoch = 1
	}
	for _, id := range seq {
		if id < 0 || id >= len(logits) || p.seenMark[id] == p.seenEpoch {
			continue
		}
		p.seenMark[id] = p.seenEpoch
		if logits[id] > 0 {
			logits[id] /= p.RepetitionPenalty
		} else {
			logits[id] *= p.RepetitionPenalty
		}
	}
}

// BanRepeatedNGrams sets to -Inf every token that would complete an n-gram
// already present in seq.
func BanRepeatedNGrams(logits []float32, seq []int, n int) {
	if n <= 0 || len(seq)+1 < n {
		return
	}
	prefix := seq[len(seq)-n+1:]
	for start := 0; start+n <= len(seq); start++ {
		if !slices.Equal(seq[start:start+n-1], prefix) {
			continue
		}
		if id := seq[start+n-1]; id >= 0 && id < len(logits) {
			logits[id] = float32(math.Inf(-1))
		}
	}
}
