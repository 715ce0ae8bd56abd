package inference

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/samcharles93/kaiwa/internal/logits"
	"github.com/samcharles93/kaiwa/internal/model"
)

// Search implements Generator over a seq2seq model. The random source is only
// used by TopP and must not be shared with concurrent callers.
type Search struct {
	Model model.Seq2Seq
	RNG   *rand.Rand
}

var _ Generator = (*Search)(nil)

func NewSearch(m model.Seq2Seq, rng *rand.Rand) *Search {
	return &Search{Model: m, RNG: rng}
}

// Generate runs the decoding method named by p. Panics inside the model are
// returned as errors.
func (s *Search) Generate(ctx context.Context, inputIDs []int, p Params) (res *Result, err error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if s.Model == nil {
		return nil, fmt.Errorf("search: model is required")
	}
	if p.MaxLength < 1 {
		return nil, fmt.Errorf("search: max length must be positive, got %d", p.MaxLength)
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("panic in generate: %v", rec)
		}
	}()

	start := time.Now()
	var seqs [][]int
	var stats Stats
	switch m := p.Method.(type) {
	case BeamSearch:
		seqs, err = s.beamSearch(ctx, inputIDs, p, m, &stats)
	case TopP:
		if s.RNG == nil {
			return nil, fmt.Errorf("search: top_p requires a random source")
		}
		seqs, err = s.sample(ctx, inputIDs, p, m, &stats)
	default:
		return nil, ErrInvalidMethod
	}
	if err != nil {
		return nil, err
	}
	stats.finish(start)
	return &Result{Sequences: padSequences(seqs, p.Special.Pad), Stats: stats}, nil
}

func (s *Search) processors(p Params) *logits.Processors {
	return &logits.Processors{
		RepetitionPenalty: p.RepetitionPenalty,
		NoRepeatNGramSize: p.NoRepeatNGramSize,
		MinLength:         p.MinLength,
		EOS:               p.Special.EOS,
	}
}

// padSequences right-pads every sequence to the longest one.
func padSequences(seqs [][]int, pad int) [][]int {
	longest := 0
	for _, s := range seqs {
		longest = max(longest, len(s))
	}
	out := make([][]int, len(seqs))
	for i, s := range seqs {
		row := make([]int, longest)
		copy(row, s)
		for j := len(s); j < longest; j++ {
			row[j] = pad
		}
		out[i] = row
	}
	return out
}
