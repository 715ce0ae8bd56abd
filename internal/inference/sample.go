package inference

import (
	"context"
	"fmt"

	"github.com/samcharles93/kaiwa/internal/logits"
	"github.com/samcharles93/kaiwa/internal/model"
)

// sample draws m.NumReturn independent sequences. The input is encoded once
// and every row decodes from its own clone of the start state. Each step
// visits unfinished rows in order, so the draws consumed from the random
// source are reproducible for a fixed seed.
func (s *Search) sample(ctx context.Context, inputIDs []int, p Params, m TopP, stats *Stats) ([][]int, error) {
	start, err := s.Model.StartDecoder(ctx, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("top_p: %w", err)
	}
	proc := s.processors(p)
	sampler := logits.NewSampler(s.RNG, logits.SamplerConfig{
		Temperature: m.Temperature,
		TopP:        m.P,
	})

	type row struct {
		seq      []int
		state    model.DecoderState
		finished bool
	}
	rows := make([]row, m.NumReturn)
	for i := range rows {
		st := start
		if i < len(rows)-1 {
			st = start.Clone()
		}
		rows[i] = row{seq: []int{p.Special.BOS}, state: st}
	}

	for curLen := 1; curLen < p.MaxLength; curLen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		active := 0
		for i := range rows {
			r := &rows[i]
			if r.finished {
				continue
			}
			lg, err := r.state.Next(ctx, r.seq[len(r.seq)-1])
			if err != nil {
				return nil, fmt.Errorf("top_p step %d: %w", curLen, err)
			}
			stats.TokensGenerated++
			proc.Apply(lg, r.seq)
			next := sampler.Sample(lg)
			r.seq = append(r.seq, next)
			if next == p.Special.EOS {
				r.finished = true
				continue
			}
			active++
		}
		if active == 0 {
			break
		}
	}

	out := make([][]int, len(rows))
	for i, r := range rows {
		out[i] = r.seq
	}
	return out, nil
}
