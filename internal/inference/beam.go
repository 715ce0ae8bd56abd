package inference

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/samcharles93/kaiwa/internal/logits"
	"github.com/samcharles93/kaiwa/internal/model"
	"github.com/samcharles93/kaiwa/internal/tensor"
)

// lengthPenalty is the exponent applied to hypothesis length when scoring
// finished beams. 1 makes the score the mean token log-probability.
const lengthPenalty = 1.0

type beam struct {
	seq   []int
	score float32
	state model.DecoderState
}

type hypothesis struct {
	seq   []int
	score float64
}

// hypotheses keeps the n best finished beams.
type hypotheses struct {
	n     int
	items []hypothesis
	worst float64
}

func newHypotheses(n int) *hypotheses {
	return &hypotheses{n: n, worst: 1e9}
}

func (h *hypotheses) add(seq []int, sumLogprobs float64) {
	score := sumLogprobs / math.Pow(float64(len(seq)), lengthPenalty)
	if len(h.items) >= h.n && score <= h.worst {
		return
	}
	h.items = append(h.items, hypothesis{seq: seq, score: score})
	if len(h.items) <= h.n {
		h.worst = min(h.worst, score)
		return
	}
	worstIdx := 0
	for i, it := range h.items {
		if it.score < h.items[worstIdx].score {
			worstIdx = i
		}
	}
	h.items = slices.Delete(h.items, worstIdx, worstIdx+1)
	h.worst = h.items[0].score
	for _, it := range h.items[1:] {
		h.worst = min(h.worst, it.score)
	}
}

// done reports whether no running beam can still beat the worst kept
// hypothesis.
func (h *hypotheses) done(bestSumLogprobs float64, curLen int) bool {
	if len(h.items) < h.n {
		return false
	}
	return h.worst >= bestSumLogprobs/math.Pow(float64(curLen), lengthPenalty)
}

func (h *hypotheses) best() []hypothesis {
	out := slices.Clone(h.items)
	slices.SortStableFunc(out, func(a, b hypothesis) int {
		return cmp.Compare(b.score, a.score)
	})
	return out
}

type beamPick struct {
	parent int
	token  int
	score  float32
}

// beamSearch decodes from bos keeping the m.NumBeams best prefixes by summed
// log-probability. Prefixes that pick eos become finished hypotheses scored by
// their mean log-probability; the best m.NumReturn are returned with eos
// appended when they ended before MaxLength.
func (s *Search) beamSearch(ctx context.Context, inputIDs []int, p Params, m BeamSearch, stats *Stats) ([][]int, error) {
	st, err := s.Model.StartDecoder(ctx, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("beam search: %w", err)
	}
	vocab := s.Model.VocabSize()
	proc := s.processors(p)
	hyps := newHypotheses(m.NumBeams)

	beams := []beam{{seq: []int{p.Special.BOS}, state: st}}
	scores := make([]float32, 0, m.NumBeams*vocab)
	done := false

	for !done && len(beams) > 0 && len(beams[0].seq) < p.MaxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		curLen := len(beams[0].seq)

		scores = scores[:0]
		for i := range beams {
			b := &beams[i]
			lg, err := b.state.Next(ctx, b.seq[len(b.seq)-1])
			if err != nil {
				return nil, fmt.Errorf("beam search step %d: %w", curLen, err)
			}
			stats.TokensGenerated++
			tensor.LogSoftmax(lg)
			proc.Apply(lg, b.seq)
			for j := range lg {
				lg[j] += b.score
			}
			scores = append(scores, lg...)
		}

		idx, val := logits.TopK(scores, 2*m.NumBeams)
		picks := make([]beamPick, 0, m.NumBeams)
		for rank, flat := range idx {
			score := val[rank]
			if math.IsInf(float64(score), -1) {
				break
			}
			parent, token := flat/vocab, flat%vocab
			if token == p.Special.EOS {
				if rank < m.NumBeams {
					hyps.add(slices.Clone(beams[parent].seq), float64(score))
				}
				continue
			}
			picks = append(picks, beamPick{parent: parent, token: token, score: score})
			if len(picks) == m.NumBeams {
				break
			}
		}
		if len(val) > 0 && !math.IsInf(float64(val[0]), -1) {
			done = hyps.done(float64(val[0]), curLen)
		}

		beams = advanceBeams(beams, picks)
	}

	if !done {
		for _, b := range beams {
			hyps.add(b.seq, float64(b.score))
		}
	}

	best := hyps.best()
	n := min(m.NumReturn, len(best))
	out := make([][]int, n)
	for i := range n {
		seq := slices.Clone(best[i].seq)
		if len(seq) < p.MaxLength {
			seq = append(seq, p.Special.EOS)
		}
		out[i] = seq
	}
	return out, nil
}

// advanceBeams extends each picked parent by its token. A parent's decoder
// state is handed to its last child and cloned for the others.
func advanceBeams(beams []beam, picks []beamPick) []beam {
	remaining := make([]int, len(beams))
	for _, pk := range picks {
		remaining[pk.parent]++
	}
	next := make([]beam, 0, len(picks))
	for _, pk := range picks {
		parent := &beams[pk.parent]
		remaining[pk.parent]--
		state := parent.state
		if remaining[pk.parent] > 0 {
			state = state.Clone()
		}
		seq := make([]int, len(parent.seq)+1)
		copy(seq, parent.seq)
		seq[len(parent.seq)] = pk.token
		next = append(next, beam{seq: seq, score: pk.score, state: state})
	}
	return next
}
