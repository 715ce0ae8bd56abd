package model

import (
	"context"
	"fmt"
	"math"

	"github.com/samcharles93/kaiwa/internal/tensor"
)

// memory is the encoded input, projected once into cross-attention keys and
// values for every decoder layer. It is read-only and shared by all clones of
// a decoder state.
type memory struct {
	n      int
	crossK [][]float32 // per decoder layer, [n x hidden]
	crossV [][]float32
}

// StartDecoder encodes inputIDs and returns a decoder with an empty prefix.
// Inputs longer than max_position_embeddings keep their most recent tokens.
func (m *Meena) StartDecoder(ctx context.Context, inputIDs []int) (DecoderState, error) {
	mem, err := m.encode(ctx, inputIDs)
	if err != nil {
		return nil, err
	}
	d := m.Config.HiddenSize
	st := &decoderState{
		m:     m,
		mem:   mem,
		selfK: make([][]float32, len(m.Decoder)),
		selfV: make([][]float32, len(m.Decoder)),
	}
	for i := range st.selfK {
		st.selfK[i] = make([]float32, 0, 16*d)
		st.selfV[i] = make([]float32, 0, 16*d)
	}
	return st, nil
}

func (m *Meena) encode(ctx context.Context, ids []int) (*memory, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("encode: empty input")
	}
	if maxPos := m.Config.MaxPositionEmbeddings; len(ids) > maxPos {
		ids = ids[len(ids)-maxPos:]
	}
	cfg := m.Config
	d := cfg.HiddenSize
	n := len(ids)
	eps := float32(cfg.LayerNormEps)

	x := make([]float32, n*d)
	for i, id := range ids {
		if id < 0 || id >= cfg.VocabSize {
			return nil, fmt.Errorf("encode: token id %d out of range", id)
		}
		row := x[i*d : (i+1)*d]
		copy(row, m.Shared.Row(id))
		tensor.Add(row, m.EncPositions.Row(i))
	}

	h := make([]float32, d)
	q := make([]float32, n*d)
	k := make([]float32, n*d)
	v := make([]float32, n*d)
	attnOut := make([]float32, d)
	proj := make([]float32, d)
	hidden := make([]float32, cfg.IntermediateSize)
	scores := make([]float32, n)

	for li := range m.Encoder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l := &m.Encoder[li]
		for i := 0; i < n; i++ {
			tensor.LayerNorm(h, x[i*d:(i+1)*d], l.SelfAttnNorm.Weight, l.SelfAttnNorm.Bias, eps)
			tensor.Linear(q[i*d:(i+1)*d], &l.SelfAttn.Q, l.SelfAttn.QBias, h)
			tensor.Linear(k[i*d:(i+1)*d], &l.SelfAttn.K, l.SelfAttn.KBias, h)
			tensor.Linear(v[i*d:(i+1)*d], &l.SelfAttn.V, l.SelfAttn.VBias, h)
		}
		for i := 0; i < n; i++ {
			attend(attnOut, q[i*d:(i+1)*d], k, v, n, cfg.NumAttentionHeads, scores)
			tensor.Linear(proj, &l.SelfAttn.O, l.SelfAttn.OBias, attnOut)
			tensor.Add(x[i*d:(i+1)*d], proj)
		}
		for i := 0; i < n; i++ {
			row := x[i*d : (i+1)*d]
			tensor.LayerNorm(h, row, l.FinalNorm.Weight, l.FinalNorm.Bias, eps)
			m.feedForward(proj, &l.FFN, h, hidden)
			tensor.Add(row, proj)
		}
	}
	for i := 0; i < n; i++ {
		row := x[i*d : (i+1)*d]
		tensor.LayerNorm(row, row, m.EncoderNorm.Weight, m.EncoderNorm.Bias, eps)
	}

	mem := &memory{
		n:      n,
		crossK: make([][]float32, len(m.Decoder)),
		crossV: make([][]float32, len(m.Decoder)),
	}
	for li := range m.Decoder {
		l := &m.Decoder[li]
		ck := make([]float32, n*d)
		cv := make([]float32, n*d)
		for i := 0; i < n; i++ {
			row := x[i*d : (i+1)*d]
			tensor.Linear(ck[i*d:(i+1)*d], &l.CrossAttn.K, l.CrossAttn.KBias, row)
			tensor.Linear(cv[i*d:(i+1)*d], &l.CrossAttn.V, l.CrossAttn.VBias, row)
		}
		mem.crossK[li] = ck
		mem.crossV[li] = cv
	}
	return mem, nil
}

func (m *Meena) feedForward(dst []float32, f *feedForward, x, hidden []float32) {
	tensor.Linear(hidden, &f.FC1, f.FC1Bias, x)
	for i, v := range hidden {
		hidden[i] = m.act(v)
	}
	tensor.Linear(dst, &f.FC2, f.FC2Bias, hidden)
}

// attend computes multi-head scaled dot-product attention of one query over n
// keys/values laid out as [n x nHead*headDim]. scores must hold n values.
func attend(out, q, keys, values []float32, n, nHead int, scores []float32) {
	d := len(q)
	headDim := d / nHead
	scale := float32(1.0 / math.Sqrt(float64(headDim)))
	scores = scores[:n]
	for h := 0; h < nHead; h++ {
		off := h * headDim
		qh := q[off : off+headDim]
		for j := 0; j < n; j++ {
			scores[j] = tensor.Dot(qh, keys[j*d+off:j*d+off+headDim]) * scale
		}
		tensor.Softmax(scores)
		oh := out[off : off+headDim]
		for i := range oh {
			oh[i] = 0
		}
		for j := 0; j < n; j++ {
			w := scores[j]
			vh := values[j*d+off : j*d+off+headDim]
			for i := range oh {
				oh[i] += w * vh[i]
			}
		}
	}
}

// decoderState holds the self-attention cache for one decoded prefix.
type decoderState struct {
	m     *Meena
	mem   *memory
	pos   int
	selfK [][]float32 // per layer, [pos x hidden]
	selfV [][]float32
}

func (s *decoderState) Next(ctx context.Context, token int) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := s.m
	cfg := m.Config
	if token < 0 || token >= cfg.VocabSize {
		return nil, fmt.Errorf("decode: token id %d out of range", token)
	}
	if s.pos >= cfg.MaxPositionEmbeddings {
		return nil, fmt.Errorf("decode: position %d exceeds max_position_embeddings %d", s.pos, cfg.MaxPositionEmbeddings)
	}
	d := cfg.HiddenSize
	eps := float32(cfg.LayerNormEps)

	x := make([]float32, d)
	copy(x, m.Shared.Row(token))
	tensor.Add(x, m.DecPositions.Row(s.pos))

	h := make([]float32, d)
	q := make([]float32, d)
	kv := make([]float32, d)
	attnOut := make([]float32, d)
	proj := make([]float32, d)
	hidden := make([]float32, cfg.IntermediateSize)
	scores := make([]float32, max(s.pos+1, s.mem.n))

	for li := range m.Decoder {
		l := &m.Decoder[li]

		tensor.LayerNorm(h, x, l.SelfAttnNorm.Weight, l.SelfAttnNorm.Bias, eps)
		tensor.Linear(q, &l.SelfAttn.Q, l.SelfAttn.QBias, h)
		tensor.Linear(kv, &l.SelfAttn.K, l.SelfAttn.KBias, h)
		s.selfK[li] = append(s.selfK[li], kv...)
		tensor.Linear(kv, &l.SelfAttn.V, l.SelfAttn.VBias, h)
		s.selfV[li] = append(s.selfV[li], kv...)
		attend(attnOut, q, s.selfK[li], s.selfV[li], s.pos+1, cfg.NumAttentionHeads, scores)
		tensor.Linear(proj, &l.SelfAttn.O, l.SelfAttn.OBias, attnOut)
		tensor.Add(x, proj)

		tensor.LayerNorm(h, x, l.CrossAttnNorm.Weight, l.CrossAttnNorm.Bias, eps)
		tensor.Linear(q, &l.CrossAttn.Q, l.CrossAttn.QBias, h)
		attend(attnOut, q, s.mem.crossK[li], s.mem.crossV[li], s.mem.n, cfg.NumAttentionHeads, scores)
		tensor.Linear(proj, &l.CrossAttn.O, l.CrossAttn.OBias, attnOut)
		tensor.Add(x, proj)

		tensor.LayerNorm(h, x, l.FinalNorm.Weight, l.FinalNorm.Bias, eps)
		m.feedForward(proj, &l.FFN, h, hidden)
		tensor.Add(x, proj)
	}
	tensor.LayerNorm(x, x, m.DecoderNorm.Weight, m.DecoderNorm.Bias, eps)

	logits := make([]float32, cfg.VocabSize)
	tensor.MatVec(logits, &m.LMHead, x)
	s.pos++
	return logits, nil
}

func (s *decoderState) Clone() DecoderState {
	c := &decoderState{
		m:     s.m,
		mem:   s.mem,
		pos:   s.pos,
		selfK: make([][]float32, len(s.selfK)),
		selfV: make([][]float32, len(s.selfV)),
	}
	for i := range s.selfK {
		c.selfK[i] = append(make([]float32, 0, cap(s.selfK[i])), s.selfK[i]...)
		c.selfV[i] = append(make([]float32, 0, cap(s.selfV[i])), s.selfV[i]...)
	}
	return c
}
