package model

import (
	"fmt"
	"strings"

	"github.com/samcharles93/kaiwa/internal/tensor"
)

type layerNorm struct {
	Weight []float32
	Bias   []float32
}

type attention struct {
	Q, K, V, O tensor.Mat

	QBias, KBias, VBias, OBias []float32
}

type feedForward struct {
	FC1     tensor.Mat
	FC1Bias []float32
	FC2     tensor.Mat
	FC2Bias []float32
}

type encoderLayer struct {
	SelfAttn     attention
	SelfAttnNorm layerNorm
	FFN          feedForward
	FinalNorm    layerNorm
}

type decoderLayer struct {
	SelfAttn      attention
	SelfAttnNorm  layerNorm
	CrossAttn     attention
	CrossAttnNorm layerNorm
	FFN           feedForward
	FinalNorm     layerNorm
}

// Meena is a pre-norm transformer encoder/decoder with learned positional
// embeddings and a token embedding shared between encoder, decoder and (by
// default) the output projection.
type Meena struct {
	Config *Config

	Shared       tensor.Mat // [vocab x hidden]
	EncPositions tensor.Mat // [maxPos x hidden]
	DecPositions tensor.Mat // [maxPos x hidden]
	Encoder      []encoderLayer
	Decoder      []decoderLayer
	EncoderNorm  layerNorm
	DecoderNorm  layerNorm
	LMHead       tensor.Mat // aliases Shared when embeddings are tied

	act func(float32) float32
}

var _ Seq2Seq = (*Meena)(nil)

// newMeena allocates a zero-weight model shaped by cfg. Layer norms start as
// the identity transform.
func newMeena(cfg *Config) *Meena {
	d := cfg.HiddenSize
	ff := cfg.IntermediateSize
	m := &Meena{
		Config:       cfg,
		Shared:       tensor.NewMat(cfg.VocabSize, d),
		EncPositions: tensor.NewMat(cfg.MaxPositionEmbeddings, d),
		DecPositions: tensor.NewMat(cfg.MaxPositionEmbeddings, d),
		Encoder:      make([]encoderLayer, cfg.NumEncoderLayers),
		Decoder:      make([]decoderLayer, cfg.NumDecoderLayers),
		EncoderNorm:  newLayerNorm(d),
		DecoderNorm:  newLayerNorm(d),
	}
	for i := range m.Encoder {
		m.Encoder[i] = encoderLayer{
			SelfAttn:     newAttention(d),
			SelfAttnNorm: newLayerNorm(d),
			FFN:          newFeedForward(d, ff),
			FinalNorm:    newLayerNorm(d),
		}
	}
	for i := range m.Decoder {
		m.Decoder[i] = decoderLayer{
			SelfAttn:      newAttention(d),
			SelfAttnNorm:  newLayerNorm(d),
			CrossAttn:     newAttention(d),
			CrossAttnNorm: newLayerNorm(d),
			FFN:           newFeedForward(d, ff),
			FinalNorm:     newLayerNorm(d),
		}
	}
	if cfg.TiedEmbeddings() {
		m.LMHead = m.Shared
	} else {
		m.LMHead = tensor.NewMat(cfg.VocabSize, d)
	}
	if strings.EqualFold(cfg.HiddenAct, "relu") {
		m.act = tensor.ReLU
	} else {
		m.act = tensor.GELU
	}
	return m
}

func newLayerNorm(d int) layerNorm {
	ln := layerNorm{Weight: make([]float32, d), Bias: make([]float32, d)}
	for i := range ln.Weight {
		ln.Weight[i] = 1
	}
	return ln
}

func newAttention(d int) attention {
	return attention{
		Q: tensor.NewMat(d, d), K: tensor.NewMat(d, d),
		V: tensor.NewMat(d, d), O: tensor.NewMat(d, d),
		QBias: make([]float32, d), KBias: make([]float32, d),
		VBias: make([]float32, d), OBias: make([]float32, d),
	}
}

func newFeedForward(d, ff int) feedForward {
	return feedForward{
		FC1:     tensor.NewMat(ff, d),
		FC1Bias: make([]float32, ff),
		FC2:     tensor.NewMat(d, ff),
		FC2Bias: make([]float32, d),
	}
}

// VocabSize returns the size of the output distribution.
func (m *Meena) VocabSize() int { return m.Config.VocabSize }

// param binds a checkpoint tensor name to the slice it populates.
type param struct {
	name  string
	shape []int
	data  []float32
	norm  bool
}

func matParam(name string, mat *tensor.Mat) param {
	return param{name: name, shape: []int{mat.R, mat.C}, data: mat.Data}
}

func vecParam(name string, v []float32) param {
	return param{name: name, shape: []int{len(v)}, data: v}
}

func (ln *layerNorm) params(prefix string) []param {
	w := vecParam(prefix+".weight", ln.Weight)
	w.norm = true
	return []param{w, vecParam(prefix+".bias", ln.Bias)}
}

func (a *attention) params(prefix string) []param {
	return []param{
		matParam(prefix+".q_proj.weight", &a.Q), vecParam(prefix+".q_proj.bias", a.QBias),
		matParam(prefix+".k_proj.weight", &a.K), vecParam(prefix+".k_proj.bias", a.KBias),
		matParam(prefix+".v_proj.weight", &a.V), vecParam(prefix+".v_proj.bias", a.VBias),
		matParam(prefix+".out_proj.weight", &a.O), vecParam(prefix+".out_proj.bias", a.OBias),
	}
}

func (f *feedForward) params(prefix string) []param {
	return []param{
		matParam(prefix+".fc1.weight", &f.FC1), vecParam(prefix+".fc1.bias", f.FC1Bias),
		matParam(prefix+".fc2.weight", &f.FC2), vecParam(prefix+".fc2.bias", f.FC2Bias),
	}
}

// params lists every checkpoint tensor in a stable order.
func (m *Meena) params() []param {
	ps := []param{
		matParam("shared.weight", &m.Shared),
		matParam("encoder.embed_positions.weight", &m.EncPositions),
		matParam("decoder.embed_positions.weight", &m.DecPositions),
	}
	for i := range m.Encoder {
		l := &m.Encoder[i]
		prefix := fmt.Sprintf("encoder.layers.%d", i)
		ps = append(ps, l.SelfAttn.params(prefix+".self_attn")...)
		ps = append(ps, l.SelfAttnNorm.params(prefix+".self_attn_layer_norm")...)
		ps = append(ps, l.FFN.params(prefix)...)
		ps = append(ps, l.FinalNorm.params(prefix+".final_layer_norm")...)
	}
	ps = append(ps, m.EncoderNorm.params("encoder.layer_norm")...)
	for i := range m.Decoder {
		l := &m.Decoder[i]
		prefix := fmt.Sprintf("decoder.layers.%d", i)
		ps = append(ps, l.SelfAttn.params(prefix+".self_attn")...)
		ps = append(ps, l.SelfAttnNorm.params(prefix+".self_attn_layer_norm")...)
		ps = append(ps, l.CrossAttn.params(prefix+".encoder_attn")...)
		ps = append(ps, l.CrossAttnNorm.params(prefix+".encoder_attn_layer_norm")...)
		ps = append(ps, l.FFN.params(prefix)...)
		ps = append(ps, l.FinalNorm.params(prefix+".final_layer_norm")...)
	}
	ps = append(ps, m.DecoderNorm.params("decoder.layer_norm")...)
	if !m.Config.TiedEmbeddings() {
		ps = append(ps, matParam("lm_head.weight", &m.LMHead))
	}
	return ps
}
