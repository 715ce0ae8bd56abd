package model

import (
	"errors"
	"fmt"
	"slices"

	"github.com/samcharles93/kaiwa/internal/safetensors"
	"github.com/samcharles93/kaiwa/internal/tensor"
)

// ErrMissingTensor is returned when a checkpoint lacks a tensor the
// configuration requires, or holds it with the wrong shape.
var ErrMissingTensor = errors.New("model: missing tensor")

type tensorSource interface {
	ReadTensorF32(name string) ([]float32, []int, error)
	HasTensor(name string) bool
}

type safetensorsSource struct {
	f *safetensors.File
}

func (s safetensorsSource) ReadTensorF32(name string) ([]float32, []int, error) {
	data, info, err := s.f.ReadTensorF32(name)
	if err != nil {
		return nil, nil, err
	}
	return data, info.Shape, nil
}

func (s safetensorsSource) HasTensor(name string) bool {
	_, ok := s.f.Tensor(name)
	return ok
}

// LoadCheckpoint reads Meena weights from a safetensors checkpoint. An
// lm_head.weight tensor unties the output projection even when the config
// leaves tie_word_embeddings unset.
func LoadCheckpoint(path string, cfg *Config) (*Meena, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	m, err := loadFromSource(cfg, safetensorsSource{f: f})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func loadFromSource(cfg *Config, src tensorSource) (*Meena, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TieWordEmbeddings == nil && src.HasTensor("lm_head.weight") {
		c := *cfg
		untied := false
		c.TieWordEmbeddings = &untied
		cfg = &c
	}
	m := newMeena(cfg)
	for _, p := range m.params() {
		if err := loadParam(src, p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func loadParam(src tensorSource, p param) error {
	if !src.HasTensor(p.name) {
		return fmt.Errorf("%w: %s", ErrMissingTensor, p.name)
	}
	data, shape, err := src.ReadTensorF32(p.name)
	if err != nil {
		return fmt.Errorf("load %s: %w", p.name, err)
	}
	if !slices.Equal(shape, p.shape) {
		return fmt.Errorf("%w: %s has shape %v, want %v", ErrMissingTensor, p.name, shape, p.shape)
	}
	copy(p.data, data)
	return nil
}

// SaveCheckpoint writes the weights of m as an F32 safetensors file that
// LoadCheckpoint accepts.
func SaveCheckpoint(path string, m *Meena) error {
	tensors := make(map[string]safetensors.F32Tensor)
	for _, p := range m.params() {
		tensors[p.name] = safetensors.F32Tensor{Shape: p.shape, Data: p.data}
	}
	return safetensors.WriteF32(path, tensors)
}

// NewRandom builds a model with small deterministic random weights.
func NewRandom(cfg *Config, seed int64) (*Meena, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := newMeena(cfg)
	for i, p := range m.params() {
		if p.norm || len(p.shape) != 2 {
			continue
		}
		mat := tensor.NewMatFromData(p.shape[0], p.shape[1], p.data)
		tensor.FillRand(&mat, seed+int64(i))
	}
	return m, nil
}
