package model

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// ErrInvalidConfig is returned when the model configuration file is missing,
// malformed or describes an impossible model.
var ErrInvalidConfig = errors.New("model: invalid config")

// SpecialTokens are the structural token ids shared by the tokenizer, the
// context encoder and generation.
type SpecialTokens struct {
	Sept int
	BOS  int
	EOS  int
	Pad  int
}

// Config is the Meena model configuration as stored in the JSON config file.
// Dropout probabilities are accepted so training configs load unchanged, but
// inference ignores them.
type Config struct {
	VocabSize             int     `json:"vocab_size"`
	HiddenSize            int     `json:"hidden_size"`
	NumEncoderLayers      int     `json:"num_encoder_layers"`
	NumDecoderLayers      int     `json:"num_decoder_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	IntermediateSize      int     `json:"intermediate_size"`
	HiddenAct             string  `json:"hidden_act"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	LayerNormEps          float64 `json:"layer_norm_eps"`
	TieWordEmbeddings     *bool   `json:"tie_word_embeddings,omitempty"`

	HiddenDropoutProb         float64 `json:"hidden_dropout_prob,omitempty"`
	AttentionProbsDropoutProb float64 `json:"attention_probs_dropout_prob,omitempty"`

	PadTokenID  int `json:"pad_token_id"`
	BOSTokenID  int `json:"bos_token_id"`
	EOSTokenID  int `json:"eos_token_id"`
	SeptTokenID int `json:"sept_token_id"`
}

// LoadConfig reads and validates a JSON model configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates configuration bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	if cfg.LayerNormEps == 0 {
		cfg.LayerNormEps = 1e-5
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks sizes and special token ids.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"vocab_size", c.VocabSize},
		{"hidden_size", c.HiddenSize},
		{"num_encoder_layers", c.NumEncoderLayers},
		{"num_decoder_layers", c.NumDecoderLayers},
		{"num_attention_heads", c.NumAttentionHeads},
		{"intermediate_size", c.IntermediateSize},
		{"max_position_embeddings", c.MaxPositionEmbeddings},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.v)
		}
	}
	if c.HiddenSize%c.NumAttentionHeads != 0 {
		return fmt.Errorf("%w: hidden_size %d not divisible by num_attention_heads %d",
			ErrInvalidConfig, c.HiddenSize, c.NumAttentionHeads)
	}
	switch strings.ToLower(c.HiddenAct) {
	case "gelu", "relu":
	default:
		return fmt.Errorf("%w: unsupported hidden_act %q", ErrInvalidConfig, c.HiddenAct)
	}
	ids := []struct {
		name string
		v    int
	}{
		{"pad_token_id", c.PadTokenID},
		{"bos_token_id", c.BOSTokenID},
		{"eos_token_id", c.EOSTokenID},
		{"sept_token_id", c.SeptTokenID},
	}
	for _, id := range ids {
		if id.v < 0 || id.v >= c.VocabSize {
			return fmt.Errorf("%w: %s %d outside vocabulary of %d", ErrInvalidConfig, id.name, id.v, c.VocabSize)
		}
	}
	return nil
}

// Special returns the special token ids.
func (c *Config) Special() SpecialTokens {
	return SpecialTokens{
		Sept: c.SeptTokenID,
		BOS:  c.BOSTokenID,
		EOS:  c.EOSTokenID,
		Pad:  c.PadTokenID,
	}
}

// HeadDim is the per-head attention width.
func (c *Config) HeadDim() int {
	return c.HiddenSize / c.NumAttentionHeads
}

// TiedEmbeddings reports whether the output projection reuses the shared
// token embedding. Defaults to true.
func (c *Config) TiedEmbeddings() bool {
	return c.TieWordEmbeddings == nil || *c.TieWordEmbeddings
}
