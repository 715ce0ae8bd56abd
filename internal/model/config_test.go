package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyConfigJSON = `{
  "vocab_size": 24,
  "hidden_size": 8,
  "num_encoder_layers": 2,
  "num_decoder_layers": 2,
  "num_attention_heads": 2,
  "intermediate_size": 16,
  "max_position_embeddings": 32,
  "hidden_dropout_prob": 0.1,
  "attention_probs_dropout_prob": 0.1,
  "pad_token_id": 3,
  "bos_token_id": 1,
  "eos_token_id": 2,
  "sept_token_id": 4
}`

func tinyConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(tinyConfigJSON))
	require.NoError(t, err)
	return cfg
}

func TestParseConfigDefaults(t *testing.T) {
	cfg := tinyConfig(t)
	assert.Equal(t, "gelu", cfg.HiddenAct)
	assert.InDelta(t, 1e-5, cfg.LayerNormEps, 1e-12)
	assert.True(t, cfg.TiedEmbeddings())
	assert.Equal(t, 4, cfg.HeadDim())
	assert.Equal(t, SpecialTokens{Sept: 4, BOS: 1, EOS: 2, Pad: 3}, cfg.Special())
}

func TestParseConfigUntied(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"vocab_size":8,"hidden_size":4,"num_encoder_layers":1,
		"num_decoder_layers":1,"num_attention_heads":1,"intermediate_size":4,
		"max_position_embeddings":4,"hidden_act":"relu","tie_word_embeddings":false}`))
	require.NoError(t, err)
	assert.False(t, cfg.TiedEmbeddings())
	assert.Equal(t, "relu", cfg.HiddenAct)
}

func TestParseConfigInvalid(t *testing.T) {
	cases := []struct {
		name  string
		patch string
	}{
		{"malformed", `{"vocab_size":`},
		{"zero vocab", `{"vocab_size":0,"hidden_size":8,"num_encoder_layers":1,"num_decoder_layers":1,"num_attention_heads":2,"intermediate_size":4,"max_position_embeddings":4}`},
		{"heads do not divide", `{"vocab_size":8,"hidden_size":6,"num_encoder_layers":1,"num_decoder_layers":1,"num_attention_heads":4,"intermediate_size":4,"max_position_embeddings":4}`},
		{"unknown activation", `{"vocab_size":8,"hidden_size":4,"num_encoder_layers":1,"num_decoder_layers":1,"num_attention_heads":1,"intermediate_size":4,"max_position_embeddings":4,"hidden_act":"swish"}`},
		{"sept outside vocab", `{"vocab_size":8,"hidden_size":4,"num_encoder_layers":1,"num_decoder_layers":1,"num_attention_heads":1,"intermediate_size":4,"max_position_embeddings":4,"sept_token_id":8}`},
		{"negative pad", `{"vocab_size":8,"hidden_size":4,"num_encoder_layers":1,"num_decoder_layers":1,"num_attention_heads":1,"intermediate_size":4,"max_position_embeddings":4,"pad_token_id":-1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.patch))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "base_meena_config.json")
	require.NoError(t, os.WriteFile(path, []byte(tinyConfigJSON), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.VocabSize)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}
