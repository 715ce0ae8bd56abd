package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the kaiwa configuration file (~/.config/kaiwa/config.yaml).
// Seed is a pointer so an explicit 0 can be told apart from unset.
type Config struct {
	PretrainedModelPath string `yaml:"pretrained_model_path"`
	ModelConfigPath     string `yaml:"model_config_path"`
	TokenizerModelPath  string `yaml:"tokenizer_model_path"`
	DecodingMethod      string `yaml:"decoding_method"`
	Seed                *int64 `yaml:"seed"`
	Contexts            string `yaml:"contexts"`

	// Output
	OutputFormat string `yaml:"output_format"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "kaiwa", "config.yaml")
}

// applyConfig copies config file values into the flag variables whose flags
// were not set on the command line.
func applyConfig(c *cli.Command, cfg Config) {
	strs := []struct {
		flag string
		val  string
		dst  *string
	}{
		{"pretrained-model-path", cfg.PretrainedModelPath, &modelPath},
		{"model-config-path", cfg.ModelConfigPath, &modelConfig},
		{"tokenizer-model-path", cfg.TokenizerModelPath, &tokenizerModel},
		{"decoding-method", cfg.DecodingMethod, &decodingMethod},
		{"contexts", cfg.Contexts, &contextsPath},
		{"output-format", cfg.OutputFormat, &outputFormat},
		{"log-level", cfg.LogLevel, &logLevel},
		{"log-format", cfg.LogFormat, &logFormat},
	}
	for _, s := range strs {
		if s.val != "" && !c.IsSet(s.flag) {
			*s.dst = s.val
		}
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
