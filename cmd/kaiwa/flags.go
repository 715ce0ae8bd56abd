package main

import "github.com/urfave/cli/v3"

const (
	defaultModelPath     = "./model/meena.safetensors"
	defaultConfigPath    = "./configs/base_meena_config.json"
	defaultTokenizerPath = "./tokenizer/jp_spm.model"
	defaultMethod        = "beam_search"
	defaultSeed          = 42
)

var (
	modelPath      string
	modelConfig    string
	tokenizerModel string
	decodingMethod string
	seed           int64
	contextsPath   string
	outputFormat   string
	showTokens     bool
	logLevel       string
	logFormat      string
	debug          bool
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "pretrained-model-path",
			Aliases:     []string{"pretrained_model_path", "m"},
			Usage:       "path to the safetensors checkpoint",
			Value:       defaultModelPath,
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "model-config-path",
			Aliases:     []string{"model_config_path"},
			Usage:       "path to the model config JSON",
			Value:       defaultConfigPath,
			Destination: &modelConfig,
		},
		&cli.StringFlag{
			Name:        "tokenizer-model-path",
			Aliases:     []string{"tokenizer_model_path"},
			Usage:       "path to the SentencePiece model",
			Value:       defaultTokenizerPath,
			Destination: &tokenizerModel,
		},
	}
}

func generationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "decoding-method",
			Aliases:     []string{"decoding_method"},
			Usage:       "decoding method (beam_search, top_p)",
			Value:       defaultMethod,
			Destination: &decodingMethod,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed for top_p sampling",
			Value:       defaultSeed,
			Destination: &seed,
		},
		&cli.StringFlag{
			Name:        "contexts",
			Usage:       "JSON file of dialogue contexts (default: built-in examples)",
			Destination: &contextsPath,
		},
		&cli.StringFlag{
			Name:        "output-format",
			Aliases:     []string{"o"},
			Usage:       "reply output format (text, json)",
			Value:       string(formatText),
			Destination: &outputFormat,
		},
		&cli.BoolFlag{
			Name:        "show-tokens",
			Usage:       "log the encoded context ids and pieces",
			Destination: &showTokens,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
