package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kaiwa/internal/dialogue"
	"github.com/samcharles93/kaiwa/internal/inference"
	"github.com/samcharles93/kaiwa/internal/logger"
	"github.com/samcharles93/kaiwa/internal/model"
	"github.com/samcharles93/kaiwa/internal/tokenizer"
)

// runOptions is the resolved input of one reply generation run.
type runOptions struct {
	ModelPath     string
	ConfigPath    string
	TokenizerPath string
	Method        string
	Seed          int64
	ContextsPath  string
	OutputFormat  string
	ShowTokens    bool
}

func currentRunOptions() runOptions {
	return runOptions{
		ModelPath:     modelPath,
		ConfigPath:    modelConfig,
		TokenizerPath: tokenizerModel,
		Method:        decodingMethod,
		Seed:          seed,
		ContextsPath:  contextsPath,
		OutputFormat:  outputFormat,
		ShowTokens:    showTokens,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	applyConfig(cmd, LoadConfig())

	log, err := newLogger(cmd.Root().ErrWriter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	ctx = logger.WithContext(ctx, log)

	if err := generateReplies(ctx, cmd.Root().Writer, currentRunOptions()); err != nil {
		log.Error("generation failed", "error", err)
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return nil
}

func newLogger(w io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return logger.NewWithFormat(w, logger.Format(logFormat), level)
}

// generateReplies loads the tokenizer, config and checkpoint named by opts and
// writes every candidate reply for every context to w. The decoding method is
// checked before anything is loaded, so a bad method writes nothing.
func generateReplies(ctx context.Context, w io.Writer, opts runOptions) error {
	method, err := inference.ParseMethod(opts.Method)
	if err != nil {
		return err
	}
	out, err := newReplyWriter(w, opts.OutputFormat)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log := logger.FromContext(ctx).With("run_id", runID)
	rng := inference.NewRNG(opts.Seed)

	contexts := dialogue.ExampleContexts()
	if opts.ContextsPath != "" {
		if contexts, err = dialogue.LoadContexts(opts.ContextsPath); err != nil {
			return fmt.Errorf("load contexts: %w", err)
		}
	}

	tok, err := tokenizer.LoadSentencePiece(opts.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}
	cfg, err := model.LoadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load model config: %w", err)
	}
	if tok.VocabSize() != cfg.VocabSize {
		log.Warn("tokenizer and model vocabulary sizes differ",
			"tokenizer", tok.VocabSize(), "model", cfg.VocabSize)
	}
	m, err := model.LoadCheckpoint(opts.ModelPath, cfg)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	log.Info("model loaded",
		"path", opts.ModelPath,
		"layers", fmt.Sprintf("%d+%d", cfg.NumEncoderLayers, cfg.NumDecoderLayers),
		"hidden", cfg.HiddenSize,
		"vocab", cfg.VocabSize,
		"method", method.Name(),
		"seed", opts.Seed,
	)

	special := cfg.Special()
	disp := inference.NewDispatcher(inference.NewSearch(m, rng), special)

	for i, c := range contexts {
		ids, err := dialogue.EncodeContext(tok, special, c)
		if err != nil {
			return fmt.Errorf("context %d: %w", i, err)
		}
		if opts.ShowTokens {
			log.Info("context tokens", "context", i, "ids", ids, "pieces", pieces(tok, ids))
		}

		res, err := disp.Generate(ctx, ids, method)
		if err != nil {
			return fmt.Errorf("context %d: %w", i, err)
		}
		log.Debug("generated",
			"context", i,
			"candidates", len(res.Sequences),
			"tokens", res.Stats.TokensGenerated,
			"duration", res.Stats.Duration,
			"tok_per_s", fmt.Sprintf("%.1f", res.Stats.TPS),
		)

		joined := dialogue.JoinContext(c)
		for rank, seq := range res.Sequences {
			text, err := tok.Decode(seq)
			if err != nil {
				return fmt.Errorf("context %d candidate %d: %w", i, rank, err)
			}
			if err := out.WriteReply(reply{
				RunID:   runID,
				Context: joined,
				Reply:   text,
				Rank:    rank,
				Method:  method.Name(),
			}); err != nil {
				return fmt.Errorf("write reply: %w", err)
			}
		}
	}
	return nil
}

func pieces(tok *tokenizer.SentencePiece, ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = tok.TokenString(id)
	}
	return out
}
