package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kaiwa/internal/model"
	"github.com/samcharles93/kaiwa/internal/safetensors"
	"github.com/samcharles93/kaiwa/internal/tokenizer"
)

func inspectCmd() *cli.Command {
	var tensorLimit int64

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the model config, tokenizer summary and checkpoint tensors",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "tensor-limit",
				Usage:       "max tensors to list (0 = all)",
				Destination: &tensorLimit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyConfig(cmd, LoadConfig())
			w := cmd.Root().Writer

			cfg, err := model.LoadConfig(modelConfig)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load model config: %v", err), 1)
			}
			printConfig(w, cfg)

			tok, err := tokenizer.LoadSentencePiece(tokenizerModel)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load tokenizer: %v", err), 1)
			}
			printTokenizer(w, tok)

			stat, err := os.Stat(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat model path %q: %v", modelPath, err), 1)
			}
			f, err := safetensors.Open(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open checkpoint: %v", err), 1)
			}
			defer func() { _ = f.Close() }()
			printTensors(w, f, uint64(stat.Size()), int(tensorLimit))
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *model.Config) {
	section(w, "Model Config")
	rowInt(w, "vocab_size", cfg.VocabSize)
	rowInt(w, "hidden_size", cfg.HiddenSize)
	rowInt(w, "num_encoder_layers", cfg.NumEncoderLayers)
	rowInt(w, "num_decoder_layers", cfg.NumDecoderLayers)
	rowInt(w, "num_attention_heads", cfg.NumAttentionHeads)
	rowInt(w, "head_dim", cfg.HeadDim())
	rowInt(w, "intermediate_size", cfg.IntermediateSize)
	rowInt(w, "max_position_embeddings", cfg.MaxPositionEmbeddings)
	row(w, "hidden_act", cfg.HiddenAct)
	row(w, "layer_norm_eps", fmt.Sprintf("%g", cfg.LayerNormEps))
	row(w, "tied_embeddings", fmt.Sprint(cfg.TiedEmbeddings()))
	sp := cfg.Special()
	row(w, "special_ids", fmt.Sprintf("sept=%d bos=%d eos=%d pad=%d", sp.Sept, sp.BOS, sp.EOS, sp.Pad))
}

func printTokenizer(w io.Writer, tok *tokenizer.SentencePiece) {
	section(w, "Tokenizer")
	row(w, "model_type", tok.ModelType().String())
	rowInt(w, "vocab_size", tok.VocabSize())
	ids := []struct {
		label string
		id    int
	}{
		{"unk", tok.UnkID()},
		{"bos", tok.BOSID()},
		{"eos", tok.EOSID()},
		{"pad", tok.PadID()},
	}
	for _, s := range ids {
		if s.id < 0 {
			row(w, s.label, "(disabled)")
			continue
		}
		row(w, s.label, fmt.Sprintf("%d %q", s.id, tok.TokenString(s.id)))
	}
	if id, ok := tok.PieceID("[SEPT]"); ok {
		row(w, "sept", fmt.Sprintf("%d %q", id, "[SEPT]"))
	}
}

func printTensors(w io.Writer, f *safetensors.File, size uint64, limit int) {
	section(w, "Checkpoint")
	row(w, "file", f.Path)
	row(w, "size", formatBytes(size))
	names := f.Names()
	rowInt(w, "tensors", len(names))

	dtypes := map[string]int{}
	for _, name := range names {
		info, _ := f.Tensor(name)
		dtypes[info.DType]++
	}
	for _, dt := range []string{"F32", "F16", "BF16"} {
		if n := dtypes[dt]; n > 0 {
			rowInt(w, "dtype "+dt, n)
		}
	}

	for i, name := range names {
		if limit > 0 && i >= limit {
			_, _ = fmt.Fprintf(w, "... %d more\n", len(names)-limit)
			break
		}
		info, _ := f.Tensor(name)
		_, _ = fmt.Fprintf(w, "%-56s %-5s %s\n", name, info.DType, formatShape(info.Shape))
	}
}

func section(w io.Writer, title string) {
	line := strings.Repeat("-", len(title)+8)
	_, _ = fmt.Fprintf(w, "\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "%-24s %s\n", label+":", value)
}

func rowInt(w io.Writer, label string, v int) {
	if v == 0 {
		return
	}
	row(w, label, fmt.Sprintf("%d", v))
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
