package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/kaiwa/internal/version"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "kaiwa",
		Usage:   "Generate Japanese dialogue replies with a Meena model",
		Version: version.String(),
		Flags:   slices.Concat(modelFlags(), generationFlags(), loggingFlags()),
		Action:  runAction,
		Commands: []*cli.Command{
			inspectCmd(),
			versionCmd(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
