package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:    "ragpdf",
		Usage:   "PDF RAG chatbot using OpenAI",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "pdf",
				Aliases: []string{"p"},
				Usage:   "path to the PDF (or text) document to load",
			},
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "chat model to use",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "chunk size in words",
			},
			&cli.IntFlag{
				Name:  "chunk-overlap",
				Usage: "overlap between chunks in words",
			},
			&cli.IntFlag{
				Name:  "top-k",
				Usage: "number of chunks retrieved per question",
			},
			&cli.StringFlag{
				Name:  "embedder",
				Usage: "embedding backend: openai or tfidf",
			},
			&cli.BoolFlag{
				Name:  "plain",
				Usage: "use the line-mode interface instead of the TUI",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "verbose output",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to YAML config file (default ./config.yaml or ~/.config/ragpdf/config.yaml)",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: ".env",
			},
		},
		Action: chatAction,
	}

	if err := app.Run(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "ragpdf: %s\n", err)
		os.Exit(1)
	}
}
