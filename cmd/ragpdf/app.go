package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"ragpdf/internal/chunker"
	"ragpdf/internal/config"
	"ragpdf/internal/conversation"
	"ragpdf/internal/document"
	"ragpdf/internal/domain"
	"ragpdf/internal/embedding"
	"ragpdf/internal/embedding/tfidf"
	"ragpdf/internal/openai"
	"ragpdf/internal/service"
	"ragpdf/internal/summarizer"
	"ragpdf/internal/tokens"
	"ragpdf/internal/tui"
)

func chatAction(ctx context.Context, cmd *cli.Command) error {
	if err := godotenv.Load(cmd.String("env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)
	logger.Info("starting RAG PDF chatbot")
	logger.Debug("using model", "model", cfg.Completion.Model)

	doc, err := loadDocument(ctx, cfg, logger)
	if err != nil {
		return err
	}

	embedder, closeEmbedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	completer, err := newCompleter(cfg, logger)
	if err != nil {
		return err
	}
	defer completer.Close()

	wc, err := chunker.NewWordChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return err
	}
	logger.Info("chunking text", "size", cfg.Chunker.Size, "overlap", cfg.Chunker.Overlap)

	svc := service.NewRAGService(wc, embedder,
		service.WithBuildOptions(buildOptions(cfg, logger)),
		service.WithSummarizer(summarizer.NewFrequencySummarizer(), cfg.Summarizer.MaxSentences),
		service.WithLogger(logger),
	)
	pipeline, err := svc.Ingest(ctx, doc)
	if err != nil {
		return err
	}

	builder, err := service.NewContextBuilder(pipeline.Index, embedder,
		service.WithQueryCache(cfg.Retrieval.QueryCacheSize),
		service.WithStrictGrounding(cfg.Retrieval.StrictGrounding),
		service.WithContextLogger(logger),
	)
	if err != nil {
		return err
	}

	loop := conversation.NewLoop(builder, completer,
		conversation.WithPreamble(cfg.Conversation.Preamble),
		conversation.WithExitToken(cfg.Conversation.ExitToken),
		conversation.WithRetrieval(cfg.Retrieval.TopK, cfg.Retrieval.TokenBudget),
		conversation.WithTurnTimeout(time.Duration(cfg.Conversation.TurnTimeoutSecs)*time.Second),
		conversation.WithObserver(func(from, to conversation.State) {
			logger.Debug("conversation state", "from", from.String(), "to", to.String())
		}),
		conversation.WithLogger(logger),
	)

	if cfg.Conversation.UI == config.UITUI {
		info := tui.Info{Title: doc.Path, Summary: pipeline.Summary, Chunks: len(pipeline.Chunks), Model: cfg.Completion.Model}
		_, err = tea.NewProgram(tui.New(ctx, loop, info), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return ctx.Err()
		}
		return err
	}

	printBanner(os.Stdout, cfg, doc, pipeline, loop.ExitToken())
	err = loop.Run(ctx, os.Stdin, os.Stdout)
	logger.Info("chatbot session ended")
	return err
}

func loadConfig(cmd *cli.Command) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if path := cmd.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, _, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.IsSet("pdf") {
		cfg.Document = cmd.String("pdf")
	}
	if cmd.IsSet("model") {
		cfg.Completion.Model = cmd.String("model")
	}
	if cmd.IsSet("chunk-size") {
		cfg.Chunker.Size = cmd.Int("chunk-size")
	}
	if cmd.IsSet("chunk-overlap") {
		cfg.Chunker.Overlap = cmd.Int("chunk-overlap")
	}
	if cmd.IsSet("top-k") {
		cfg.Retrieval.TopK = cmd.Int("top-k")
	}
	if cmd.IsSet("embedder") {
		cfg.Embedder.Type = cmd.String("embedder")
	}
	if cmd.Bool("plain") {
		cfg.Conversation.UI = config.UIPlain
	}
	if cmd.Bool("verbose") {
		cfg.Verbose = true
	}
	return cfg, nil
}

// newLogger writes to stderr in line mode. The TUI owns the terminal, so its logs go to
// ragpdf.log when verbose and are discarded otherwise.
func newLogger(cfg *config.AppConfig) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Conversation.UI != config.UITUI {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() {}, nil
	}
	if !cfg.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, opts)), func() {}, nil
	}
	f, err := tea.LogToFile("ragpdf.log", "")
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(f, opts)), func() { f.Close() }, nil
}

func loadDocument(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (domain.Document, error) {
	if cfg.Document == "" {
		logger.Warn("no PDF provided, using default document")
		return document.Default(), nil
	}
	logger.Info("loading document", "path", cfg.Document)
	return document.NewLoader(document.WithLogger(logger)).Load(ctx, cfg.Document)
}

func apiKey(envName string) (string, error) {
	key := os.Getenv(envName)
	if key == "" {
		return "", fmt.Errorf("%w: set %s", openai.ErrAPIKeyNotSet, envName)
	}
	return key, nil
}

func newEmbedder(cfg *config.AppConfig, logger *slog.Logger) (domain.EmbeddingProvider, func(), error) {
	if cfg.Embedder.Type == config.EmbedderTFIDF {
		return tfidf.NewEmbedder(), func() {}, nil
	}
	oc := cfg.Embedder.OpenAI
	key, err := apiKey(oc.APIKeyEnv)
	if err != nil {
		return nil, nil, err
	}
	e, err := openai.NewEmbedder(openai.Config{
		BaseURL: oc.BaseURL,
		APIKey:  key,
		Model:   oc.Model,
		Timeout: time.Duration(oc.TimeoutSecs) * time.Second,
		Retry:   cfg.RetryPolicy(),
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("openai embedder init failed: %w", err)
	}
	return e, func() { e.Close() }, nil
}

func newCompleter(cfg *config.AppConfig, logger *slog.Logger) (*openai.Completer, error) {
	cc := cfg.Completion
	key, err := apiKey(cc.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	opts := []openai.CompleterOption{openai.WithLogger(logger)}
	if cc.Temperature != nil {
		opts = append(opts, openai.WithTemperature(*cc.Temperature))
	}
	if cc.MaxHistoryTokens > 0 {
		opts = append(opts, openai.WithHistoryLimit(cc.MaxHistoryTokens, tokens.ForModel(cc.Model, logger)))
	}
	c, err := openai.NewCompleter(openai.Config{
		BaseURL: cc.BaseURL,
		APIKey:  key,
		Model:   cc.Model,
		Timeout: time.Duration(cc.TimeoutSecs) * time.Second,
		Retry:   cfg.RetryPolicy(),
		Logger:  logger,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("openai completer init failed: %w", err)
	}
	return c, nil
}

func buildOptions(cfg *config.AppConfig, logger *slog.Logger) embedding.BuildOptions {
	oc := cfg.Embedder.OpenAI
	opts := embedding.BuildOptions{BatchSize: oc.BatchSize, Workers: oc.Workers, Logger: logger}
	if oc.RequestsPerSecond > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(oc.RequestsPerSecond), 1)
	}
	return opts
}

func printBanner(w io.Writer, cfg *config.AppConfig, doc domain.Document, p *service.Pipeline, exitToken string) {
	fmt.Fprintln(w, "           Welcome to RAG PDF Chatbot!")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Loaded %d chunks from your document\n", len(p.Chunks))
	fmt.Fprintf(w, "Using model: %s\n", cfg.Completion.Model)
	if doc.Path != document.DefaultPath {
		fmt.Fprintf(w, "Ask me anything about the document %s\n", doc.Path)
	}
	if p.Summary != "" {
		fmt.Fprintf(w, "Overview: %s\n", p.Summary)
	}
	fmt.Fprintf(w, "Type '%s' or press Ctrl+C to quit\n\n", exitToken)
}
