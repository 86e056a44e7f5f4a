package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ragpdf/internal/domain"
	"ragpdf/internal/embedding"
	"ragpdf/internal/vectorstore/memory"
)

// Pipeline is the state built once at startup and shared read-only by every turn.
type Pipeline struct {
	Document domain.Document
	Chunks   []domain.Chunk
	Index    *memory.Index
	// Summary is a short extractive overview of the document.
	Summary string
}

// RAGService turns a document into a queryable Pipeline.
type RAGService struct {
	chunker             domain.Chunker
	embedder            domain.EmbeddingProvider
	summarizer          domain.Summarizer
	summaryMaxSentences int
	buildOpts           embedding.BuildOptions
	logger              *slog.Logger
}

// Option configures a RAGService.
type Option func(*RAGService)

// WithBuildOptions tunes concurrent embedding during ingestion.
func WithBuildOptions(opts embedding.BuildOptions) Option {
	return func(s *RAGService) { s.buildOpts = opts }
}

// WithSummarizer enables the document overview.
func WithSummarizer(summarizer domain.Summarizer, maxSentences int) Option {
	return func(s *RAGService) {
		s.summarizer = summarizer
		s.summaryMaxSentences = maxSentences
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *RAGService) { s.logger = logger }
}

func NewRAGService(chunker domain.Chunker, embedder domain.EmbeddingProvider, opts ...Option) *RAGService {
	s := &RAGService{chunker: chunker, embedder: embedder, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.buildOpts.Logger == nil {
		s.buildOpts.Logger = s.logger
	}
	return s
}

// Ingest chunks the document, embeds every chunk and builds the index. A document without
// words, or one the embedder finds nothing to index in, yields an empty index; retrieval then
// returns no context.
func (s *RAGService) Ingest(ctx context.Context, doc domain.Document) (*Pipeline, error) {
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}
	s.logger.Info("chunked document", "path", doc.Path, "chunks", len(chunks))
	if len(chunks) == 0 {
		s.logger.Warn("document produced no chunks, answers will not be grounded", "path", doc.Path)
	} else {
		s.logger.Debug("first chunk preview", "text", preview(chunks[0].Text, 100))
	}

	embeddings, err := embedding.BuildEmbeddings(ctx, chunks, s.embedder, s.buildOpts)
	indexed := chunks
	switch {
	case errors.Is(err, domain.ErrNoIndexableContent):
		s.logger.Warn("document has no indexable terms, answers will not be grounded", "path", doc.Path, "error", err)
		indexed, embeddings = nil, nil
	case err != nil:
		return nil, fmt.Errorf("build embeddings: %w", err)
	}
	index, err := memory.Build(indexed, embeddings)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	p := &Pipeline{Document: doc, Chunks: chunks, Index: index}
	if s.summarizer != nil && len(chunks) > 0 {
		summary, err := s.summarizer.Summarize(doc.Content, s.summaryMaxSentences)
		if err != nil {
			s.logger.Warn("summarize document", "error", err)
		}
		p.Summary = summary
	}
	return p, nil
}

func preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
