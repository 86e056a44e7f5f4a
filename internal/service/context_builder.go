package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"ragpdf/internal/domain"
	"ragpdf/internal/vectorstore"
)

// Retrieval is the grounding context for one query.
type Retrieval struct {
	Text string
	// Results are the chunks included in Text, in rank order.
	Results []domain.SearchResult
}

// ContextBuilder turns a query into a ranked, size-bounded context string.
type ContextBuilder struct {
	index    vectorstore.Searcher
	embedder domain.EmbeddingProvider
	cache    *lru.Cache[string, []float64]
	strict   bool
	logger   *slog.Logger
}

// ContextOption configures a ContextBuilder.
type ContextOption func(*ContextBuilder) error

// WithQueryCache memoises query embeddings for the given number of distinct queries.
// A size of zero disables the cache.
func WithQueryCache(size int) ContextOption {
	return func(b *ContextBuilder) error {
		if size <= 0 {
			b.cache = nil
			return nil
		}
		cache, err := lru.New[string, []float64](size)
		if err != nil {
			return fmt.Errorf("create query cache: %w", err)
		}
		b.cache = cache
		return nil
	}
}

// WithStrictGrounding makes query embedding failures, including a query vector of the wrong
// dimension, fail the turn instead of answering without context.
func WithStrictGrounding(strict bool) ContextOption {
	return func(b *ContextBuilder) error {
		b.strict = strict
		return nil
	}
}

// WithContextLogger sets the logger.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(b *ContextBuilder) error {
		b.logger = logger
		return nil
	}
}

func NewContextBuilder(index vectorstore.Searcher, embedder domain.EmbeddingProvider, opts ...ContextOption) (*ContextBuilder, error) {
	b := &ContextBuilder{index: index, embedder: embedder, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// BuildContext retrieves the top k chunks for query and joins them with blank lines. A chunk
// that would push the word count past budget is dropped together with every lower ranked
// chunk; chunks are never split. A budget of zero or less is unbounded. An empty index yields
// an empty context without calling the embedder.
func (b *ContextBuilder) BuildContext(ctx context.Context, query string, k, budget int) (Retrieval, error) {
	if b.index.Len() == 0 {
		return Retrieval{}, nil
	}

	vector, err := b.embedQuery(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Retrieval{}, ctxErr
		}
		if b.strict {
			return Retrieval{}, fmt.Errorf("embed query: %w", err)
		}
		b.logger.Warn("query embedding failed, answering without context", "error", err)
		return Retrieval{}, nil
	}

	results, err := b.index.Query(vector, k)
	if err != nil {
		var dimErr *domain.DimensionMismatchError
		if errors.As(err, &dimErr) && !b.strict {
			b.logger.Warn("query vector does not match the index, answering without context", "error", err)
			return Retrieval{}, nil
		}
		return Retrieval{}, fmt.Errorf("query index: %w", err)
	}

	var (
		sb    strings.Builder
		words int
		kept  []domain.SearchResult
	)
	for _, r := range results {
		n := len(strings.Fields(r.Chunk.Text))
		if budget > 0 && words+n > budget {
			b.logger.Debug("context budget reached", "budget", budget, "kept", len(kept), "dropped", len(results)-len(kept))
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(r.Chunk.Text)
		words += n
		kept = append(kept, r)
	}
	return Retrieval{Text: sb.String(), Results: kept}, nil
}

func (b *ContextBuilder) embedQuery(ctx context.Context, query string) ([]float64, error) {
	if b.cache != nil {
		if v, ok := b.cache.Get(query); ok {
			return v, nil
		}
	}
	v, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if b.cache != nil {
		b.cache.Add(query, v)
	}
	return v, nil
}
