package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ragpdf/internal/domain"
)

const (
	DefaultBatchSize = 32
	DefaultWorkers   = 4
)

// BuildOptions tunes index construction. Zero values select the defaults.
type BuildOptions struct {
	BatchSize int
	Workers   int
	// Limiter throttles provider calls; nil means unlimited.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// BuildEmbeddings embeds every chunk and returns one Embedding per chunk, index-aligned with the
// input. Batches run concurrently, but each batch writes only its own slots of the result.
func BuildEmbeddings(ctx context.Context, chunks []domain.Chunk, provider domain.EmbeddingProvider, opts BuildOptions) ([]domain.Embedding, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if p, ok := provider.(domain.Preparer); ok {
		corpus := make([]string, len(chunks))
		for i, c := range chunks {
			corpus[i] = c.Text
		}
		if err := p.Prepare(corpus); err != nil {
			return nil, fmt.Errorf("prepare embedder: %w", err)
		}
	}

	vectors := make([][]float64, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		g.Go(func() error {
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(gctx); err != nil {
					return err
				}
			}
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text
			}
			out, err := provider.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(out) != len(texts) {
				return domain.NewFatalError("embed batch",
					fmt.Errorf("provider returned %d vectors for %d chunks starting at %d", len(out), len(texts), start))
			}
			copy(vectors[start:end], out)
			logger.Debug("embedded batch", "from", start, "to", end-1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dimension := len(vectors[0])
	embeddings := make([]domain.Embedding, len(chunks))
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, domain.NewFatalError("embed batch", fmt.Errorf("empty vector for chunk %d", chunks[i].Index))
		}
		if len(v) != dimension {
			return nil, &domain.DimensionMismatchError{ChunkIndex: chunks[i].Index, Want: dimension, Got: len(v)}
		}
		embeddings[i] = domain.Embedding{ChunkIndex: chunks[i].Index, Vector: v}
	}
	logger.Info("embedded chunks", "chunks", len(embeddings), "dimension", dimension)
	return embeddings, nil
}
