package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"

	"ragpdf/internal/domain"
	"ragpdf/internal/retry"
)

// DefaultEmbeddingModel matches the model the index was historically built with.
const DefaultEmbeddingModel = "text-embedding-ada-002"

// Embedder is an OpenAI-compatible embeddings client.
type Embedder struct {
	conn  conn
	model string
}

// NewEmbedder creates an embeddings client. The API key must be set.
func NewEmbedder(cfg Config) (*Embedder, error) {
	c, err := newConn(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{conn: c, model: model}, nil
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one request, retrying transient failures. The result is ordered
// like the input regardless of the order of the response data.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	return retry.Do(ctx, e.conn.policy, "embed", func(ctx context.Context) ([][]float64, error) {
		resp, err := e.conn.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, classify("embed", err)
		}
		out := make([][]float64, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(out) {
				return nil, domain.NewFatalError("embed", fmt.Errorf("response index %d out of range", d.Index))
			}
			out[d.Index] = d.Embedding
		}
		for i, v := range out {
			if v == nil {
				return nil, domain.NewFatalError("embed", fmt.Errorf("no embedding returned for input %d", i))
			}
		}
		return out, nil
	})
}

// Close releases idle connections.
func (e *Embedder) Close() error {
	e.conn.close()
	return nil
}

var _ domain.EmbeddingProvider = (*Embedder)(nil)
