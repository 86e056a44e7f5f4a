package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpdf/internal/chunker"
	"ragpdf/internal/domain"
	"ragpdf/internal/embedding/tfidf"
	"ragpdf/internal/summarizer"
	"ragpdf/internal/vectorstore/memory"
)

var vocabulary = []string{"cat", "dog", "fish"}

// keywordEmbedder counts vocabulary words, so texts about the same animal are close.
type keywordEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	v := make([]float64, len(vocabulary))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		for i, term := range vocabulary {
			if strings.Trim(w, ".,?!") == term {
				v[i]++
			}
		}
	}
	return v, nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func buildIndex(t *testing.T, texts ...string) *memory.Index {
	t.Helper()
	chunks := make([]domain.Chunk, len(texts))
	embeddings := make([]domain.Embedding, len(texts))
	e := &keywordEmbedder{}
	for i, text := range texts {
		chunks[i] = domain.Chunk{Index: i, Text: text}
		v, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		embeddings[i] = domain.Embedding{ChunkIndex: i, Vector: v}
	}
	idx, err := memory.Build(chunks, embeddings)
	require.NoError(t, err)
	return idx
}

func TestIngest_BuildsIndexAndSummary(t *testing.T) {
	c, err := chunker.NewWordChunker(3, 1)
	require.NoError(t, err)
	e := &keywordEmbedder{}
	svc := NewRAGService(c, e, WithSummarizer(summarizer.NewFrequencySummarizer(), 1))

	p, err := svc.Ingest(context.Background(), domain.Document{ID: "d", Content: "the cat sat. the dog ran."})
	require.NoError(t, err)
	assert.Len(t, p.Chunks, 3)
	assert.Equal(t, 3, p.Index.Len())
	assert.Equal(t, len(vocabulary), p.Index.Dimension())
	assert.NotEmpty(t, p.Summary)
}

func TestIngest_EmptyDocumentYieldsEmptyIndex(t *testing.T) {
	c, err := chunker.NewWordChunker(500, 50)
	require.NoError(t, err)
	e := &keywordEmbedder{}

	p, err := NewRAGService(c, e).Ingest(context.Background(), domain.Document{ID: "d", Content: " \n "})
	require.NoError(t, err)
	assert.Zero(t, p.Index.Len())
	assert.Empty(t, p.Chunks)
	assert.Zero(t, e.calls.Load())
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	c, err := chunker.NewWordChunker(2, 0)
	require.NoError(t, err)
	e := &keywordEmbedder{err: domain.NewFatalError("embed", errors.New("bad key"))}

	_, err = NewRAGService(c, e).Ingest(context.Background(), domain.Document{Content: "a b c d"})
	var pe *domain.ProviderError
	assert.ErrorAs(t, err, &pe)
}

func TestBuildContext_EmptyIndexSkipsEmbedder(t *testing.T) {
	idx, err := memory.Build(nil, nil)
	require.NoError(t, err)
	e := &keywordEmbedder{}
	b, err := NewContextBuilder(idx, e)
	require.NoError(t, err)

	r, err := b.BuildContext(context.Background(), "anything about cats?", 2, 1500)
	require.NoError(t, err)
	assert.Empty(t, r.Text)
	assert.Empty(t, r.Results)
	assert.Zero(t, e.calls.Load())
}

func TestBuildContext_RanksAndJoins(t *testing.T) {
	idx := buildIndex(t, "a dog barks", "the cat purrs", "a fish swims", "cat and cat again")
	b, err := NewContextBuilder(idx, &keywordEmbedder{})
	require.NoError(t, err)

	r, err := b.BuildContext(context.Background(), "tell me about the cat", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "the cat purrs\n\ncat and cat again", r.Text)
	require.Len(t, r.Results, 2)
	assert.Equal(t, 1, r.Results[0].Chunk.Index)
	assert.Equal(t, 3, r.Results[1].Chunk.Index)
}

func TestBuildContext_BudgetDropsWholeChunks(t *testing.T) {
	idx := buildIndex(t, "cat one two three", "cat four", "cat five six")
	b, err := NewContextBuilder(idx, &keywordEmbedder{})
	require.NoError(t, err)

	r, err := b.BuildContext(context.Background(), "cat", 3, 5)
	require.NoError(t, err)
	// ties rank by chunk index; the second chunk would push the count to 6
	assert.Equal(t, "cat one two three", r.Text)
	assert.Len(t, r.Results, 1)

	r, err = b.BuildContext(context.Background(), "cat", 3, 2)
	require.NoError(t, err)
	assert.Empty(t, r.Text)
}

func TestBuildContext_DegradesOnEmbeddingFailure(t *testing.T) {
	idx := buildIndex(t, "cat")
	e := &keywordEmbedder{err: domain.NewFatalError("embed", errors.New("boom"))}

	lenient, err := NewContextBuilder(idx, e)
	require.NoError(t, err)
	r, err := lenient.BuildContext(context.Background(), "cat", 2, 0)
	require.NoError(t, err)
	assert.Empty(t, r.Text)

	strict, err := NewContextBuilder(idx, e, WithStrictGrounding(true))
	require.NoError(t, err)
	_, err = strict.BuildContext(context.Background(), "cat", 2, 0)
	var pe *domain.ProviderError
	assert.ErrorAs(t, err, &pe)
}

func TestBuildContext_CancelledContext(t *testing.T) {
	idx := buildIndex(t, "cat")
	e := &keywordEmbedder{err: context.Canceled}
	b, err := NewContextBuilder(idx, e)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.BuildContext(ctx, "cat", 2, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildContext_QueryCache(t *testing.T) {
	idx := buildIndex(t, "cat", "dog")
	e := &keywordEmbedder{}
	b, err := NewContextBuilder(idx, e, WithQueryCache(4))
	require.NoError(t, err)

	for range 3 {
		_, err := b.BuildContext(context.Background(), "dog?", 1, 0)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, e.calls.Load())

	_, err = b.BuildContext(context.Background(), "cat?", 1, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, e.calls.Load())
}

func TestBuildContext_InvalidK(t *testing.T) {
	idx := buildIndex(t, "cat")
	b, err := NewContextBuilder(idx, &keywordEmbedder{})
	require.NoError(t, err)

	_, err = b.BuildContext(context.Background(), "cat", 0, 0)
	assert.Error(t, err)
}

// wideEmbedder returns vectors one dimension larger than the index.
type wideEmbedder struct{ keywordEmbedder }

func (e *wideEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	v, err := e.keywordEmbedder.Embed(ctx, text)
	return append(v, 0), err
}

func TestBuildContext_QueryDimensionMismatch(t *testing.T) {
	idx := buildIndex(t, "cat", "dog")

	lenient, err := NewContextBuilder(idx, &wideEmbedder{})
	require.NoError(t, err)
	r, err := lenient.BuildContext(context.Background(), "cat", 2, 0)
	require.NoError(t, err)
	assert.Empty(t, r.Text)
	assert.Empty(t, r.Results)

	strict, err := NewContextBuilder(idx, &wideEmbedder{}, WithStrictGrounding(true))
	require.NoError(t, err)
	_, err = strict.BuildContext(context.Background(), "cat", 2, 0)
	var dimErr *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, -1, dimErr.ChunkIndex)
}

func TestIngest_StopwordOnlyDocumentYieldsEmptyIndex(t *testing.T) {
	c, err := chunker.NewWordChunker(3, 0)
	require.NoError(t, err)
	e := tfidf.NewEmbedder()

	p, err := NewRAGService(c, e).Ingest(context.Background(), domain.Document{ID: "d", Content: "it is the to of the"})
	require.NoError(t, err)
	assert.Len(t, p.Chunks, 2)
	assert.Zero(t, p.Index.Len())

	b, err := NewContextBuilder(p.Index, e)
	require.NoError(t, err)
	r, err := b.BuildContext(context.Background(), "what is it?", 2, 0)
	require.NoError(t, err)
	assert.Empty(t, r.Text)
}
