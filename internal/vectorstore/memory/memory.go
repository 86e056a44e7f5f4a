package memory

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"ragpdf/internal/domain"
)

// Index is an immutable in-memory vector index using brute-force cosine similarity.
// It is safe for concurrent queries because nothing writes to it after Build.
type Index struct {
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float64
	norms     []float64
}

// Build validates the chunk/embedding bijection and returns a read-only index.
// Empty input yields an empty index.
func Build(chunks []domain.Chunk, embeddings []domain.Embedding) (*Index, error) {
	if len(chunks) != len(embeddings) {
		return nil, fmt.Errorf("chunks and embeddings length mismatch: %d != %d", len(chunks), len(embeddings))
	}
	idx := &Index{
		chunks:  make([]domain.Chunk, len(chunks)),
		vectors: make([][]float64, len(embeddings)),
		norms:   make([]float64, len(embeddings)),
	}
	copy(idx.chunks, chunks)
	for i, e := range embeddings {
		if e.ChunkIndex != chunks[i].Index {
			return nil, fmt.Errorf("embedding %d refers to chunk %d, want %d", i, e.ChunkIndex, chunks[i].Index)
		}
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("embedding %d is empty", i)
		}
		if i == 0 {
			idx.dimension = len(e.Vector)
		} else if len(e.Vector) != idx.dimension {
			return nil, &domain.DimensionMismatchError{ChunkIndex: e.ChunkIndex, Want: idx.dimension, Got: len(e.Vector)}
		}
		v := make([]float64, len(e.Vector))
		copy(v, e.Vector)
		idx.vectors[i] = v
		idx.norms[i] = norm(v)
	}
	return idx, nil
}

// Len returns the number of stored vectors.
func (s *Index) Len() int { return len(s.vectors) }

// Dimension returns the vector dimension, or 0 for an empty index.
func (s *Index) Dimension() int { return s.dimension }

// Chunks returns a copy of the indexed chunks in index order.
func (s *Index) Chunks() []domain.Chunk {
	return slices.Clone(s.chunks)
}

// Query returns up to k chunks ranked by descending cosine similarity; equal scores keep the
// lower chunk index first. An empty index returns no results and no error.
func (s *Index) Query(vector []float64, k int) ([]domain.SearchResult, error) {
	if len(s.vectors) == 0 {
		return nil, nil
	}
	if k <= 0 {
		return nil, errors.New("k must be greater than zero")
	}
	if len(vector) != s.dimension {
		return nil, &domain.DimensionMismatchError{ChunkIndex: -1, Want: s.dimension, Got: len(vector)}
	}
	qnorm := norm(vector)
	results := make([]domain.SearchResult, len(s.vectors))
	for i, v := range s.vectors {
		results[i] = domain.SearchResult{Chunk: s.chunks[i], Score: cosine(v, vector, s.norms[i], qnorm)}
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Index, b.Chunk.Index)
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k:k], nil
}

func cosine(a, b []float64, anorm, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
