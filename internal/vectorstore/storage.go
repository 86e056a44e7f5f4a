package vectorstore

import "ragpdf/internal/domain"

// Searcher answers nearest-neighbour queries over an immutable set of chunk vectors.
type Searcher interface {
	Len() int
	Query(vector []float64, k int) ([]domain.SearchResult, error)
}
