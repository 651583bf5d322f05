// Package vector implements the engine's nearest-neighbor structure: an
// exact inner-product index over fixed-dimension vectors keyed by the
// metadata store's int64 primary keys, with a binary snapshot format.
package vector

import "context"

// Index is a nearest-neighbor search structure. All vectors share one
// fixed dimension; ids are chunk primary keys.
type Index interface {
	Add(ctx context.Context, ids []int64, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Remove(ctx context.Context, ids []int64) error
	Save(path string) error
	Count() int
	Dim() int
}

// Hit is a single search result. Score is inner product, which equals
// cosine similarity when both sides are unit-normalized.
type Hit struct {
	ID    int64
	Score float64
}
