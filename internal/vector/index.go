// Package vector stores dense entity embeddings and answers nearest-neighbour queries.
package vector

import "context"

// VectorIndex defines embedding storage keyed by entity id and similarity search.
type VectorIndex interface {
	// Put stores or replaces the vector of id.
	Put(ctx context.Context, id int, vector []float32) error
	// Get returns the vector of id and whether it exists.
	Get(id int) ([]float32, bool)
	// IDs returns the stored ids in ascending order.
	IDs() []int
	Search(ctx context.Context, query []float32, k int, exclude ...int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids ...int) error
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    int
	Score float64 // inner product; cosine similarity for normalized vectors
}
