// Package retrieval answers candidate and similarity queries over entities with a
// Bleve index, and exposes the term statistics text columns are built from.
package retrieval

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hyperjump/contentdb/internal/models"
)

// Retriever defines the retrieval operations the matrix and the service depend on.
type Retriever interface {
	Index(ctx context.Context, e *models.Entity) error
	Delete(ctx context.Context, id int) error

	// Candidates returns the ids matching q.
	Candidates(ctx context.Context, q *models.CandidateQuery) (*roaring.Bitmap, error)
	// Matching returns up to limit ids whose field holds term. Numerical fields
	// ignore term and match any value.
	Matching(ctx context.Context, field, term string, limit int) (*roaring.Bitmap, error)
	// MoreLikeThis ranks entities sharing terms with id on field, excluding id.
	MoreLikeThis(ctx context.Context, field string, id int, terms []string, limit int) ([]*models.ScoredEntity, error)

	Vocabulary(field string, n int) ([]TermCount, error)
	DocFrequency(ctx context.Context, field, term string) (int, error)
	TermCounts(text string) map[string]int

	DocCount() (uint64, error)
	Close() error
}

// TermCount is a term with the number of documents containing it.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}
