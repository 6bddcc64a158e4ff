package contentdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/contentdb/internal/config"
	"github.com/hyperjump/contentdb/internal/field"
	"github.com/hyperjump/contentdb/internal/models"
	"github.com/hyperjump/contentdb/internal/similarity"
)

// Similar ranks the entities most like id. Text and multinomial fields contribute a
// more-like-this query over the entity's strongest terms, embedding fields a nearest
// neighbour search. Per-field scores are normalized and summed with equal weight.
func (db *DB) Similar(ctx context.Context, id, limit int) (*models.SimilarResponse, error) {
	start := time.Now()
	if _, err := db.store.GetEntity(ctx, id); err != nil {
		return nil, err
	}
	limit = db.clampLimit(limit)

	db.mu.RLock()
	segments := db.segments
	db.mu.RUnlock()

	var lists []map[int]float64
	for _, s := range segments {
		var (
			scores map[int]float64
			err    error
		)
		switch s.Kind() {
		case config.KindText, config.KindMultinomial:
			scores, err = db.similarByTerms(ctx, s, id, limit)
		case config.KindEmbedding:
			scores, err = db.similarByVector(ctx, s.Name(), id, limit)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(scores) > 0 {
			lists = append(lists, scores)
		}
	}

	results := similarity.TopK(similarity.Fuse(lists, nil), limit)
	db.logger.Debug("similar", zap.Int("id", id), zap.Int("fields", len(lists)), zap.Int("hits", len(results)))
	return &models.SimilarResponse{ID: id, Results: results, QueryTime: time.Since(start).Milliseconds()}, nil
}

func (db *DB) similarByTerms(ctx context.Context, s *field.Segment, id, limit int) (map[int]float64, error) {
	row, err := s.RowView(id)
	if err != nil {
		return nil, err
	}
	type weighted struct {
		term  string
		value float64
	}
	var terms []weighted
	for c, x := range row.NonZero() {
		terms = append(terms, weighted{term: s.Term(c), value: x})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].value != terms[j].value {
			return terms[i].value > terms[j].value
		}
		return terms[i].term < terms[j].term
	})
	if n := db.cfg.Retrieval.SimilarTerms; n > 0 && len(terms) > n {
		terms = terms[:n]
	}
	query := make([]string, len(terms))
	for i, t := range terms {
		query[i] = t.term
	}

	hits, err := db.index.MoreLikeThis(ctx, s.Name(), id, query, limit)
	if err != nil {
		return nil, err
	}
	return similarity.Normalize(hits), nil
}

func (db *DB) similarByVector(ctx context.Context, name string, id, limit int) (map[int]float64, error) {
	vi, ok := db.vectors[name]
	if !ok {
		return nil, nil
	}
	vec, ok := vi.Get(id)
	if !ok {
		return nil, nil
	}
	hits, err := vi.Search(ctx, vec, limit, id)
	if err != nil {
		return nil, fmt.Errorf("vector search on %q failed: %w", name, err)
	}
	scores := make(map[int]float64, len(hits))
	for _, h := range hits {
		if h.Score > 0 {
			scores[h.ID] = h.Score
		}
	}
	return scores, nil
}

// Recommend ranks candidates by the cosine similarity of their matrix rows to the row of
// id. With a nil query every stored entity is a candidate. id itself is never returned.
func (db *DB) Recommend(ctx context.Context, id int, q *models.CandidateQuery, limit int) (*models.SimilarResponse, error) {
	start := time.Now()
	limit = db.clampLimit(limit)
	m := db.Matrix()

	base, err := m.RowView(id)
	if err != nil {
		return nil, err
	}

	var ids []int
	if q != nil {
		q.Limit = db.cfg.Retrieval.MaxLimit
		if err := q.Validate(); err != nil {
			return nil, err
		}
		bm, err := db.index.Candidates(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, x := range bm.ToArray() {
			ids = append(ids, int(x))
		}
	} else {
		ids, err = db.store.EntityIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list entity ids: %w", err)
		}
	}

	scores := make(map[int]float64, len(ids))
	for _, cand := range ids {
		if cand == id || cand < 0 || cand >= m.Rows() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := m.RowView(cand)
		if err != nil {
			return nil, err
		}
		score, err := similarity.Cosine(base, row)
		if err != nil {
			return nil, err
		}
		if score > 0 {
			scores[cand] = score
		}
	}
	return &models.SimilarResponse{
		ID:        id,
		Results:   similarity.TopK(scores, limit),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// attributeText renders an attribute for embedding. Lists are joined with spaces.
func attributeText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			if s := attributeText(x); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(t)
	}
}
