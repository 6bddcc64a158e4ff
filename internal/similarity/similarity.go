// Package similarity scores matrix rows against each other and merges ranked lists.
package similarity

import (
	"math"
	"sort"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/models"
)

// Dot returns the inner product of a and b, visiting only the non-zero elements of a.
func Dot(a, b composite.Vector) (float64, error) {
	if a.Size() != b.Size() {
		return 0, &composite.CardinalityError{What: "vector", Expected: a.Size(), Actual: b.Size()}
	}
	var sum float64
	for i, x := range a.NonZero() {
		y, err := b.Get(i)
		if err != nil {
			return 0, err
		}
		sum += x * y
	}
	return sum, nil
}

// Norm returns the Euclidean norm of v.
func Norm(v composite.Vector) float64 {
	var sum float64
	for _, x := range v.NonZero() {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b. It is 0 when either is all zero.
func Cosine(a, b composite.Vector) (float64, error) {
	dot, err := Dot(a, b)
	if err != nil {
		return 0, err
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (na * nb), nil
}

// TopK ranks scores by descending score, ties by ascending id, and keeps the first k.
// A non-positive k keeps everything.
func TopK(scores map[int]float64, k int) []*models.ScoredEntity {
	out := make([]*models.ScoredEntity, 0, len(scores))
	for id, s := range scores {
		out = append(out, &models.ScoredEntity{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	for i, r := range out {
		r.Rank = i + 1
	}
	return out
}

// Normalize scales scores to [0,1] by the maximum score.
func Normalize(results []*models.ScoredEntity) map[int]float64 {
	normalized := make(map[int]float64, len(results))
	var maxScore float64
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// Fuse adds up weighted score maps. An id missing from a map contributes 0 for it.
func Fuse(scores []map[int]float64, weights []float64) map[int]float64 {
	fused := make(map[int]float64)
	for i, m := range scores {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		for id, s := range m {
			fused[id] += w * s
		}
	}
	return fused
}
