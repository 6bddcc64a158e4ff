package similarity

import (
	"math"
	"testing"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/models"
	"github.com/hyperjump/contentdb/internal/sparse"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 0, 2}, []float64{1, 0, 2}, 1},
		{"orthogonal", []float64{1, 0, 0}, []float64{0, 3, 0}, 0},
		{"opposite", []float64{1, -1}, []float64{-1, 1}, -1},
		{"zero", []float64{0, 0}, []float64{1, 1}, 0},
		{"scaled", []float64{0, 2, 0}, []float64{0, 5, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(sparse.NewVectorFrom(tt.a), sparse.NewVectorFrom(tt.b))
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDot_OverCompositeView(t *testing.T) {
	v, err := composite.NewVectorView(sparse.NewVectorFrom([]float64{1, 0}), sparse.NewVectorFrom([]float64{0, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	other := sparse.NewVectorFrom([]float64{2, 9, 0, 1, 1})
	got, err := Dot(v, other)
	if err != nil {
		t.Fatal(err)
	}
	if got != 9 {
		t.Errorf("Dot = %v, want 9", got)
	}
	if n := Norm(v); n != math.Sqrt(26) {
		t.Errorf("Norm = %v", n)
	}
}

func TestDot_SizeMismatch(t *testing.T) {
	_, err := Dot(sparse.NewVector(2), sparse.NewVector(3))
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*composite.CardinalityError); !ok {
		t.Errorf("expected *CardinalityError, got %T", err)
	}
}

func TestTopK(t *testing.T) {
	scores := map[int]float64{4: 0.5, 2: 0.9, 7: 0.5, 1: 0.1}
	got := TopK(scores, 3)
	want := []int{2, 4, 7}
	if len(got) != len(want) {
		t.Fatalf("got %d results", len(got))
	}
	for i, r := range got {
		if r.ID != want[i] || r.Rank != i+1 {
			t.Errorf("result %d = %+v, want id %d", i, r, want[i])
		}
	}
	if all := TopK(scores, 0); len(all) != 4 {
		t.Errorf("k=0 should keep all, got %d", len(all))
	}
}

func TestNormalize(t *testing.T) {
	m := Normalize([]*models.ScoredEntity{{ID: 1, Score: 2}, {ID: 2, Score: 4}, {ID: 3, Score: 1}})
	if m[2] != 1 || m[1] != 0.5 || m[3] != 0.25 {
		t.Errorf("unexpected %v", m)
	}
	if z := Normalize([]*models.ScoredEntity{{ID: 1}}); z[1] != 0 {
		t.Errorf("zero scores should stay 0, got %v", z)
	}
}

func TestFuse(t *testing.T) {
	text := map[int]float64{1: 1.0, 2: 0.5}
	vec := map[int]float64{2: 1.0, 3: 0.4}
	fused := Fuse([]map[int]float64{text, vec}, []float64{0.5, 0.5})
	if fused[1] != 0.5 || fused[2] != 0.75 || fused[3] != 0.2 {
		t.Errorf("unexpected %v", fused)
	}
	ranked := TopK(fused, 0)
	if ranked[0].ID != 2 {
		t.Errorf("expected 2 first, got %d", ranked[0].ID)
	}
}
