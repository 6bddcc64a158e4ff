package field

import (
	"fmt"
	"iter"
	"sort"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/sparse"
)

// snapshot is a read-only sparse vector computed from the backend.
type snapshot struct {
	name string
	size int
	data map[int]float64
}

func (v *snapshot) Size() int { return v.size }

func (v *snapshot) Get(i int) (float64, error) {
	if i < 0 || i >= v.size {
		return 0, fmt.Errorf("%w: index %d not in [0, %d)", composite.ErrOutOfRange, i, v.size)
	}
	return v.data[i], nil
}

func (v *snapshot) Set(int, float64) error {
	return fmt.Errorf("%w: field %q is read-only", composite.ErrUnsupported, v.name)
}

func (v *snapshot) NonZero() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		keys := make([]int, 0, len(v.data))
		for k := range v.data {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			if !yield(k, v.data[k]) {
				return
			}
		}
	}
}

func (v *snapshot) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for i := 0; i < v.size; i++ {
			if !yield(i, v.data[i]) {
				return
			}
		}
	}
}

// Like returns a writable empty vector of the same size.
func (v *snapshot) Like() composite.Vector { return sparse.NewVector(v.size) }
