// Package sparse provides in-memory dictionary-of-keys matrices and vectors that
// satisfy the composite segment contracts.
package sparse

import (
	"fmt"
	"iter"
	"sort"

	"github.com/hyperjump/contentdb/internal/composite"
)

// Vector is a map-backed sparse vector of fixed size. Zero values are not stored.
type Vector struct {
	size int
	data map[int]float64
}

// NewVector returns an all-zero vector of the given size.
func NewVector(size int) *Vector {
	if size < 0 {
		size = 0
	}
	return &Vector{size: size, data: make(map[int]float64)}
}

// NewVectorFrom returns a vector holding a copy of values.
func NewVectorFrom(values []float64) *Vector {
	v := NewVector(len(values))
	for i, x := range values {
		if x != 0 {
			v.data[i] = x
		}
	}
	return v
}

// Size returns the vector length.
func (v *Vector) Size() int { return v.size }

// NumNonZero returns the number of stored elements.
func (v *Vector) NumNonZero() int { return len(v.data) }

// Get returns the element at i.
func (v *Vector) Get(i int) (float64, error) {
	if i < 0 || i >= v.size {
		return 0, outOfRange("index", i, v.size)
	}
	return v.data[i], nil
}

// Set stores x at i; storing zero removes the element.
func (v *Vector) Set(i int, x float64) error {
	if i < 0 || i >= v.size {
		return outOfRange("index", i, v.size)
	}
	if x == 0 {
		delete(v.data, i)
		return nil
	}
	v.data[i] = x
	return nil
}

// NonZero yields stored elements in ascending index order.
func (v *Vector) NonZero() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for _, i := range sortedKeys(v.data) {
			x, ok := v.data[i]
			if !ok {
				continue
			}
			if !yield(i, x) {
				return
			}
		}
	}
}

// All yields every index with its value.
func (v *Vector) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for i := 0; i < v.size; i++ {
			if !yield(i, v.data[i]) {
				return
			}
		}
	}
}

// Like returns an empty vector of the same size.
func (v *Vector) Like() composite.Vector { return NewVector(v.size) }

// Dense returns the vector as a slice.
func (v *Vector) Dense() []float64 {
	out := make([]float64, v.size)
	for i, x := range v.data {
		out[i] = x
	}
	return out
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func outOfRange(what string, i, n int) error {
	return fmt.Errorf("%w: %s %d not in [0, %d)", composite.ErrOutOfRange, what, i, n)
}
