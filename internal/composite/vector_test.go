package composite_test

import (
	"fmt"
	"iter"
	"testing"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/sparse"
	"github.com/stretchr/testify/require"
)

func collect(v composite.Vector) map[int]float64 {
	out := make(map[int]float64)
	for i, x := range v.NonZero() {
		out[i] = x
	}
	return out
}

func pairs(seq iter.Seq2[int, float64]) []composite.Entry {
	var out []composite.Entry
	for i, x := range seq {
		out = append(out, composite.Entry{Index: i, Value: x})
	}
	return out
}

func newView(t *testing.T) (*composite.VectorView, *sparse.Vector, *sparse.Vector) {
	t.Helper()
	a := sparse.NewVectorFrom([]float64{0, 5, 0})
	b := sparse.NewVectorFrom([]float64{7, 0})
	v, err := composite.NewVectorView(a, b)
	require.NoError(t, err)
	return v, a, b
}

// readOnly rejects every write.
type readOnly struct{ *sparse.Vector }

func (readOnly) Set(int, float64) error {
	return fmt.Errorf("%w: read-only", composite.ErrUnsupported)
}

func TestVectorView_InitialCache(t *testing.T) {
	v, _, _ := newView(t)
	require.Equal(t, 5, v.Size())
	require.Equal(t, 2, v.NumNonZero())
	require.Equal(t, []composite.Entry{{Index: 1, Value: 5}, {Index: 3, Value: 7}}, pairs(v.NonZero()))

	var dense []float64
	for i, x := range v.All() {
		require.Equal(t, len(dense), i)
		dense = append(dense, x)
	}
	require.Equal(t, []float64{0, 5, 0, 7, 0}, dense)
}

func TestVectorView_Get(t *testing.T) {
	v, _, _ := newView(t)
	for i, want := range []float64{0, 5, 0, 7, 0} {
		got, err := v.Get(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := v.Get(5)
	require.ErrorIs(t, err, composite.ErrOutOfRange)
	_, err = v.Get(-1)
	require.ErrorIs(t, err, composite.ErrOutOfRange)
}

func TestVectorView_SetMaintainsCache(t *testing.T) {
	v, a, b := newView(t)
	require.NoError(t, v.Set(0, 9))
	require.NoError(t, v.Set(1, 0))

	require.Equal(t, map[int]float64{0: 9, 3: 7}, collect(v))
	// New entries go to the end.
	require.Equal(t, []composite.Entry{{Index: 3, Value: 7}, {Index: 0, Value: 9}}, pairs(v.NonZero()))

	// Writes reach the backing vectors.
	require.Equal(t, []float64{9, 0, 0}, a.Dense())
	require.Equal(t, []float64{7, 0}, b.Dense())
}

func TestVectorView_SetSameIndexTwice(t *testing.T) {
	v, _, b := newView(t)
	require.NoError(t, v.Set(4, 3))
	require.NoError(t, v.Set(4, 3))
	require.Equal(t, 3, v.NumNonZero())
	require.Equal(t, []composite.Entry{
		{Index: 1, Value: 5}, {Index: 3, Value: 7}, {Index: 4, Value: 3},
	}, pairs(v.NonZero()))

	// Updating keeps the position.
	require.NoError(t, v.Set(3, 8))
	require.Equal(t, []composite.Entry{
		{Index: 1, Value: 5}, {Index: 3, Value: 8}, {Index: 4, Value: 3},
	}, pairs(v.NonZero()))
	require.Equal(t, []float64{8, 3}, b.Dense())
}

func TestVectorView_ReinsertAfterZeroAppends(t *testing.T) {
	v, _, _ := newView(t)
	require.NoError(t, v.Set(1, 0))
	require.NoError(t, v.Set(1, 2))
	require.Equal(t, []composite.Entry{{Index: 3, Value: 7}, {Index: 1, Value: 2}}, pairs(v.NonZero()))
}

func TestVectorView_ZeroOnZeroIsNoop(t *testing.T) {
	v, _, _ := newView(t)
	require.NoError(t, v.Set(2, 0))
	require.Equal(t, 2, v.NumNonZero())
}

func TestVectorView_CacheMatchesBacking(t *testing.T) {
	v, _, _ := newView(t)
	writes := []composite.Entry{
		{Index: 0, Value: 1}, {Index: 4, Value: 2}, {Index: 1, Value: 0},
		{Index: 2, Value: -3}, {Index: 0, Value: 0}, {Index: 1, Value: 6}, {Index: 4, Value: 2},
	}
	for _, w := range writes {
		require.NoError(t, v.Set(w.Index, w.Value))

		want := make(map[int]float64)
		for i, x := range v.All() {
			if x != 0 {
				want[i] = x
			}
		}
		require.Equal(t, want, collect(v))
		require.Equal(t, len(want), v.NumNonZero())
	}
}

func TestVectorView_FailedSetLeavesCache(t *testing.T) {
	ro := readOnly{sparse.NewVectorFrom([]float64{0, 4})}
	v, err := composite.NewVectorView(sparse.NewVector(2), ro)
	require.NoError(t, err)

	err = v.Set(3, 1)
	require.ErrorIs(t, err, composite.ErrUnsupported)
	require.Equal(t, map[int]float64{3: 4}, collect(v))

	require.ErrorIs(t, v.Set(9, 1), composite.ErrOutOfRange)
	require.Equal(t, 1, v.NumNonZero())
}

func TestVectorView_MergeUpdates(t *testing.T) {
	v, _, _ := newView(t)
	err := v.MergeUpdates([]composite.Entry{
		{Index: 0, Value: 1},
		{Index: 0, Value: 2},
		{Index: 3, Value: 0},
		{Index: 4, Value: 6},
	})
	require.NoError(t, err)
	require.Equal(t, map[int]float64{0: 2, 1: 5, 4: 6}, collect(v))
}

func TestVectorView_MergeUpdatesValidatesFirst(t *testing.T) {
	v, a, b := newView(t)
	err := v.MergeUpdates([]composite.Entry{
		{Index: 0, Value: 1},
		{Index: 5, Value: 1},
	})
	require.ErrorIs(t, err, composite.ErrOutOfRange)
	require.Equal(t, []float64{0, 5, 0}, a.Dense())
	require.Equal(t, []float64{7, 0}, b.Dense())
	require.Equal(t, 2, v.NumNonZero())
}

func TestVectorView_RemoveCurrentDuringIteration(t *testing.T) {
	v, _, _ := newView(t)
	require.NoError(t, v.Set(4, 1))

	var seen []int
	for i := range v.NonZero() {
		seen = append(seen, i)
		require.NoError(t, v.Set(i, 0))
	}
	require.Equal(t, []int{1, 3, 4}, seen)
	require.Zero(t, v.NumNonZero())
}

func TestVectorView_EarlyBreak(t *testing.T) {
	v, _, _ := newView(t)
	n := 0
	for range v.NonZero() {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func TestVectorView_Resync(t *testing.T) {
	v, a, _ := newView(t)
	require.NoError(t, a.Set(2, 4))
	require.Equal(t, 2, v.NumNonZero())

	v.Resync()
	require.Equal(t, map[int]float64{1: 5, 2: 4, 3: 7}, collect(v))
}

func TestVectorView_Like(t *testing.T) {
	v, _, _ := newView(t)
	l := v.Like()
	require.Equal(t, v.Size(), l.Size())
	require.Empty(t, collect(l))

	require.NoError(t, l.Set(3, 1))
	got, err := v.Get(3)
	require.NoError(t, err)
	require.Equal(t, 7.0, got)
}

func TestVectorView_EmptySegments(t *testing.T) {
	v, err := composite.NewVectorView(sparse.NewVector(0), sparse.NewVectorFrom([]float64{0, 1}), sparse.NewVector(0))
	require.NoError(t, err)
	require.Equal(t, 2, v.Size())
	require.Equal(t, map[int]float64{1: 1}, collect(v))
	require.NoError(t, v.Set(0, 3))
	got, err := v.Get(0)
	require.NoError(t, err)
	require.Equal(t, 3.0, got)
}

func TestConcat(t *testing.T) {
	a := sparse.NewVectorFrom([]float64{0, 5, 0})
	b := sparse.NewVectorFrom([]float64{7, 0})
	c := sparse.NewVectorFrom([]float64{0, 0, 2})

	out, err := composite.Concat(func(n int) composite.Vector { return sparse.NewVector(n) }, a, b, c)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 5, 0, 7, 0, 0, 0, 2}, out.(*sparse.Vector).Dense())
}

func TestConcat_WrongSize(t *testing.T) {
	_, err := composite.Concat(func(n int) composite.Vector { return sparse.NewVector(n + 1) },
		sparse.NewVector(2))
	require.ErrorIs(t, err, composite.ErrCardinalityMismatch)
}

func TestVectorView_ZeroLaterElementDuringIteration(t *testing.T) {
	v, _, _ := newView(t)
	require.NoError(t, v.Set(4, 1))

	var seen []composite.Entry
	for i, x := range v.NonZero() {
		seen = append(seen, composite.Entry{Index: i, Value: x})
		if i == 1 {
			require.NoError(t, v.Set(3, 0))
			require.NoError(t, v.Set(0, 2))
		}
	}
	require.Equal(t, []composite.Entry{{Index: 1, Value: 5}, {Index: 4, Value: 1}}, seen)
	require.Equal(t, map[int]float64{0: 2, 1: 5, 4: 1}, collect(v))
}
