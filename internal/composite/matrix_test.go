package composite_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/hyperjump/contentdb/internal/sparse"
	"github.com/stretchr/testify/require"
)

var errBackend = fmt.Errorf("%w: backend unavailable", composite.ErrRetrieval)

// brokenSegment behaves like its embedded matrix except that writes and, optionally,
// reads fail with errBackend.
type brokenSegment struct {
	*sparse.Matrix
	failReads bool
}

func (b *brokenSegment) At(row, col int) (float64, error) {
	if b.failReads {
		return 0, errBackend
	}
	return b.Matrix.At(row, col)
}

func (b *brokenSegment) Set(int, int, float64) error { return errBackend }

func (b *brokenSegment) AssignRow(int, composite.Vector) error { return errBackend }

func newSparse(t *testing.T, rows [][]float64) *sparse.Matrix {
	t.Helper()
	m, err := sparse.NewMatrixFrom(rows)
	require.NoError(t, err)
	return m
}

func newComposite(t *testing.T) (*composite.Matrix, *sparse.Matrix, *sparse.Matrix) {
	t.Helper()
	a := newSparse(t, [][]float64{
		{1, 0, 2},
		{0, 0, 0},
		{0, 3, 0},
	})
	b := newSparse(t, [][]float64{
		{0, 4},
		{5, 0},
		{0, 0},
	})
	m, err := composite.NewMatrix(a, b)
	require.NoError(t, err)
	return m, a, b
}

func TestNewMatrix_Shape(t *testing.T) {
	m, _, _ := newComposite(t)
	require.Equal(t, 3, m.Rows())
	require.Equal(t, 5, m.Cols())
	require.Len(t, m.Segments(), 2)
}

func TestNewMatrix_RowMismatch(t *testing.T) {
	a, err := sparse.NewMatrix(3, 2)
	require.NoError(t, err)
	b, err := sparse.NewMatrix(4, 1)
	require.NoError(t, err)

	_, err = composite.NewMatrix(a, b)
	require.ErrorIs(t, err, composite.ErrCardinalityMismatch)
	var ce *composite.CardinalityError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, 3, ce.Expected)
	require.Equal(t, 4, ce.Actual)
}

func TestNewMatrix_NoSegments(t *testing.T) {
	_, err := composite.NewMatrix()
	require.ErrorIs(t, err, composite.ErrCardinalityMismatch)
}

func TestMatrix_AtDelegates(t *testing.T) {
	m, _, _ := newComposite(t)
	want := [][]float64{
		{1, 0, 2, 0, 4},
		{0, 0, 0, 5, 0},
		{0, 3, 0, 0, 0},
	}
	for r := range want {
		for c := range want[r] {
			got, err := m.At(r, c)
			require.NoError(t, err)
			require.Equal(t, want[r][c], got, "cell (%d,%d)", r, c)
		}
	}
}

func TestMatrix_SetThenGetTouchesOneCell(t *testing.T) {
	for r := 0; r < 3; r++ {
		for c := 0; c < 5; c++ {
			m, _, _ := newComposite(t)
			before := snapshot(t, m)
			require.NoError(t, m.Set(r, c, 42))
			after := snapshot(t, m)
			for rr := range after {
				for cc := range after[rr] {
					if rr == r && cc == c {
						require.Equal(t, 42.0, after[rr][cc])
						continue
					}
					require.Equal(t, before[rr][cc], after[rr][cc], "cell (%d,%d) changed by Set(%d,%d)", rr, cc, r, c)
				}
			}
		}
	}
}

func snapshot(t *testing.T, m *composite.Matrix) [][]float64 {
	t.Helper()
	out := make([][]float64, m.Rows())
	for r := range out {
		out[r] = make([]float64, m.Cols())
		for c := range out[r] {
			v, err := m.At(r, c)
			require.NoError(t, err)
			out[r][c] = v
		}
	}
	return out
}

func TestMatrix_BoundsCheckedBeforeDelegation(t *testing.T) {
	m, _, _ := newComposite(t)
	cases := []struct{ row, col int }{{-1, 0}, {3, 0}, {0, -1}, {0, 5}}
	for _, tc := range cases {
		_, err := m.At(tc.row, tc.col)
		require.ErrorIs(t, err, composite.ErrOutOfRange)
		require.ErrorIs(t, m.Set(tc.row, tc.col, 1), composite.ErrOutOfRange)
	}
	_, err := m.RowView(3)
	require.ErrorIs(t, err, composite.ErrOutOfRange)
	_, err = m.ColumnView(5)
	require.ErrorIs(t, err, composite.ErrOutOfRange)
}

func TestMatrix_ColumnViewAtSegmentBoundary(t *testing.T) {
	m, _, b := newComposite(t)
	s, local, err := m.Locate(3)
	require.NoError(t, err)
	require.Equal(t, 1, s)
	require.Equal(t, 0, local)

	col, err := m.ColumnView(3)
	require.NoError(t, err)
	require.Equal(t, 3, col.Size())
	v, err := col.Get(1)
	require.NoError(t, err)
	require.Equal(t, 5.0, v)

	// The column view is the segment's own view: writes land in segment b.
	require.NoError(t, col.Set(2, 9))
	got, err := b.At(2, 0)
	require.NoError(t, err)
	require.Equal(t, 9.0, got)
}

func TestMatrix_AssignColumn(t *testing.T) {
	m, _, b := newComposite(t)
	require.NoError(t, m.AssignColumn(4, sparse.NewVectorFrom([]float64{7, 8, 0})))
	for r, want := range []float64{7, 8, 0} {
		got, err := b.At(r, 1)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	err := m.AssignColumn(4, sparse.NewVectorFrom([]float64{1, 2}))
	require.ErrorIs(t, err, composite.ErrCardinalityMismatch)
	require.ErrorIs(t, m.AssignColumn(5, sparse.NewVector(3)), composite.ErrOutOfRange)
}

func TestMatrix_AssignRowSplitsAtBoundaries(t *testing.T) {
	m, a, b := newComposite(t)
	require.NoError(t, m.AssignRow(1, sparse.NewVectorFrom([]float64{1, 2, 3, 4, 0})))

	for c, want := range []float64{1, 2, 3} {
		got, err := a.At(1, c)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	for c, want := range []float64{4, 0} {
		got, err := b.At(1, c)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestMatrix_AssignRowWrongLengthLeavesSegmentsUntouched(t *testing.T) {
	m, a, b := newComposite(t)
	before := snapshot(t, m)
	nnzA, nnzB := a.NumNonZero(), b.NumNonZero()

	err := m.AssignRow(0, sparse.NewVectorFrom([]float64{9, 9, 9, 9}))
	require.ErrorIs(t, err, composite.ErrCardinalityMismatch)
	var ce *composite.CardinalityError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, 5, ce.Expected)
	require.Equal(t, 4, ce.Actual)

	require.Equal(t, before, snapshot(t, m))
	require.Equal(t, nnzA, a.NumNonZero())
	require.Equal(t, nnzB, b.NumNonZero())
}

func TestMatrix_AssignRowPartialFailure(t *testing.T) {
	a := newSparse(t, [][]float64{{0, 0}, {0, 0}})
	b := &brokenSegment{Matrix: newSparse(t, [][]float64{{0}, {0}})}
	m, err := composite.NewMatrix(a, b)
	require.NoError(t, err)

	err = m.AssignRow(0, sparse.NewVectorFrom([]float64{1, 2, 3}))
	require.ErrorIs(t, err, composite.ErrRetrieval)
	require.ErrorIs(t, err, errBackend)

	// The first segment was already written; there is no rollback.
	got, err := a.At(0, 1)
	require.NoError(t, err)
	require.Equal(t, 2.0, got)
}

func TestMatrix_SegmentErrorsPropagateUnchanged(t *testing.T) {
	a := newSparse(t, [][]float64{{1}, {2}})
	b := &brokenSegment{Matrix: newSparse(t, [][]float64{{0}, {0}}), failReads: true}
	m, err := composite.NewMatrix(a, b)
	require.NoError(t, err)

	_, err = m.At(0, 1)
	require.Equal(t, errBackend, err)
	require.Equal(t, errBackend, m.Set(1, 1, 4))

	v, err := m.At(1, 0)
	require.NoError(t, err)
	require.Equal(t, 2.0, v)
}

func TestMatrix_RowViewWritesThrough(t *testing.T) {
	m, a, b := newComposite(t)
	row, err := m.RowView(0)
	require.NoError(t, err)
	require.Equal(t, 5, row.Size())

	require.NoError(t, row.Set(1, 6))
	require.NoError(t, row.Set(4, 0))

	got, err := a.At(0, 1)
	require.NoError(t, err)
	require.Equal(t, 6.0, got)
	got, err = b.At(0, 1)
	require.NoError(t, err)
	require.Equal(t, 0.0, got)

	// Row views are fresh per call and see the new state.
	again, err := m.RowView(0)
	require.NoError(t, err)
	require.NotSame(t, row, again)
	require.Equal(t, map[int]float64{0: 1, 1: 6, 2: 2}, collect(again))
}

func TestMatrix_Like(t *testing.T) {
	m, _, _ := newComposite(t)
	l, err := m.Like()
	require.NoError(t, err)
	require.Equal(t, m.Rows(), l.Rows())
	require.Equal(t, m.Cols(), l.Cols())
	require.Len(t, l.Segments(), 2)
	for r := 0; r < l.Rows(); r++ {
		row, err := l.RowView(r)
		require.NoError(t, err)
		require.Zero(t, row.NumNonZero())
	}
	// Scratch matrices are independent of the original.
	require.NoError(t, l.Set(0, 0, 99))
	v, err := m.At(0, 0)
	require.NoError(t, err)
	require.Equal(t, 1.0, v)
}

func TestMatrix_UnsupportedViews(t *testing.T) {
	m, _, _ := newComposite(t)
	_, err := m.LikeShape(2, 2)
	require.ErrorIs(t, err, composite.ErrUnsupported)
	_, err = m.ViewPart(0, 1, 2, 3)
	require.ErrorIs(t, err, composite.ErrUnsupported)
}

// plainSegment hides the whole-row and whole-column assignment of its segment, so the
// matrix falls back to writing through views.
type plainSegment struct{ composite.Segment }

// unreadable fails to read index bad.
type unreadable struct {
	*sparse.Vector
	bad int
}

func (u unreadable) Get(i int) (float64, error) {
	if i == u.bad {
		return 0, errBackend
	}
	return u.Vector.Get(i)
}

func TestMatrix_AssignThroughViewsReportsReadErrors(t *testing.T) {
	seg := newSparse(t, [][]float64{{0, 0}, {0, 0}})
	m, err := composite.NewMatrix(plainSegment{seg})
	require.NoError(t, err)

	err = m.AssignRow(0, unreadable{Vector: sparse.NewVectorFrom([]float64{3, 4}), bad: 1})
	require.ErrorIs(t, err, errBackend)

	err = m.AssignColumn(1, unreadable{Vector: sparse.NewVectorFrom([]float64{5, 6}), bad: 1})
	require.ErrorIs(t, err, errBackend)

	// Nothing is written when the source cannot be read in full.
	require.Equal(t, [][]float64{{0, 0}, {0, 0}}, snapshot(t, m))
}

func TestMatrix_AssignFromOwnViews(t *testing.T) {
	for _, plain := range []bool{false, true} {
		a := newSparse(t, [][]float64{{1, 0}, {2, 3}})
		var seg composite.Segment = a
		if plain {
			seg = plainSegment{a}
		}
		m, err := composite.NewMatrix(seg)
		require.NoError(t, err)
		before := snapshot(t, m)

		col, err := m.ColumnView(0)
		require.NoError(t, err)
		require.NoError(t, m.AssignColumn(0, col))
		require.Equal(t, before, snapshot(t, m), "plain=%v", plain)

		row, err := m.RowView(1)
		require.NoError(t, err)
		require.NoError(t, m.AssignRow(1, row))
		require.Equal(t, before, snapshot(t, m), "plain=%v", plain)
	}
}
