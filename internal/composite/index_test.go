package composite_test

import (
	"testing"

	"github.com/hyperjump/contentdb/internal/composite"
	"github.com/stretchr/testify/require"
)

func TestIndex_RoundTrip(t *testing.T) {
	widths := [][]int{
		{1},
		{3, 2},
		{4, 0, 1, 7},
		{0, 0, 5},
		{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
	}
	for _, w := range widths {
		x, err := composite.NewIndex(w)
		require.NoError(t, err)
		for g := 0; g < x.Total(); g++ {
			s, local, err := x.Locate(g)
			require.NoError(t, err)
			require.Less(t, local, x.Width(s), "widths %v, g=%d", w, g)
			back, err := x.Global(s, local)
			require.NoError(t, err)
			require.Equal(t, g, back, "widths %v", w)
		}
	}
}

func TestIndex_SegmentBoundary(t *testing.T) {
	x, err := composite.NewIndex([]int{3, 2})
	require.NoError(t, err)

	s, local, err := x.Locate(2)
	require.NoError(t, err)
	require.Equal(t, 0, s)
	require.Equal(t, 2, local)

	s, local, err = x.Locate(3)
	require.NoError(t, err)
	require.Equal(t, 1, s)
	require.Equal(t, 0, local)
}

func TestIndex_SkipsEmptySegments(t *testing.T) {
	x, err := composite.NewIndex([]int{2, 0, 0, 3})
	require.NoError(t, err)
	s, local, err := x.Locate(2)
	require.NoError(t, err)
	require.Equal(t, 3, s)
	require.Equal(t, 0, local)
}

func TestIndex_OutOfRange(t *testing.T) {
	x, err := composite.NewIndex([]int{3, 2})
	require.NoError(t, err)
	require.Equal(t, 5, x.Total())
	require.Equal(t, 2, x.Len())

	for _, g := range []int{-1, 5, 100} {
		_, _, err := x.Locate(g)
		require.ErrorIs(t, err, composite.ErrOutOfRange, "g=%d", g)
	}
	_, err = x.Global(1, 2)
	require.ErrorIs(t, err, composite.ErrOutOfRange)
	_, err = x.Global(2, 0)
	require.ErrorIs(t, err, composite.ErrOutOfRange)
	_, err = x.Global(0, -1)
	require.ErrorIs(t, err, composite.ErrOutOfRange)
}

func TestIndex_NegativeWidth(t *testing.T) {
	_, err := composite.NewIndex([]int{1, -1})
	require.ErrorIs(t, err, composite.ErrOutOfRange)
}

func TestIndex_Empty(t *testing.T) {
	x, err := composite.NewIndex(nil)
	require.NoError(t, err)
	require.Equal(t, 0, x.Total())
	_, _, err = x.Locate(0)
	require.ErrorIs(t, err, composite.ErrOutOfRange)
}
