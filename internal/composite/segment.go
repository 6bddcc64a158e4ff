// Package composite adjoins independently stored segments into one logical sparse
// matrix or vector with global addressing and sparse iteration.
//
// The package only translates indices and delegates. Segments own their data and may
// block on their own I/O; nothing here is safe for concurrent mutation.
package composite

import "iter"

// Vector is a fixed-size addressable sequence of scalars.
type Vector interface {
	// Size returns the number of logical elements.
	Size() int
	// Get returns the element at i. Fails with ErrOutOfRange.
	Get(i int) (float64, error)
	// Set stores v at i. Fails with ErrOutOfRange, or ErrUnsupported for read-only vectors.
	Set(i int, v float64) error
	// NonZero yields the (index, value) pairs whose value is non-zero.
	// Each call starts a fresh pass.
	NonZero() iter.Seq2[int, float64]
	// All yields every index in [0, Size()) with its current value.
	All() iter.Seq2[int, float64]
	// Like returns an empty vector of the same size and kind.
	Like() Vector
}

// Segment is a fixed-shape addressable store contributing a contiguous range of
// columns to a Matrix.
type Segment interface {
	Rows() int
	Cols() int
	At(row, col int) (float64, error)
	Set(row, col int, v float64) error
	// RowView returns a vector over one row. Writes to it must reach the segment.
	RowView(row int) (Vector, error)
	// ColumnView returns a vector over one column.
	ColumnView(col int) (Vector, error)
	// Like returns a new empty segment of the same kind with the given shape.
	Like(rows, cols int) (Segment, error)
}

// RowAssigner is implemented by segments that can replace a whole row at once.
type RowAssigner interface {
	AssignRow(row int, v Vector) error
}

// ColumnAssigner is implemented by segments that can replace a whole column at once.
type ColumnAssigner interface {
	AssignColumn(col int, v Vector) error
}

// Entry is one (index, value) update.
type Entry struct {
	Index int
	Value float64
}
