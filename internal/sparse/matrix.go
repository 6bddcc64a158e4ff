package sparse

import (
	"fmt"
	"iter"
	"sort"

	"github.com/hyperjump/contentdb/internal/composite"
)

// Matrix is a row-major dictionary-of-keys matrix. Only non-zero cells are stored.
type Matrix struct {
	rows, cols int
	data       map[int]map[int]float64
}

// NewMatrix returns an all-zero rows×cols matrix.
func NewMatrix(rows, cols int) (*Matrix, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: invalid shape %dx%d", composite.ErrOutOfRange, rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, data: make(map[int]map[int]float64)}, nil
}

// NewMatrixFrom returns a matrix holding a copy of the given rows. All rows must have
// the same length.
func NewMatrixFrom(values [][]float64) (*Matrix, error) {
	cols := 0
	if len(values) > 0 {
		cols = len(values[0])
	}
	m, err := NewMatrix(len(values), cols)
	if err != nil {
		return nil, err
	}
	for r, row := range values {
		if len(row) != cols {
			return nil, &composite.CardinalityError{What: fmt.Sprintf("row %d", r), Expected: cols, Actual: len(row)}
		}
		for c, x := range row {
			m.set(r, c, x)
		}
	}
	return m, nil
}

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// NumNonZero returns the number of stored cells.
func (m *Matrix) NumNonZero() int {
	n := 0
	for _, row := range m.data {
		n += len(row)
	}
	return n
}

func (m *Matrix) check(row, col int) error {
	if row < 0 || row >= m.rows {
		return outOfRange("row", row, m.rows)
	}
	if col < 0 || col >= m.cols {
		return outOfRange("column", col, m.cols)
	}
	return nil
}

// At returns the value at (row, col).
func (m *Matrix) At(row, col int) (float64, error) {
	if err := m.check(row, col); err != nil {
		return 0, err
	}
	return m.data[row][col], nil
}

// Set stores x at (row, col).
func (m *Matrix) Set(row, col int, x float64) error {
	if err := m.check(row, col); err != nil {
		return err
	}
	m.set(row, col, x)
	return nil
}

func (m *Matrix) set(row, col int, x float64) {
	r, ok := m.data[row]
	if x == 0 {
		if ok {
			delete(r, col)
			if len(r) == 0 {
				delete(m.data, row)
			}
		}
		return
	}
	if !ok {
		r = make(map[int]float64)
		m.data[row] = r
	}
	r[col] = x
}

// RowView returns a write-through view of row row.
func (m *Matrix) RowView(row int) (composite.Vector, error) {
	if row < 0 || row >= m.rows {
		return nil, outOfRange("row", row, m.rows)
	}
	return &rowView{m: m, row: row}, nil
}

// ColumnView returns a write-through view of column col.
func (m *Matrix) ColumnView(col int) (composite.Vector, error) {
	if col < 0 || col >= m.cols {
		return nil, outOfRange("column", col, m.cols)
	}
	return &columnView{m: m, col: col}, nil
}

// Like returns an empty sparse matrix of the given shape.
func (m *Matrix) Like(rows, cols int) (composite.Segment, error) {
	l, err := NewMatrix(rows, cols)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// AssignRow replaces row row with the contents of v.
func (m *Matrix) AssignRow(row int, v composite.Vector) error {
	if row < 0 || row >= m.rows {
		return outOfRange("row", row, m.rows)
	}
	if v.Size() != m.cols {
		return &composite.CardinalityError{What: "row", Expected: m.cols, Actual: v.Size()}
	}
	cells := collect(v)
	delete(m.data, row)
	for _, e := range cells {
		m.set(row, e.Index, e.Value)
	}
	return nil
}

// AssignColumn replaces column col with the contents of v.
func (m *Matrix) AssignColumn(col int, v composite.Vector) error {
	if col < 0 || col >= m.cols {
		return outOfRange("column", col, m.cols)
	}
	if v.Size() != m.rows {
		return &composite.CardinalityError{What: "column", Expected: m.rows, Actual: v.Size()}
	}
	cells := collect(v)
	for r := range m.data {
		m.set(r, col, 0)
	}
	for _, e := range cells {
		m.set(e.Index, col, e.Value)
	}
	return nil
}

// collect reads the non-zero elements of v up front, so v may be a view of the cells
// about to be overwritten.
func collect(v composite.Vector) []composite.Entry {
	var out []composite.Entry
	for i, x := range v.NonZero() {
		out = append(out, composite.Entry{Index: i, Value: x})
	}
	return out
}

type rowView struct {
	m   *Matrix
	row int
}

func (v *rowView) Size() int { return v.m.cols }

func (v *rowView) Get(i int) (float64, error) { return v.m.At(v.row, i) }

func (v *rowView) Set(i int, x float64) error { return v.m.Set(v.row, i, x) }

func (v *rowView) NonZero() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for _, c := range sortedKeys(v.m.data[v.row]) {
			x, ok := v.m.data[v.row][c]
			if !ok {
				continue
			}
			if !yield(c, x) {
				return
			}
		}
	}
}

func (v *rowView) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for c := 0; c < v.m.cols; c++ {
			if !yield(c, v.m.data[v.row][c]) {
				return
			}
		}
	}
}

func (v *rowView) Like() composite.Vector { return NewVector(v.m.cols) }

type columnView struct {
	m   *Matrix
	col int
}

func (v *columnView) Size() int { return v.m.rows }

func (v *columnView) Get(i int) (float64, error) { return v.m.At(i, v.col) }

func (v *columnView) Set(i int, x float64) error { return v.m.Set(i, v.col, x) }

func (v *columnView) NonZero() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		rows := make([]int, 0, len(v.m.data))
		for r, cells := range v.m.data {
			if _, ok := cells[v.col]; ok {
				rows = append(rows, r)
			}
		}
		sort.Ints(rows)
		for _, r := range rows {
			x, ok := v.m.data[r][v.col]
			if !ok {
				continue
			}
			if !yield(r, x) {
				return
			}
		}
	}
}

func (v *columnView) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for r := 0; r < v.m.rows; r++ {
			if !yield(r, v.m.data[r][v.col]) {
				return
			}
		}
	}
}

func (v *columnView) Like() composite.Vector { return NewVector(v.m.rows) }
