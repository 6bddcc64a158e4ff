package composite

import "fmt"

// Matrix adjoins segments with the same row count side by side. Column c of the
// matrix is column Locate(c) of the owning segment. The matrix holds the segments, it
// does not copy their data.
type Matrix struct {
	segments []Segment
	index    *Index
	rows     int
}

// NewMatrix adjoins segments in the given order. All segments must report the same
// row count; their column counts are captured now and must not change afterwards.
func NewMatrix(segments ...Segment) (*Matrix, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: at least one segment is required", ErrCardinalityMismatch)
	}
	rows := segments[0].Rows()
	widths := make([]int, len(segments))
	for i, s := range segments {
		if s.Rows() != rows {
			return nil, cardinalityError("row", rows, s.Rows())
		}
		widths[i] = s.Cols()
	}
	index, err := NewIndex(widths)
	if err != nil {
		return nil, err
	}
	return &Matrix{
		segments: append([]Segment(nil), segments...),
		index:    index,
		rows:     rows,
	}, nil
}

// Rows returns the shared segment row count.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the sum of the segment column counts.
func (m *Matrix) Cols() int { return m.index.Total() }

// Segments returns the adjoined segments in order.
func (m *Matrix) Segments() []Segment {
	return append([]Segment(nil), m.segments...)
}

// Index returns the column index translating matrix columns to segment columns.
func (m *Matrix) Index() *Index { return m.index }

// Locate returns the segment ordinal and local column for a matrix column.
func (m *Matrix) Locate(col int) (segment, local int, err error) {
	return m.index.Locate(col)
}

func (m *Matrix) checkRow(row int) error {
	if row < 0 || row >= m.rows {
		return outOfRange("row", row, m.rows)
	}
	return nil
}

// At returns the value at (row, col).
func (m *Matrix) At(row, col int) (float64, error) {
	if err := m.checkRow(row); err != nil {
		return 0, err
	}
	s, local, err := m.index.Locate(col)
	if err != nil {
		return 0, err
	}
	return m.segments[s].At(row, local)
}

// Set stores v at (row, col) in the owning segment.
func (m *Matrix) Set(row, col int, v float64) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	s, local, err := m.index.Locate(col)
	if err != nil {
		return err
	}
	return m.segments[s].Set(row, local, v)
}

// AssignColumn replaces column col with v. v must have Rows() elements.
func (m *Matrix) AssignColumn(col int, v Vector) error {
	if v.Size() != m.rows {
		return cardinalityError("column", m.rows, v.Size())
	}
	s, local, err := m.index.Locate(col)
	if err != nil {
		return err
	}
	seg := m.segments[s]
	if a, ok := seg.(ColumnAssigner); ok {
		return a.AssignColumn(local, v)
	}
	view, err := seg.ColumnView(local)
	if err != nil {
		return err
	}
	return copyInto(view, v)
}

// AssignRow replaces row row with v. v must have Cols() elements; it is split at the
// segment boundaries and each part is assigned to its segment in order. A failing
// segment stops the assignment and earlier segments stay modified.
func (m *Matrix) AssignRow(row int, v Vector) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	if v.Size() != m.Cols() {
		return cardinalityError("row", m.Cols(), v.Size())
	}
	for s, seg := range m.segments {
		p := &part{base: v, offset: m.index.Offset(s), size: m.index.Width(s)}
		if a, ok := seg.(RowAssigner); ok {
			if err := a.AssignRow(row, p); err != nil {
				return err
			}
			continue
		}
		view, err := seg.RowView(row)
		if err != nil {
			return err
		}
		if err := copyInto(view, p); err != nil {
			return err
		}
	}
	return nil
}

// RowView returns a new read/write-through vector over row row built from each
// segment's row view. Nothing is cached between calls.
func (m *Matrix) RowView(row int) (*VectorView, error) {
	if err := m.checkRow(row); err != nil {
		return nil, err
	}
	vectors := make([]Vector, len(m.segments))
	for s, seg := range m.segments {
		v, err := seg.RowView(row)
		if err != nil {
			return nil, err
		}
		if v.Size() != m.index.Width(s) {
			return nil, cardinalityError(fmt.Sprintf("segment %d row view", s), m.index.Width(s), v.Size())
		}
		vectors[s] = v
	}
	return newVectorView(vectors, m.index), nil
}

// ColumnView returns the owning segment's view of column col. A column never spans
// segments so it is returned unwrapped.
func (m *Matrix) ColumnView(col int) (Vector, error) {
	s, local, err := m.index.Locate(col)
	if err != nil {
		return nil, err
	}
	return m.segments[s].ColumnView(local)
}

// Like returns an empty matrix of the same shape, adjoining an equivalently shaped
// empty segment for each segment.
func (m *Matrix) Like() (*Matrix, error) {
	likes := make([]Segment, len(m.segments))
	for s, seg := range m.segments {
		l, err := seg.Like(m.rows, m.index.Width(s))
		if err != nil {
			return nil, err
		}
		likes[s] = l
	}
	return NewMatrix(likes...)
}

// LikeShape is not supported: a composite has no single representation for an
// arbitrary shape.
func (m *Matrix) LikeShape(rows, cols int) (*Matrix, error) {
	return nil, fmt.Errorf("%w: like(%d, %d) on a composite matrix", ErrUnsupported, rows, cols)
}

// ViewPart is not supported: sub-ranges may span segment boundaries. Slice the
// segments instead.
func (m *Matrix) ViewPart(rowOffset, colOffset, rows, cols int) (*Matrix, error) {
	return nil, fmt.Errorf("%w: view part [%d:%d, %d:%d] of a composite matrix",
		ErrUnsupported, rowOffset, rowOffset+rows, colOffset, colOffset+cols)
}

// copyInto writes every element of src into dst. src is read fully before the first
// write so dst may be a view of the same cells.
func copyInto(dst, src Vector) error {
	values := make([]float64, src.Size())
	for i := range values {
		x, err := src.Get(i)
		if err != nil {
			return err
		}
		values[i] = x
	}
	for i, x := range values {
		if err := dst.Set(i, x); err != nil {
			return err
		}
	}
	return nil
}
