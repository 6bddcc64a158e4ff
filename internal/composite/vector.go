package composite

import (
	"container/list"
	"fmt"
	"iter"
)

// VectorView adjoins vectors end to end into one logical vector. Writes go straight to
// the backing vectors. A cache of the non-zero elements is kept in insertion order so
// sparse iteration never scans the full range.
//
// The cache is only maintained for writes made through the view. If a backing vector
// is changed elsewhere, call Resync or build a new view.
type VectorView struct {
	vectors []Vector
	index   *Index

	nonZero   *list.List // of *element, insertion order
	positions map[int]*list.Element
}

type element struct {
	index int
	value float64
}

// NewVectorView adjoins vectors in the given order.
func NewVectorView(vectors ...Vector) (*VectorView, error) {
	widths := make([]int, len(vectors))
	for i, v := range vectors {
		widths[i] = v.Size()
	}
	index, err := NewIndex(widths)
	if err != nil {
		return nil, err
	}
	return newVectorView(append([]Vector(nil), vectors...), index), nil
}

func newVectorView(vectors []Vector, index *Index) *VectorView {
	v := &VectorView{vectors: vectors, index: index}
	v.Resync()
	return v
}

// Resync rebuilds the non-zero cache by scanning every backing vector in order.
func (v *VectorView) Resync() {
	v.nonZero = list.New()
	v.positions = make(map[int]*list.Element)
	for s, vec := range v.vectors {
		offset := v.index.Offset(s)
		for i, val := range vec.NonZero() {
			v.track(offset+i, val)
		}
	}
}

// Size returns the sum of the backing vector sizes.
func (v *VectorView) Size() int { return v.index.Total() }

// NumNonZero returns the number of cached non-zero elements.
func (v *VectorView) NumNonZero() int { return v.nonZero.Len() }

// Get returns the element at global index i.
func (v *VectorView) Get(i int) (float64, error) {
	s, local, err := v.index.Locate(i)
	if err != nil {
		return 0, err
	}
	return v.vectors[s].Get(local)
}

// Set writes val at global index i into the owning vector, then updates the
// non-zero cache. A failed write leaves the cache as it was.
func (v *VectorView) Set(i int, val float64) error {
	s, local, err := v.index.Locate(i)
	if err != nil {
		return err
	}
	if err := v.vectors[s].Set(local, val); err != nil {
		return err
	}
	v.track(i, val)
	return nil
}

// track records val for index i: append when new, update in place when present,
// drop when zero.
func (v *VectorView) track(i int, val float64) {
	e, ok := v.positions[i]
	switch {
	case val == 0:
		if ok {
			v.nonZero.Remove(e)
			delete(v.positions, i)
		}
	case ok:
		e.Value.(*element).value = val
	default:
		v.positions[i] = v.nonZero.PushBack(&element{index: i, value: val})
	}
}

// MergeUpdates applies updates in order through Set. All indices are validated before
// anything is written; later entries for the same index win.
func (v *VectorView) MergeUpdates(updates []Entry) error {
	size := v.Size()
	for _, u := range updates {
		if u.Index < 0 || u.Index >= size {
			return outOfRange("index", u.Index, size)
		}
	}
	for _, u := range updates {
		if err := v.Set(u.Index, u.Value); err != nil {
			return fmt.Errorf("merge update at %d: %w", u.Index, err)
		}
	}
	return nil
}

// NonZero yields the cached non-zero elements in insertion order. A pass visits the
// elements cached when it starts: elements zeroed during the pass are skipped, and
// elements added during the pass are left to the next one.
func (v *VectorView) NonZero() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		pass := make([]*list.Element, 0, v.nonZero.Len())
		for e := v.nonZero.Front(); e != nil; e = e.Next() {
			pass = append(pass, e)
		}
		for _, e := range pass {
			el := e.Value.(*element)
			if v.positions[el.index] != e {
				continue
			}
			if !yield(el.index, el.value) {
				return
			}
		}
	}
}

// All yields every logical index with its current value.
func (v *VectorView) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for s, vec := range v.vectors {
			offset := v.index.Offset(s)
			for i, val := range vec.All() {
				if !yield(offset+i, val) {
					return
				}
			}
		}
	}
}

// Like returns a view over an empty vector of the same kind for each backing vector.
func (v *VectorView) Like() Vector {
	likes := make([]Vector, len(v.vectors))
	for s, vec := range v.vectors {
		likes[s] = vec.Like()
	}
	return newVectorView(likes, v.index)
}

// Concat copies the non-zero elements of vectors, shifted by their offsets, into a new
// vector obtained from newVector.
func Concat(newVector func(size int) Vector, vectors ...Vector) (Vector, error) {
	total := 0
	for _, vec := range vectors {
		total += vec.Size()
	}
	dst := newVector(total)
	if dst.Size() != total {
		return nil, cardinalityError("concatenated vector", total, dst.Size())
	}
	offset := 0
	for _, vec := range vectors {
		for i, val := range vec.NonZero() {
			if err := dst.Set(offset+i, val); err != nil {
				return nil, err
			}
		}
		offset += vec.Size()
	}
	return dst, nil
}

// part is a window of size elements of base starting at offset.
type part struct {
	base   Vector
	offset int
	size   int
}

func (p *part) Size() int { return p.size }

func (p *part) Get(i int) (float64, error) {
	if i < 0 || i >= p.size {
		return 0, outOfRange("index", i, p.size)
	}
	return p.base.Get(p.offset + i)
}

func (p *part) Set(i int, v float64) error {
	if i < 0 || i >= p.size {
		return outOfRange("index", i, p.size)
	}
	return p.base.Set(p.offset+i, v)
}

func (p *part) NonZero() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for i, v := range p.base.NonZero() {
			if i < p.offset || i >= p.offset+p.size {
				continue
			}
			if !yield(i-p.offset, v) {
				return
			}
		}
	}
}

func (p *part) All() iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		for i, v := range p.base.All() {
			if i < p.offset {
				continue
			}
			if i >= p.offset+p.size || !yield(i-p.offset, v) {
				return
			}
		}
	}
}

func (p *part) Like() Vector { return &part{base: p.base.Like(), offset: p.offset, size: p.size} }
