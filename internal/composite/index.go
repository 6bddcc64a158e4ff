package composite

import (
	"fmt"
	"sort"
)

// Index translates between global positions and (segment, local) pairs for an ordered
// list of segment widths. It holds prefix sums so both directions are O(log n) or O(1).
type Index struct {
	// offsets[i] is the global position of segment i's first element;
	// offsets[len] is the total width.
	offsets []int
}

// NewIndex builds an Index over widths. Zero widths are allowed; negative widths are not.
func NewIndex(widths []int) (*Index, error) {
	offsets := make([]int, len(widths)+1)
	for i, w := range widths {
		if w < 0 {
			return nil, fmt.Errorf("%w: segment %d has negative width %d", ErrOutOfRange, i, w)
		}
		offsets[i+1] = offsets[i] + w
	}
	return &Index{offsets: offsets}, nil
}

// Len returns the number of segments.
func (x *Index) Len() int { return len(x.offsets) - 1 }

// Total returns the sum of all widths.
func (x *Index) Total() int { return x.offsets[len(x.offsets)-1] }

// Width returns the width of segment i.
func (x *Index) Width(i int) int { return x.offsets[i+1] - x.offsets[i] }

// Offset returns the global position of segment i's first element.
func (x *Index) Offset(i int) int { return x.offsets[i] }

// Locate maps global position g to its segment and local position.
func (x *Index) Locate(g int) (segment, local int, err error) {
	total := x.Total()
	if g < 0 || g >= total {
		return 0, 0, outOfRange("index", g, total)
	}
	n := x.Len()
	// First segment whose end lies beyond g; zero-width segments never qualify.
	segment = sort.Search(n, func(i int) bool { return x.offsets[i+1] > g })
	return segment, g - x.offsets[segment], nil
}

// Global maps (segment, local) back to a global position.
func (x *Index) Global(segment, local int) (int, error) {
	if segment < 0 || segment >= x.Len() {
		return 0, outOfRange("segment", segment, x.Len())
	}
	if w := x.Width(segment); local < 0 || local >= w {
		return 0, outOfRange("local index", local, w)
	}
	return x.offsets[segment] + local, nil
}
