package composite

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a row, column or element index is outside the
	// valid bounds. Bounds are checked before any segment is called.
	ErrOutOfRange = errors.New("composite: index out of range")

	// ErrCardinalityMismatch is returned when operand sizes disagree, e.g. a vector of
	// the wrong length or segments with different row counts.
	ErrCardinalityMismatch = errors.New("composite: cardinality mismatch")

	// ErrUnsupported marks an operation a composite or segment does not implement.
	ErrUnsupported = errors.New("composite: operation not supported")

	// ErrRetrieval marks a failure of a segment's backing store. Segments wrap their
	// backend errors with it; the composite returns them unchanged.
	ErrRetrieval = errors.New("composite: retrieval failed")
)

// CardinalityError reports the expected and actual size of a mismatched operand.
// It matches ErrCardinalityMismatch with errors.Is.
type CardinalityError struct {
	What     string
	Expected int
	Actual   int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("composite: %s cardinality mismatch: expected %d, got %d", e.What, e.Expected, e.Actual)
}

// Is reports whether target is ErrCardinalityMismatch.
func (e *CardinalityError) Is(target error) bool {
	return target == ErrCardinalityMismatch
}

func cardinalityError(what string, expected, actual int) error {
	return &CardinalityError{What: what, Expected: expected, Actual: actual}
}

func outOfRange(what string, i, n int) error {
	return fmt.Errorf("%w: %s %d not in [0, %d)", ErrOutOfRange, what, i, n)
}
