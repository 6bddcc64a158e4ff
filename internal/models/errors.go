package models

import (
	"errors"
	"fmt"
)

// ErrInvalid marks malformed entity input or queries.
var ErrInvalid = errors.New("invalid input")

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
