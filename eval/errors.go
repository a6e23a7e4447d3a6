package eval

import (
	"errors"
	"fmt"
)

// ErrResourceExhausted is returned when evaluation reaches its iteration
// limit before completing.
var ErrResourceExhausted = errors.New("eval: resource exhausted")

// ExhaustedError carries the limit that was reached. It wraps
// ErrResourceExhausted.
type ExhaustedError struct {
	Limit int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("eval: resource exhausted after %d iterations", e.Limit)
}

func (e *ExhaustedError) Unwrap() error { return ErrResourceExhausted }

func isExhausted(err error) bool {
	return errors.Is(err, ErrResourceExhausted)
}
