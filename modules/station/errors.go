package station

import (
	"errors"
	"fmt"
)

// ErrMalformedStatus is returned when the status document has no usable
// icestats/source shape.
var ErrMalformedStatus = errors.New("malformed status document")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedStatus, fmt.Sprintf(format, args...))
}

// NetworkError covers transport failures, timeouts, unexpected HTTP status
// codes and undecodable bodies.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
