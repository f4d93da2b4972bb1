package crdt

import (
	"errors"
	"fmt"
)

// ErrEmptyActor is returned by Change when no actor id is given.
var ErrEmptyActor = errors.New("crdt: actor id must not be empty")

// DecodeError reports malformed document bytes passed to Load.
type DecodeError struct {
	// Reason is a short description of what was wrong.
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode document: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}
