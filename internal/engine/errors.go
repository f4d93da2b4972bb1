package engine

import (
	"errors"
	"fmt"
)

// ErrNotOpen is returned by operations on an engine that is not open.
var ErrNotOpen = errors.New("engine: not open")

// FlushError reports a failed flush. The engine stays pending and the
// scheduler retries.
type FlushError struct {
	// Code identifies the error category.
	Code FlushErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause.
	Err error
}

// FlushErrorCode categorizes flush errors.
type FlushErrorCode string

const (
	// ErrCodeNotOpen indicates a flush on an engine that is not open.
	ErrCodeNotOpen FlushErrorCode = "NOT_OPEN"

	// ErrCodePersistFailed indicates the adapter rejected the write.
	ErrCodePersistFailed FlushErrorCode = "PERSIST_FAILED"
)

// Error implements the error interface.
func (e *FlushError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *FlushError) Unwrap() error {
	return e.Err
}

// IsPersistError returns true if err is a flush that failed to write.
// Uses errors.As to handle wrapped errors.
func IsPersistError(err error) bool {
	var fe *FlushError
	if errors.As(err, &fe) {
		return fe.Code == ErrCodePersistFailed
	}
	return false
}

// IsNotOpenError returns true if err reports a closed or unopened engine.
func IsNotOpenError(err error) bool {
	return errors.Is(err, ErrNotOpen)
}

func newPersistError(err error) *FlushError {
	return &FlushError{
		Code:    ErrCodePersistFailed,
		Message: "failed to persist document",
		Err:     err,
	}
}

func newNotOpenError() *FlushError {
	return &FlushError{
		Code:    ErrCodeNotOpen,
		Message: "flush requested before open",
		Err:     ErrNotOpen,
	}
}
