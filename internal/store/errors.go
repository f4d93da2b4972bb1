package store

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Get and Set before Connect succeeded or
// after Close.
var ErrNotConnected = errors.New("store: not connected")

// ConnectError reports a failed Connect.
type ConnectError struct {
	Path string
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("store: connect: %v", e.Err)
	}
	return fmt.Sprintf("store: connect %s: %v", e.Path, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WriteError reports a failed Set or SetBatch. Nothing was stored.
type WriteError struct {
	Keys []string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store: write %v: %v", e.Keys, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError reports a failed Get.
type ReadError struct {
	Key string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("store: read %q: %v", e.Key, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// IsConnectError reports whether err is or wraps a *ConnectError.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}

// IsWriteError reports whether err is or wraps a *WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// IsReadError reports whether err is or wraps a *ReadError.
func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}

func entryKeys(entries []Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}
