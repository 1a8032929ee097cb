package store

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound    = errors.New("object not found")
	ErrClosed      = errors.New("store is closed")
	ErrReadOnly    = errors.New("store is read-only")
	ErrInvalidName = errors.New("invalid object name")
	ErrCorrupt     = errors.New("corrupt dataset")
	ErrEmptyArray  = errors.New("empty array")
)

// AccessError reports a failure of the underlying storage engine while
// opening, reading or writing a store.
type AccessError struct {
	Op       string
	Location string
	Err      error
}

func (e *AccessError) Error() string {
	loc := e.Location
	if loc == "" {
		loc = "memory"
	}
	return fmt.Sprintf("store %s (%s): %v", e.Op, loc, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }
