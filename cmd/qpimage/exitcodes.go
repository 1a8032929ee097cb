package main

import (
	"errors"

	"qpimage/pkg/qpimage"
)

// Process exit codes
const (
	CLIExitSuccess        = 0 // Operation completed successfully
	CLIExitError          = 1 // Operation failed for another reason
	CLIExitUsage          = 2 // Invalid arguments or flags
	CLIExitEncoding       = 3 // Input data could not be decoded
	CLIExitShape          = 4 // Array shapes do not match
	CLIExitStore          = 5 // Store could not be opened, read or written
	CLIExitNotInitialized = 6 // Image has no raw data
	CLIExitInvalidKey     = 7 // Unknown background key
)

// usageError marks errors caused by the command line itself.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	var usage *usageError
	var access *qpimage.StoreAccessError
	switch {
	case err == nil:
		return CLIExitSuccess
	case errors.As(err, &usage):
		return CLIExitUsage
	case errors.Is(err, qpimage.ErrInvalidEncoding):
		return CLIExitEncoding
	case errors.Is(err, qpimage.ErrShapeMismatch):
		return CLIExitShape
	case errors.As(err, &access):
		return CLIExitStore
	case errors.Is(err, qpimage.ErrNotInitialized):
		return CLIExitNotInitialized
	case errors.Is(err, qpimage.ErrInvalidKey):
		return CLIExitInvalidKey
	case errors.Is(err, qpimage.ErrInvalidArgument), errors.Is(err, qpimage.ErrUnsupportedMethod):
		return CLIExitUsage
	default:
		return CLIExitError
	}
}
