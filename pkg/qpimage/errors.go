package qpimage

import (
	"errors"

	"qpimage/pkg/imagedata"
	"qpimage/pkg/nrefocus"
	"qpimage/pkg/store"
)

// Errors returned by QPImage operations. Most of them originate in the
// field and store layers and are re-exported here so that callers only need
// this package for errors.Is checks.
var (
	ErrInvalidEncoding   = errors.New("invalid encoding")
	ErrUnsupportedMethod = nrefocus.ErrUnsupportedMethod

	ErrShapeMismatch   = imagedata.ErrShapeMismatch
	ErrInvalidKey      = imagedata.ErrInvalidKey
	ErrInvalidArgument = imagedata.ErrInvalidArgument
	ErrNotInitialized  = imagedata.ErrNotInitialized
	ErrNonFinite       = imagedata.ErrNonFinite
)

// ShapeError reports arrays that must share a shape but do not.
type ShapeError = imagedata.ShapeError

// StoreAccessError wraps a failure of the backing store.
type StoreAccessError = store.AccessError
