package imagedata

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrInvalidKey      = errors.New("invalid background key")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotInitialized  = errors.New("raw data not initialized")
	ErrNonFinite       = errors.New("non-finite values in composite")
)

// ShapeError reports two arrays that should share a shape but do not.
type ShapeError struct {
	// What names the array that was rejected, e.g. "phase/ramp"
	What string
	// Want is the shape the array had to match
	Want [2]int
	// Got is the shape of the rejected array
	Got [2]int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: shape %dx%d does not match %dx%d",
		e.What, e.Got[0], e.Got[1], e.Want[0], e.Want[1])
}

// Is makes errors.Is(err, ErrShapeMismatch) hold for every ShapeError.
func (e *ShapeError) Is(target error) bool {
	return target == ErrShapeMismatch
}
