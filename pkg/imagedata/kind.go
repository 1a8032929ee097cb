package imagedata

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"qpimage/internal/models"
)

// Kind selects how a field combines with its background.
type Kind int

const (
	// Amplitude fields combine multiplicatively; the background is divided out
	Amplitude Kind = iota
	// Phase fields combine additively; the background is subtracted
	Phase
)

func (k Kind) String() string {
	switch k {
	case Amplitude:
		return "amplitude"
	case Phase:
		return "phase"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Group is the store group holding the field.
func (k Kind) Group() string {
	if k == Amplitude {
		return models.GroupAmplitude
	}
	return models.GroupPhase
}

// Neutral is the value of an empty background.
func (k Kind) Neutral() float64 {
	if k == Amplitude {
		return 1
	}
	return 0
}

// combine applies the background contribution s to dst in place.
func (k Kind) combine(dst, s []float64) {
	if k == Amplitude {
		floats.Mul(dst, s)
		return
	}
	floats.Add(dst, s)
}

// remove takes the background s out of dst in place.
func (k Kind) remove(dst, s []float64) {
	if k == Amplitude {
		floats.Div(dst, s)
		return
	}
	floats.Sub(dst, s)
}

// Key names a background component.
type Key string

// Background component keys.
const (
	KeyData Key = "data"
	KeyRamp Key = "ramp"
	KeyFit  Key = "fit"
)

// Keys returns the background keys in combination order.
func Keys() []Key {
	return []Key{KeyData, KeyRamp, KeyFit}
}

// ParseKey validates a background key name.
func ParseKey(s string) (Key, error) {
	for _, k := range Keys() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
}

// Valid reports whether k is a known background key.
func (k Key) Valid() bool {
	_, err := ParseKey(string(k))
	return err == nil
}
