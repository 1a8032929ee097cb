// Package nrefocus numerically propagates a complex optical field along the
// optical axis.
package nrefocus

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Propagation methods.
const (
	// MethodHelmholtz propagates with the exact angular spectrum kernel
	MethodHelmholtz = "helmholtz"
	// MethodFresnel propagates with the paraxial (Fresnel) kernel
	MethodFresnel = "fresnel"
)

// ErrUnsupportedMethod is returned for an unknown propagation method.
var ErrUnsupportedMethod = errors.New("unsupported method")

// Params describe a propagation.
type Params struct {
	// Distance is the propagation distance in meters
	Distance float64
	// PixelSize is the sampling distance of the field in meters
	PixelSize float64
	// Wavelength is the vacuum wavelength in meters
	Wavelength float64
	// MediumIndex is the refractive index of the medium; 0 means 1
	MediumIndex float64
	// Method is MethodHelmholtz or MethodFresnel; empty means MethodHelmholtz
	Method string
}

func (p Params) validate() (Params, error) {
	p.Method = strings.ToLower(strings.TrimSpace(p.Method))
	if p.Method == "" {
		p.Method = MethodHelmholtz
	}
	if p.Method != MethodHelmholtz && p.Method != MethodFresnel {
		return p, fmt.Errorf("%w: %q", ErrUnsupportedMethod, p.Method)
	}
	if p.MediumIndex == 0 {
		p.MediumIndex = 1
	}
	if !(p.PixelSize > 0) || !(p.Wavelength > 0) || !(p.MediumIndex > 0) {
		return p, fmt.Errorf("pixel size, wavelength and medium index must be positive")
	}
	if math.IsNaN(p.Distance) || math.IsInf(p.Distance, 0) {
		return p, fmt.Errorf("distance must be finite")
	}
	return p, nil
}

// Refocus propagates field by p.Distance and returns the new field. The
// input is not modified.
//
// The kernel is normalized by the plane wave term exp(i·k·d), so a field
// of constant phase keeps its phase. Evanescent components are dropped by
// the Helmholtz kernel.
func Refocus(field *mat.CDense, p Params) (*mat.CDense, error) {
	p, err := p.validate()
	if err != nil {
		return nil, err
	}
	rows, cols := field.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty field")
	}
	if p.Distance == 0 {
		out := mat.NewCDense(rows, cols, nil)
		out.Copy(field)
		return out, nil
	}

	spectrum, rows, cols := fft2D(field)
	km := 2 * math.Pi * p.MediumIndex / p.Wavelength
	fy := fftFreq(rows, p.PixelSize)
	fx := fftFreq(cols, p.PixelSize)

	for i := 0; i < rows; i++ {
		ky := 2 * math.Pi * fy[i]
		for j := 0; j < cols; j++ {
			kx := 2 * math.Pi * fx[j]
			spectrum[i*cols+j] *= kernel(p.Method, km, kx*kx+ky*ky, p.Distance)
		}
	}
	return ifft2D(spectrum, rows, cols), nil
}

// kernel returns the transfer function for the squared transverse wave
// number kt2.
func kernel(method string, km, kt2, d float64) complex128 {
	var kz float64
	switch method {
	case MethodFresnel:
		kz = -kt2 / (2 * km)
	default:
		if kt2 > km*km {
			return 0
		}
		kz = math.Sqrt(km*km-kt2) - km
	}
	return cmplx.Exp(complex(0, kz*d))
}
