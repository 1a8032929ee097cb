package unwrap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func ramp(rows, cols int, max float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, max*float64(j)/float64(cols-1))
		}
	}
	return m
}

func wrap(m *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Atan2(math.Sin(v), math.Cos(v))
	}, out)
	return out
}

// TestUnwrapIdentityOnSmoothData verifies that smooth data is left untouched
func TestUnwrapIdentityOnSmoothData(t *testing.T) {
	p := ramp(200, 200, math.Pi)
	got := Unwrap2D(p)
	assert.True(t, mat.Equal(p, got))
}

// TestUnwrapWrappedRamp verifies that a wrapped steep ramp is restored
func TestUnwrapWrappedRamp(t *testing.T) {
	p := ramp(20, 50, 12*math.Pi)
	got := Unwrap2D(wrap(p))
	assert.True(t, mat.EqualApprox(p, got, 1e-9))
}

// TestUnwrapVerticalJumps verifies unwrapping along the first column
func TestUnwrapVerticalJumps(t *testing.T) {
	p := mat.NewDense(30, 4, nil)
	for i := 0; i < 30; i++ {
		for j := 0; j < 4; j++ {
			p.Set(i, j, 0.5*float64(i)+0.1*float64(j))
		}
	}
	got := Unwrap2D(wrap(p))
	for i := 0; i < 30; i++ {
		assert.True(t, floats.EqualApprox(p.RawRowView(i), got.RawRowView(i), 1e-9), "row %d", i)
	}
}

// TestUnwrapDoesNotModifyInput verifies that the input array is not changed
func TestUnwrapDoesNotModifyInput(t *testing.T) {
	w := wrap(ramp(5, 5, 8*math.Pi))
	before := mat.DenseCopyOf(w)
	Unwrap2D(w)
	Identity(w)
	assert.True(t, mat.Equal(before, w))
}
