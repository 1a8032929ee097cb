package nrefocus

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func gaussianField(rows, cols int) *mat.CDense {
	f := mat.NewCDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			y := float64(i-rows/2) / 4
			x := float64(j-cols/2) / 4
			pha := 0.8 * math.Exp(-(x*x + y*y))
			f.Set(i, j, cmplx.Rect(1, pha))
		}
	}
	return f
}

func params(d float64, method string) Params {
	return Params{Distance: d, PixelSize: 1e-6, Wavelength: 550e-9, MediumIndex: 1.333, Method: method}
}

func assertFieldsClose(t *testing.T, want, got *mat.CDense, tol float64) {
	t.Helper()
	rows, cols := want.Dims()
	r, c := got.Dims()
	require.Equal(t, [2]int{rows, cols}, [2]int{r, c})
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if d := cmplx.Abs(want.At(i, j) - got.At(i, j)); d > tol {
				t.Fatalf("pixel (%d,%d): want %v, got %v", i, j, want.At(i, j), got.At(i, j))
			}
		}
	}
}

// TestRefocusZeroDistance verifies that a zero distance returns a copy
func TestRefocusZeroDistance(t *testing.T) {
	f := gaussianField(16, 16)
	got, err := Refocus(f, params(0, MethodHelmholtz))
	require.NoError(t, err)
	assertFieldsClose(t, f, got, 0)

	got.Set(0, 0, 0)
	assert.NotEqual(t, complex128(0), f.At(0, 0), "input must not be modified")
}

// TestRefocusPlaneWave verifies that a plane wave keeps its phase
func TestRefocusPlaneWave(t *testing.T) {
	f := mat.NewCDense(8, 12, nil)
	for i := 0; i < 8; i++ {
		for j := 0; j < 12; j++ {
			f.Set(i, j, cmplx.Rect(2, 0.3))
		}
	}
	for _, method := range []string{MethodHelmholtz, MethodFresnel} {
		got, err := Refocus(f, params(5e-6, method))
		require.NoError(t, err)
		assertFieldsClose(t, f, got, 1e-12)
	}
}

// TestRefocusRoundTrip verifies that propagating back and forth restores
// the field
func TestRefocusRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping round trip in short mode")
	}
	f := gaussianField(32, 24)
	for _, method := range []string{MethodHelmholtz, MethodFresnel} {
		there, err := Refocus(f, params(3e-6, method))
		require.NoError(t, err)
		back, err := Refocus(there, params(-3e-6, method))
		require.NoError(t, err)
		assertFieldsClose(t, f, back, 1e-9)
	}
}

// TestRefocusChangesField verifies that propagation is not a no-op
func TestRefocusChangesField(t *testing.T) {
	f := gaussianField(16, 16)
	got, err := Refocus(f, params(20e-6, ""))
	require.NoError(t, err)
	assert.Greater(t, cmplx.Abs(got.At(8, 8)-f.At(8, 8)), 1e-3)
}

// TestRefocusInvalidParams verifies parameter validation
func TestRefocusInvalidParams(t *testing.T) {
	f := gaussianField(4, 4)

	_, err := Refocus(f, params(1e-6, "rayleigh"))
	assert.ErrorIs(t, err, ErrUnsupportedMethod)

	p := params(1e-6, MethodFresnel)
	p.PixelSize = 0
	_, err = Refocus(f, p)
	assert.Error(t, err)

	p = params(math.Inf(1), MethodFresnel)
	_, err = Refocus(f, p)
	assert.Error(t, err)
}

// TestFFTFreq verifies the frequency ordering
func TestFFTFreq(t *testing.T) {
	assert.Equal(t, []float64{0, 0.25, -0.5, -0.25}, fftFreq(4, 1))
	assert.Equal(t, []float64{0, 0.2, 0.4, -0.4, -0.2}, fftFreq(5, 1))
}
