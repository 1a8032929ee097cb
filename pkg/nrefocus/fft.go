package nrefocus

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// fft2D performs a 2D Fast Fourier Transform of a complex field.
// Rows are transformed first, then columns, both with gonum's complex FFT.
//
// Parameters:
//   - field: Complex input field
//
// Returns:
//   - The unnormalized 2D spectrum as a row-major slice
func fft2D(field *mat.CDense) ([]complex128, int, int) {
	rows, cols := field.Dims()
	spectrum := make([]complex128, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			spectrum[i*cols+j] = field.At(i, j)
		}
	}
	transform2D(spectrum, rows, cols, false)
	return spectrum, rows, cols
}

// ifft2D inverts fft2D, including the 1/(rows·cols) normalization.
func ifft2D(spectrum []complex128, rows, cols int) *mat.CDense {
	transform2D(spectrum, rows, cols, true)
	scale := complex(1/float64(rows*cols), 0)
	out := mat.NewCDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, spectrum[i*cols+j]*scale)
		}
	}
	return out
}

// transform2D transforms data in place along both axes.
func transform2D(data []complex128, rows, cols int, inverse bool) {
	apply := func(fft *fourier.CmplxFFT, seq []complex128) {
		if inverse {
			fft.Sequence(seq, seq)
		} else {
			fft.Coefficients(seq, seq)
		}
	}

	rowFFT := fourier.NewCmplxFFT(cols)
	for i := 0; i < rows; i++ {
		apply(rowFFT, data[i*cols:(i+1)*cols])
	}

	colFFT := fourier.NewCmplxFFT(rows)
	col := make([]complex128, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			col[i] = data[i*cols+j]
		}
		apply(colFFT, col)
		for i := 0; i < rows; i++ {
			data[i*cols+j] = col[i]
		}
	}
}

// fftFreq returns the sample frequencies of an n point transform with
// sample spacing d, in the standard order (zero, positive, negative).
func fftFreq(n int, d float64) []float64 {
	f := make([]float64, n)
	for k := 0; k < n; k++ {
		if k < (n+1)/2 {
			f[k] = float64(k) / (float64(n) * d)
		} else {
			f[k] = float64(k-n) / (float64(n) * d)
		}
	}
	return f
}
