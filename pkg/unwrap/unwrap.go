// Package unwrap provides the default 2D phase unwrapping routine.
package unwrap

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Func maps a wrapped 2D phase array to an unwrapped one. Implementations
// must be deterministic and must not modify their input.
type Func func(wrapped *mat.Dense) *mat.Dense

// Unwrap2D unwraps phase data by integrating wrapped differences, first down
// the first column and then along every row.
//
// Each pixel is shifted by a whole number of cycles only. Input that has no
// jumps larger than π between neighbours is therefore returned unchanged,
// bit for bit.
func Unwrap2D(wrapped *mat.Dense) *mat.Dense {
	rows, cols := wrapped.Dims()
	out := mat.NewDense(rows, cols, nil)

	cycles := 0.0
	for i := 0; i < rows; i++ {
		row := wrapped.RawRowView(i)
		if i > 0 {
			cycles = step(cycles, wrapped.At(i-1, 0), row[0])
		}
		k := cycles
		dst := out.RawRowView(i)
		dst[0] = row[0] + 2*math.Pi*k
		for j := 1; j < cols; j++ {
			k = step(k, row[j-1], row[j])
			dst[j] = row[j] + 2*math.Pi*k
		}
	}
	return out
}

// step returns the cycle offset of next given the offset of prev.
func step(k, prev, next float64) float64 {
	d := next - prev
	if math.IsNaN(d) {
		return k
	}
	return k - math.Round(d/(2*math.Pi))
}

// Identity returns a copy of its input. It serves data that is known to be
// unwrapped already.
func Identity(wrapped *mat.Dense) *mat.Dense {
	return mat.DenseCopyOf(wrapped)
}
