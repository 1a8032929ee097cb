package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Viewer renders a 2D image field, such as a phase or amplitude array, as a
// 16-bit grayscale image. Values are scaled linearly from [min, max] to the
// full gray range.
type Viewer struct {
	// data holds the field, rows map to image lines
	data *mat.Dense

	// dimensions of the field
	rows int
	cols int

	// display range
	min float64
	max float64
}

// NewViewer creates a viewer whose display range spans the finite values of
// data.
func NewViewer(data *mat.Dense) *Viewer {
	rows, cols := data.Dims()
	v := &Viewer{data: data, rows: rows, cols: cols}
	v.min, v.max = finiteRange(data)
	return v
}

// finiteRange returns the smallest and largest finite values of a. It
// returns (0, 0) when there are none.
func finiteRange(a *mat.Dense) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	rows, _ := a.Dims()
	for i := 0; i < rows; i++ {
		for _, v := range a.RawRowView(i) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// SetRange overrides the display range.
func (v *Viewer) SetRange(min, max float64) error {
	if !(max > min) {
		return fmt.Errorf("invalid display range [%g, %g]", min, max)
	}
	v.min, v.max = min, max
	return nil
}

// Range returns the display range.
func (v *Viewer) Range() (min, max float64) {
	return v.min, v.max
}

// gray maps a value to a gray level. Non-finite values are black.
func (v *Viewer) gray(x float64) uint16 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	span := v.max - v.min
	if span <= 0 {
		return 0
	}
	return uint16(math.Max(0, math.Min(65535, (x-v.min)/span*65535)))
}

// Render draws the whole field.
func (v *Viewer) Render() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, v.cols, v.rows))
	for y := 0; y < v.rows; y++ {
		row := v.data.RawRowView(y)
		for x, val := range row {
			img.SetGray16(x, y, color.Gray16{Y: v.gray(val)})
		}
	}
	return img
}

// ExtractRegion returns a copy of a rectangular region of the field.
func (v *Viewer) ExtractRegion(startRow, startCol, rows, cols int) (*mat.Dense, error) {
	if startRow < 0 || startCol < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}

	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}

	if startRow+rows > v.rows || startCol+cols > v.cols {
		return nil, fmt.Errorf("region extends beyond field boundaries")
	}

	return mat.DenseCopyOf(v.data.Slice(startRow, startRow+rows, startCol, startCol+cols)), nil
}

// Save renders the field and writes it to filename.
func (v *Viewer) Save(filename string) error {
	return SaveImage(v.Render(), filename)
}

// SaveImage writes img to filename. The format follows the file extension:
// ".png" or ".jpg"/".jpeg".
func SaveImage(img image.Image, filename string) error {
	var encode func(*os.File) error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		encode = func(f *os.File) error { return png.Encode(f, img) }
	case ".jpg", ".jpeg":
		encode = func(f *os.File) error { return jpeg.Encode(f, img, &jpeg.Options{Quality: 90}) }
	default:
		return fmt.Errorf("unsupported image format %q (must be .png, .jpg or .jpeg)", filepath.Ext(filename))
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Render draws a with its own display range.
func Render(a *mat.Dense) *image.Gray16 {
	return NewViewer(a).Render()
}
