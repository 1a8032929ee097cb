package qpimage

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/mat"

	"qpimage/pkg/unwrap"
)

// Encoding describes how input data represents amplitude and phase.
type Encoding string

const (
	// EncodingField is a complex field amp·exp(i·pha)
	EncodingField Encoding = "field"
	// EncodingPhase is a phase array with unit amplitude
	EncodingPhase Encoding = "phase"
	// EncodingPhaseAmplitude is a phase array with an amplitude array
	EncodingPhaseAmplitude Encoding = "phase,amplitude"
	// EncodingPhaseIntensity is a phase array with an intensity array
	EncodingPhaseIntensity Encoding = "phase,intensity"
)

// Encodings returns all supported encodings.
func Encodings() []Encoding {
	return []Encoding{EncodingField, EncodingPhase, EncodingPhaseAmplitude, EncodingPhaseIntensity}
}

// ParseEncoding validates an encoding tag. Blanks around the comma are
// ignored.
func ParseEncoding(s string) (Encoding, error) {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	tag := Encoding(strings.Join(parts, ","))
	for _, e := range Encodings() {
		if e == tag {
			return e, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEncoding, s)
}

// Data holds input data in one of the supported encodings. Only the members
// used by the encoding need to be set.
type Data struct {
	Field     *mat.CDense
	Phase     *mat.Dense
	Amplitude *mat.Dense
	Intensity *mat.Dense
}

// Decode converts data to an amplitude and a phase array. The phase is
// always passed through uw, the amplitude never is. A nil uw selects
// unwrap.Unwrap2D.
func Decode(data Data, enc Encoding, uw unwrap.Func) (amp, pha *mat.Dense, err error) {
	if uw == nil {
		uw = unwrap.Unwrap2D
	}
	enc, err = ParseEncoding(string(enc))
	if err != nil {
		return nil, nil, err
	}

	switch enc {
	case EncodingField:
		if data.Field == nil {
			return nil, nil, missing(enc, "field")
		}
		rows, cols := data.Field.Dims()
		if rows == 0 || cols == 0 {
			return nil, nil, missing(enc, "field")
		}
		amp = mat.NewDense(rows, cols, nil)
		angle := mat.NewDense(rows, cols, nil)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				v := data.Field.At(i, j)
				amp.Set(i, j, cmplx.Abs(v))
				angle.Set(i, j, cmplx.Phase(v))
			}
		}
		return amp, uw(angle), nil

	case EncodingPhase:
		if err := present(enc, "phase", data.Phase); err != nil {
			return nil, nil, err
		}
		rows, cols := data.Phase.Dims()
		ones := make([]float64, rows*cols)
		for i := range ones {
			ones[i] = 1
		}
		return mat.NewDense(rows, cols, ones), uw(data.Phase), nil

	case EncodingPhaseAmplitude:
		if err := pair(enc, data.Phase, "amplitude", data.Amplitude); err != nil {
			return nil, nil, err
		}
		return mat.DenseCopyOf(data.Amplitude), uw(data.Phase), nil

	default:
		if err := pair(enc, data.Phase, "intensity", data.Intensity); err != nil {
			return nil, nil, err
		}
		amp = mat.DenseCopyOf(data.Intensity)
		negative := 0
		amp.Apply(func(_, _ int, v float64) float64 {
			if v < 0 {
				negative++
			}
			return math.Sqrt(v)
		}, amp)
		if negative > 0 {
			return nil, nil, fmt.Errorf("%w: %d negative intensity values", ErrInvalidArgument, negative)
		}
		return amp, uw(data.Phase), nil
	}
}

func missing(enc Encoding, member string) error {
	return fmt.Errorf("%w: encoding %q requires %s data", ErrInvalidArgument, enc, member)
}

func present(enc Encoding, member string, a *mat.Dense) error {
	if a == nil || a.IsEmpty() {
		return missing(enc, member)
	}
	return nil
}

// pair checks the phase array and the second member of a pair encoding.
func pair(enc Encoding, phase *mat.Dense, member string, other *mat.Dense) error {
	if err := present(enc, "phase", phase); err != nil {
		return err
	}
	if err := present(enc, member, other); err != nil {
		return err
	}
	pr, pc := phase.Dims()
	or, oc := other.Dims()
	if pr != or || pc != oc {
		return &ShapeError{What: string(enc), Want: [2]int{pr, pc}, Got: [2]int{or, oc}}
	}
	return nil
}
