package hdf5io

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/go-hdf5/hdf5"
	"gonum.org/v1/gonum/mat"

	"qpimage/internal/logging"
	"qpimage/internal/models"
	"qpimage/pkg/qpimage"
)

// Names of the root datasets of an input file.
const (
	InputPhase     = "phase"
	InputAmplitude = "amplitude"
	InputIntensity = "intensity"
	InputReal      = "real"
	InputImag      = "imag"
)

// Input holds the arrays of an HDF5 input file, keyed by dataset name,
// together with its known metadata.
type Input struct {
	Arrays map[string]*mat.Dense
	Meta   models.Meta
}

// ReadInput reads every 2D dataset of the root group of the HDF5 file at
// path. Groups and datasets of another rank are skipped.
func ReadInput(path string, logger *slog.Logger) (*Input, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	root := f.Root()
	meta, err := readMeta(root)
	if err != nil {
		return nil, err
	}
	members, err := root.Members()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	in := &Input{Arrays: map[string]*mat.Dense{}, Meta: meta}
	for _, name := range members {
		ds, err := root.OpenDataset(name)
		if errors.Is(err, hdf5.ErrNotDataset) {
			logger.Debug("skipping hdf5 group", "name", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}
		if len(ds.Shape()) != 2 {
			logger.Debug("skipping hdf5 dataset", "name", name, "shape", ds.Shape())
			continue
		}
		a, err := readDataset(root, name)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}
		in.Arrays[name] = a
	}
	logger.Debug("read hdf5 input", "path", path, "arrays", len(in.Arrays))
	return in, nil
}

// Data maps the arrays to decoder input. The "real" and "imag" datasets
// form the complex field and must have the same shape.
func (in *Input) Data() (qpimage.Data, error) {
	d := qpimage.Data{
		Phase:     in.Arrays[InputPhase],
		Amplitude: in.Arrays[InputAmplitude],
		Intensity: in.Arrays[InputIntensity],
	}
	re, im := in.Arrays[InputReal], in.Arrays[InputImag]
	if re == nil && im == nil {
		return d, nil
	}
	if re == nil || im == nil {
		return d, fmt.Errorf("%w: the complex field needs both %q and %q",
			qpimage.ErrInvalidArgument, InputReal, InputImag)
	}
	rows, cols := re.Dims()
	if r, c := im.Dims(); r != rows || c != cols {
		return d, &qpimage.ShapeError{What: InputImag, Want: [2]int{rows, cols}, Got: [2]int{r, c}}
	}
	field := mat.NewCDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			field.Set(i, j, complex(re.At(i, j), im.At(i, j)))
		}
	}
	d.Field = field
	return d, nil
}
