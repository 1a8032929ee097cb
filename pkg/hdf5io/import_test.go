package hdf5io

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/robert-malhotra/go-hdf5/hdf5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"qpimage/internal/logging"
	"qpimage/internal/models"
	"qpimage/pkg/imagedata"
	"qpimage/pkg/store"
)

func memoryStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// writeFixture creates an HDF5 file with the image groups. fill adds
// content to each group.
func writeFixture(t *testing.T, fill func(g *hdf5.Group)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.h5")
	f, err := hdf5.Create(path)
	require.NoError(t, err)
	for _, name := range models.Groups() {
		g, err := f.Root().CreateGroup(name)
		require.NoError(t, err)
		if fill != nil {
			fill(g)
		}
	}
	require.NoError(t, f.Close())
	return path
}

// TestImportMissingFile verifies that a missing file is reported
func TestImportMissingFile(t *testing.T) {
	_, err := Import(filepath.Join(t.TempDir(), "nope.h5"), memoryStore(t), logging.Discard())
	assert.Error(t, err)
}

// TestImportEmptyGroups verifies that a file with empty groups imports
// cleanly
func TestImportEmptyGroups(t *testing.T) {
	path := writeFixture(t, nil)
	st := memoryStore(t)

	sum, err := Import(path, st, logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, sum.Datasets)
	assert.Empty(t, sum.Meta)

	groups, err := st.Groups()
	require.NoError(t, err)
	assert.Equal(t, []string{models.GroupAmplitude, models.GroupPhase}, groups)
}

// TestImportSkipsUnknownMembers verifies that only image datasets are read
func TestImportSkipsUnknownMembers(t *testing.T) {
	path := writeFixture(t, func(g *hdf5.Group) {
		_, err := g.CreateDataset("histogram", []float64{1, 2, 3})
		require.NoError(t, err)
	})
	st := memoryStore(t)

	sum, err := Import(path, st, logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, sum.Datasets)

	ok, err := st.HasDataset(models.GroupPhase, "histogram")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestImportRejectsFlatData verifies that image datasets must be 2D
func TestImportRejectsFlatData(t *testing.T) {
	path := writeFixture(t, func(g *hdf5.Group) {
		_, err := g.CreateDataset(models.DatasetRaw, []float64{1, 2, 3, 4})
		require.NoError(t, err)
	})

	_, err := Import(path, memoryStore(t), logging.Discard())
	assert.ErrorIs(t, err, imagedata.ErrInvalidArgument)
}

// TestImportMissingGroup verifies that both image groups are required
func TestImportMissingGroup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.h5")
	f, err := hdf5.Create(path)
	require.NoError(t, err)
	_, err = f.Root().CreateGroup(models.GroupAmplitude)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Import(path, memoryStore(t), logging.Discard())
	assert.Error(t, err)
}

// grid returns a rows x cols matrix with the values fn(i, j).
func grid(rows, cols int, fn func(i, j int) float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, fn(i, j))
		}
	}
	return m
}

// TestImportFixture verifies the import of an image written by h5py,
// including its 2D datasets and root metadata
func TestImportFixture(t *testing.T) {
	st := memoryStore(t)

	sum, err := Import(filepath.Join("testdata", "image.h5"), st, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"amplitude/raw", "phase/raw", "phase/ramp"}, sum.Datasets)
	assert.Empty(t, cmp.Diff(models.Meta{
		models.MetaWavelength: 633e-9,
		models.MetaPixelSize:  3.4e-7,
	}, sum.Meta))

	attrs, err := st.Attrs(store.Root)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"wavelength": 633e-9, "pixel_size": 3.4e-7}, attrs)

	cases := []struct {
		group, name string
		want        *mat.Dense
	}{
		{models.GroupAmplitude, models.DatasetRaw, grid(2, 3, func(i, j int) float64 {
			return 1 + 0.25*float64(i) + 0.125*float64(j)
		})},
		{models.GroupPhase, models.DatasetRaw, grid(2, 3, func(i, j int) float64 {
			return 0.5*float64(i) - 0.25*float64(j)
		})},
		{models.GroupPhase, string(imagedata.KeyRamp), grid(2, 3, func(_, j int) float64 {
			return 0.125 * float64(j)
		})},
	}
	for _, tc := range cases {
		got, err := st.ReadDataset(tc.group, tc.name)
		require.NoError(t, err, "%s/%s", tc.group, tc.name)
		assert.True(t, mat.Equal(tc.want, got), "%s/%s", tc.group, tc.name)
	}

	ok, err := st.HasDataset(models.GroupPhase, "notes")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestReadInput verifies that only the 2D root datasets and known metadata
// of an input file are read
func TestReadInput(t *testing.T) {
	in, err := ReadInput(filepath.Join("testdata", "input.h5"), logging.Discard())
	require.NoError(t, err)

	names := make([]string, 0, len(in.Arrays))
	for name := range in.Arrays {
		names = append(names, name)
	}
	assert.ElementsMatch(t, []string{InputPhase, InputAmplitude, InputIntensity, InputReal, InputImag}, names)
	assert.Empty(t, cmp.Diff(models.Meta{
		models.MetaWavelength: 550e-9,
		models.MetaPixelSize:  1e-7,
		models.MetaTime:       2.5,
	}, in.Meta))

	phase := grid(3, 4, func(i, j int) float64 { return 0.125 * float64(i+j) })
	assert.True(t, mat.Equal(phase, in.Arrays[InputPhase]))
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 4, 9, 16}), in.Arrays[InputIntensity]))

	_, err = ReadInput(filepath.Join(t.TempDir(), "nope.h5"), nil)
	assert.Error(t, err)
}

// TestInputData verifies the mapping of input arrays to decoder input
func TestInputData(t *testing.T) {
	in, err := ReadInput(filepath.Join("testdata", "input.h5"), nil)
	require.NoError(t, err)

	d, err := in.Data()
	require.NoError(t, err)
	assert.Same(t, in.Arrays[InputPhase], d.Phase)
	assert.Same(t, in.Arrays[InputAmplitude], d.Amplitude)
	assert.Same(t, in.Arrays[InputIntensity], d.Intensity)
	require.NotNil(t, d.Field)
	rows, cols := d.Field.Dims()
	require.Equal(t, [2]int{3, 4}, [2]int{rows, cols})
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := d.Field.At(i, j)
			assert.InDelta(t, in.Arrays[InputReal].At(i, j), real(v), 1e-15)
			assert.InDelta(t, in.Arrays[InputImag].At(i, j), imag(v), 1e-15)
		}
	}

	half := &Input{Arrays: map[string]*mat.Dense{InputReal: in.Arrays[InputReal]}}
	_, err = half.Data()
	assert.ErrorIs(t, err, imagedata.ErrInvalidArgument)

	mixed := &Input{Arrays: map[string]*mat.Dense{
		InputReal: in.Arrays[InputReal],
		InputImag: in.Arrays[InputIntensity],
	}}
	_, err = mixed.Data()
	assert.ErrorIs(t, err, imagedata.ErrShapeMismatch)
}
