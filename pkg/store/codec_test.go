package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// TestArrayCodec verifies that encoding preserves shape and values
func TestArrayCodec(t *testing.T) {
	m := mat.NewDense(3, 2, []float64{0, -1, 2.5, 1e-300, 4, 5})
	blob, err := encodeArray(m)
	require.NoError(t, err)

	got, err := decodeArray(blob)
	require.NoError(t, err)
	r, c := got.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.True(t, mat.Equal(m, got))
}

// TestArrayCodecSlice verifies that views are encoded with their own stride
func TestArrayCodecSlice(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	view := m.Slice(1, 3, 1, 3).(*mat.Dense)

	blob, err := encodeArray(view)
	require.NoError(t, err)
	got, err := decodeArray(blob)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 8, 9}, got.RawMatrix().Data)
}

// TestArrayCodecCorrupt verifies that garbage is rejected
func TestArrayCodecCorrupt(t *testing.T) {
	_, err := decodeArray(nil)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = decodeArray([]byte("not gzip"))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = encodeArray(nil)
	assert.ErrorIs(t, err, ErrEmptyArray)
}
