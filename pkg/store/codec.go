package store

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// array is the serialised form of a 2D dataset.
type array struct {
	Rows, Cols int
	Data       []float64
}

// encodeArray compresses a dataset using gob encoding and gzip compression.
func encodeArray(m *mat.Dense) ([]byte, error) {
	if m == nil || m.IsEmpty() {
		return nil, ErrEmptyArray
	}
	r, c := m.Dims()
	a := array{Rows: r, Cols: c, Data: make([]float64, 0, r*c)}
	for i := 0; i < r; i++ {
		a.Data = append(a.Data, m.RawRowView(i)...)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(a); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeArray decompresses and decodes a dataset from a gob+gzip blob.
func decodeArray(blob []byte) (*mat.Dense, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorrupt)
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gz.Close()

	var a array
	if err := gob.NewDecoder(gz).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if a.Rows <= 0 || a.Cols <= 0 || len(a.Data) != a.Rows*a.Cols {
		return nil, fmt.Errorf("%w: shape %dx%d with %d values", ErrCorrupt, a.Rows, a.Cols, len(a.Data))
	}
	return mat.NewDense(a.Rows, a.Cols, a.Data), nil
}
