// Package imagedata implements the layered storage of one image field: a raw
// measurement plus optional named background components, all kept as
// datasets of a single store group.
//
// Nothing is cached. Every read goes back to the store and recomputes the
// background and the corrected image.
package imagedata

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"qpimage/internal/models"
	"qpimage/pkg/store"
)

// Field is the raw data and background components of one image field.
type Field struct {
	kind Kind
	st   store.Store
}

// New returns the field of the given kind backed by st. The field's group
// must exist before any data is written.
func New(kind Kind, st store.Store) *Field {
	return &Field{kind: kind, st: st}
}

// Kind returns the field kind.
func (f *Field) Kind() Kind { return f.kind }

func (f *Field) group() string { return f.kind.Group() }

func (f *Field) name(what string) string { return f.group() + "/" + what }

func dims(a *mat.Dense) [2]int {
	r, c := a.Dims()
	return [2]int{r, c}
}

func checkArray(a *mat.Dense) error {
	if a == nil || a.IsEmpty() {
		return fmt.Errorf("%w: empty array", ErrInvalidArgument)
	}
	return nil
}

// SetRaw stores the raw measurement, replacing any previous one.
func (f *Field) SetRaw(a *mat.Dense) error {
	if err := f.CheckRaw(a); err != nil {
		return err
	}
	return f.st.WriteDataset(f.group(), models.DatasetRaw, a)
}

// CheckRaw reports whether SetRaw would accept a, without writing anything.
// Components listed in replaced are ignored since the caller is about to
// overwrite them.
func (f *Field) CheckRaw(a *mat.Dense, replaced ...Key) error {
	if err := checkArray(a); err != nil {
		return err
	}
	for _, k := range Keys() {
		if slices.Contains(replaced, k) {
			continue
		}
		bg, err := f.Component(k)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if dims(bg) != dims(a) {
			return &ShapeError{What: f.name(models.DatasetRaw), Want: dims(bg), Got: dims(a)}
		}
	}
	return nil
}

// Raw returns the raw measurement, or ErrNotInitialized.
func (f *Field) Raw() (*mat.Dense, error) {
	raw, err := f.st.ReadDataset(f.group(), models.DatasetRaw)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", f.group(), ErrNotInitialized)
	}
	return raw, err
}

// Shape returns the shape of the raw data.
func (f *Field) Shape() (rows, cols int, err error) {
	raw, err := f.Raw()
	if err != nil {
		return 0, 0, err
	}
	rows, cols = raw.Dims()
	return rows, cols, nil
}

// SetBackground stores the background component key. A nil array clears it,
// which removes the component from the combination altogether.
func (f *Field) SetBackground(key Key, a *mat.Dense) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if a == nil {
		return f.st.DeleteDataset(f.group(), string(key))
	}
	if err := checkArray(a); err != nil {
		return err
	}

	ref, err := f.reference(key)
	if err != nil {
		return err
	}
	if ref != nil && dims(ref) != dims(a) {
		return &ShapeError{What: f.name(string(key)), Want: dims(ref), Got: dims(a)}
	}
	return f.st.WriteDataset(f.group(), string(key), a)
}

// reference returns the array a new component for key must match: the raw
// data, or any other present component when there is no raw data yet.
func (f *Field) reference(key Key) (*mat.Dense, error) {
	raw, err := f.Raw()
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, ErrNotInitialized) {
		return nil, err
	}
	for _, k := range Keys() {
		if k == key {
			continue
		}
		bg, err := f.Component(k)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		return bg, err
	}
	return nil, nil
}

// Component returns a single background component. A missing component is
// reported with store.ErrNotFound.
func (f *Field) Component(key Key) (*mat.Dense, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return f.st.ReadDataset(f.group(), string(key))
}

// Components returns the keys of the present background components in
// combination order.
func (f *Field) Components() ([]Key, error) {
	var keys []Key
	for _, k := range Keys() {
		ok, err := f.st.HasDataset(f.group(), string(k))
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Background combines all present components in the order of Keys. Without
// any component it is the neutral array of the raw data's shape.
func (f *Field) Background() (*mat.Dense, error) {
	rows, cols, err := f.Shape()
	if err != nil {
		return nil, err
	}
	return f.background(rows, cols)
}

func (f *Field) background(rows, cols int) (*mat.Dense, error) {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = f.kind.Neutral()
	}
	bg := mat.NewDense(rows, cols, data)

	for _, k := range Keys() {
		c, err := f.Component(k)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if dims(c) != [2]int{rows, cols} {
			return nil, &ShapeError{What: f.name(string(k)), Want: [2]int{rows, cols}, Got: dims(c)}
		}
		f.kind.combine(data, c.RawMatrix().Data)
	}
	return bg, nil
}

// Corrected returns the raw data with the background removed.
func (f *Field) Corrected() (*mat.Dense, error) {
	raw, err := f.Raw()
	if err != nil {
		return nil, err
	}
	rows, cols := raw.Dims()
	bg, err := f.background(rows, cols)
	if err != nil {
		return nil, err
	}

	in := raw.RawMatrix().Data
	out := make([]float64, len(in))
	copy(out, in)
	f.kind.remove(out, bg.RawMatrix().Data)

	bad := 0
	for i, v := range out {
		if (math.IsNaN(v) || math.IsInf(v, 0)) && !math.IsNaN(in[i]) && !math.IsInf(in[i], 0) {
			bad++
		}
	}
	if bad > 0 {
		return nil, fmt.Errorf("%s: %w: %d pixels", f.group(), ErrNonFinite, bad)
	}
	return mat.NewDense(rows, cols, out), nil
}
