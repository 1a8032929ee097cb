// Package qpimage manages quantitative phase images: an amplitude field and
// a phase field, each with optional background components, plus scalar
// metadata, all persisted in a store.
//
// A QPImage either owns its store, when it opened it from a store.Config,
// or is attached to a store handle supplied by the caller. Only owned stores
// are closed by Close.
package qpimage

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/mat"

	"qpimage/internal/models"
	"qpimage/pkg/imagedata"
	"qpimage/pkg/nrefocus"
	"qpimage/pkg/store"
	"qpimage/pkg/unwrap"
)

// QPImage is a quantitative phase image backed by a store.
type QPImage struct {
	st     store.Store
	owned  bool
	closed bool

	amp *imagedata.Field
	pha *imagedata.Field

	unwrap      unwrap.Func
	logger      *slog.Logger
	estimators  estimators
	mediumIndex float64
	refocus     string
}

// New creates a QPImage.
//
// Without WithStore or WithHandle the image lives in an ephemeral store.
// When data is given it is decoded and written as the raw amplitude and
// phase, and the background data (or its absence) replaces the "data"
// background component. Metadata options are written last. Inputs are
// validated before anything is written, so a failed New leaves an existing
// store unchanged.
func New(opts ...Option) (*QPImage, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	st, owned := o.handle, false
	if st == nil {
		cfg := o.cfg
		if cfg.Logger == nil {
			cfg.Logger = o.logger
		}
		var err error
		if st, err = store.Open(cfg); err != nil {
			return nil, err
		}
		owned = true
	}

	q := &QPImage{
		st:          st,
		owned:       owned,
		amp:         imagedata.New(imagedata.Amplitude, st),
		pha:         imagedata.New(imagedata.Phase, st),
		unwrap:      o.unwrap,
		logger:      o.logger,
		estimators:  o.estimators,
		mediumIndex: o.mediumIndex,
		refocus:     o.refocus,
	}
	if err := q.init(o); err != nil {
		if owned {
			st.Close()
		}
		return nil, err
	}
	q.logger.Debug("opened image", "location", st.Location(), "owned", owned)
	return q, nil
}

func (q *QPImage) init(o options) error {
	for _, name := range o.meta.Keys() {
		if err := validateMeta(name, o.meta[name]); err != nil {
			return err
		}
	}

	var amp, pha, bgAmp, bgPha *mat.Dense
	if o.data != nil {
		var err error
		if amp, pha, err = q.decode(*o.data, o.enc); err != nil {
			return err
		}
		if o.bg != nil {
			if bgAmp, bgPha, err = q.decode(*o.bg, o.enc); err != nil {
				return fmt.Errorf("background: %w", err)
			}
			if shape(bgAmp) != shape(amp) {
				return &ShapeError{What: "background", Want: shape(amp), Got: shape(bgAmp)}
			}
		}
	}

	for _, g := range models.Groups() {
		ok, err := q.st.HasGroup(g)
		if err != nil {
			return err
		}
		if !ok {
			if err := q.st.CreateGroup(g); err != nil {
				return err
			}
		}
	}

	if amp != nil {
		// The "data" components are replaced below, so only the others
		// constrain the new raw shape.
		if err := q.amp.CheckRaw(amp, imagedata.KeyData); err != nil {
			return err
		}
		if err := q.pha.CheckRaw(pha, imagedata.KeyData); err != nil {
			return err
		}
		if err := q.setBgFields(nil, nil); err != nil {
			return err
		}
		if err := q.amp.SetRaw(amp); err != nil {
			return err
		}
		if err := q.pha.SetRaw(pha); err != nil {
			return err
		}
		if err := q.setBgFields(bgAmp, bgPha); err != nil {
			return err
		}
	}
	for _, name := range o.meta.Keys() {
		if err := q.SetMeta(name, o.meta[name]); err != nil {
			return err
		}
	}
	return nil
}

func shape(a *mat.Dense) [2]int {
	r, c := a.Dims()
	return [2]int{r, c}
}

// setBgFields stores amp and pha as the "data" background components. Nil
// arrays clear them.
func (q *QPImage) setBgFields(amp, pha *mat.Dense) error {
	if err := q.amp.SetBackground(imagedata.KeyData, amp); err != nil {
		return err
	}
	return q.pha.SetBackground(imagedata.KeyData, pha)
}

// decode runs Decode with the image's unwrapper and checks that the
// unwrapped phase kept the amplitude's shape.
func (q *QPImage) decode(data Data, enc Encoding) (amp, pha *mat.Dense, err error) {
	amp, pha, err = Decode(data, enc, q.unwrap)
	if err != nil {
		return nil, nil, err
	}
	if pha == nil {
		return nil, nil, fmt.Errorf("%w: unwrapping returned no data", ErrInvalidArgument)
	}
	ar, ac := amp.Dims()
	pr, pc := pha.Dims()
	if ar != pr || ac != pc {
		return nil, nil, &ShapeError{What: "unwrapped phase", Want: [2]int{ar, ac}, Got: [2]int{pr, pc}}
	}
	return amp, pha, nil
}

// SetBgData decodes bg with enc and stores it as the "data" background
// component of both fields. A nil bg clears both components.
func (q *QPImage) SetBgData(bg *Data, enc Encoding) error {
	if bg == nil {
		return q.setBgFields(nil, nil)
	}
	amp, pha, err := q.decode(*bg, enc)
	if err != nil {
		return fmt.Errorf("background: %w", err)
	}
	return q.setBgFields(amp, pha)
}

// Amp returns the background corrected amplitude.
func (q *QPImage) Amp() (*mat.Dense, error) { return q.amp.Corrected() }

// Pha returns the background corrected phase.
func (q *QPImage) Pha() (*mat.Dense, error) { return q.pha.Corrected() }

// BgAmp returns the combined amplitude background.
func (q *QPImage) BgAmp() (*mat.Dense, error) { return q.amp.Background() }

// BgPha returns the combined phase background.
func (q *QPImage) BgPha() (*mat.Dense, error) { return q.pha.Background() }

// Amplitude returns the amplitude field.
func (q *QPImage) Amplitude() *imagedata.Field { return q.amp }

// Phase returns the phase field.
func (q *QPImage) Phase() *imagedata.Field { return q.pha }

// Field returns the background corrected complex field amp·exp(i·pha).
func (q *QPImage) Field() (*mat.CDense, error) {
	amp, err := q.Amp()
	if err != nil {
		return nil, err
	}
	pha, err := q.Pha()
	if err != nil {
		return nil, err
	}
	rows, cols := amp.Dims()
	if pr, pc := pha.Dims(); pr != rows || pc != cols {
		return nil, &ShapeError{What: "phase", Want: [2]int{rows, cols}, Got: [2]int{pr, pc}}
	}
	field := mat.NewCDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		a, p := amp.RawRowView(i), pha.RawRowView(i)
		for j := range a {
			field.Set(i, j, cmplx.Rect(a[j], p[j]))
		}
	}
	return field, nil
}

// Shape returns the shape of the raw data.
func (q *QPImage) Shape() (rows, cols int, err error) {
	return q.amp.Shape()
}

// Meta returns the metadata attributes that are set.
func (q *QPImage) Meta() (models.Meta, error) {
	attrs, err := q.st.Attrs(store.Root)
	if err != nil {
		return nil, err
	}
	meta := models.Meta{}
	for name, v := range attrs {
		if models.IsMetaKey(name) {
			meta[name] = v
		}
	}
	return meta, nil
}

// SetMeta sets a metadata attribute. Pixel size and wavelength must be
// positive.
func (q *QPImage) SetMeta(name string, value float64) error {
	if err := validateMeta(name, value); err != nil {
		return err
	}
	return q.st.SetAttr(store.Root, name, value)
}

func validateMeta(name string, value float64) error {
	if !models.IsMetaKey(name) {
		return fmt.Errorf("%w: unknown metadata %q", ErrInvalidArgument, name)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s must be finite", ErrInvalidArgument, name)
	}
	if name != models.MetaTime && value <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidArgument, name, value)
	}
	return nil
}

// String describes the image, e.g. "QPImage, 200x200px, λ=600.0nm".
func (q *QPImage) String() string {
	rows, cols, err := q.Shape()
	if err != nil {
		return "QPImage, uninitialized"
	}
	s := fmt.Sprintf("QPImage, %dx%dpx", rows, cols)
	meta, err := q.Meta()
	if err != nil {
		return s
	}
	if wl, ok := meta.Get(models.MetaWavelength); ok {
		if wl > 10e-9 && wl < 2000e-9 {
			s += fmt.Sprintf(", λ=%.1fnm", wl*1e9)
		} else {
			s += fmt.Sprintf(", λ=%.2em", wl)
		}
	}
	return s
}

// FieldName selects the amplitude or the phase field.
type FieldName string

// Field names, equal to the store groups.
const (
	FieldAmplitude FieldName = models.GroupAmplitude
	FieldPhase     FieldName = models.GroupPhase
)

// ParseFieldNames parses a comma separated list of field names.
func ParseFieldNames(s string) ([]FieldName, error) {
	var names []FieldName
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := FieldName(part)
		if name != FieldAmplitude && name != FieldPhase {
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidArgument, part)
		}
		names = append(names, name)
	}
	return names, nil
}

func (q *QPImage) field(name FieldName) (*imagedata.Field, error) {
	switch name {
	case FieldAmplitude:
		return q.amp, nil
	case FieldPhase:
		return q.pha, nil
	default:
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidArgument, name)
	}
}

// ClearBg removes the background components keys from the given fields.
// Both selections are validated before anything is removed.
func (q *QPImage) ClearBg(fields []FieldName, keys []imagedata.Key) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no field selected", ErrInvalidArgument)
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no background key selected", ErrInvalidArgument)
	}
	targets := make([]*imagedata.Field, 0, len(fields))
	for _, name := range fields {
		f, err := q.field(name)
		if err != nil {
			return err
		}
		targets = append(targets, f)
	}
	for _, k := range keys {
		if !k.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidKey, k)
		}
	}

	for _, f := range targets {
		for _, k := range keys {
			if err := f.SetBackground(k, nil); err != nil {
				return err
			}
		}
	}
	q.logger.Debug("cleared background", "fields", fields, "keys", keys)
	return nil
}

// CorrectAmp estimates the amplitude background with a registered method and
// stores it as the "fit" component. An empty method selects DefaultAmpMethod.
func (q *QPImage) CorrectAmp(method string) error {
	if method == "" {
		method = DefaultAmpMethod
	}
	return q.correct(q.amp, method)
}

// CorrectPha estimates the phase background with a registered method and
// stores it as the "fit" component. An empty method selects DefaultPhaMethod.
func (q *QPImage) CorrectPha(method string) error {
	if method == "" {
		method = DefaultPhaMethod
	}
	return q.correct(q.pha, method)
}

func (q *QPImage) correct(f *imagedata.Field, method string) error {
	fn, ok := q.estimators[f.Kind()][method]
	if !ok || fn == nil {
		return fmt.Errorf("%w: %s background %q", ErrUnsupportedMethod, f.Kind(), method)
	}
	raw, err := f.Raw()
	if err != nil {
		return err
	}
	fit, err := fn(raw)
	if err != nil {
		return fmt.Errorf("%s background %q: %w", f.Kind(), method, err)
	}
	return f.SetBackground(imagedata.KeyFit, fit)
}

// Refocus numerically propagates the corrected field by distance (meters)
// and returns the result as a new ephemeral image with the same metadata.
// Pixel size and wavelength must be set. An empty method selects the one
// given with WithRefocusMethod.
func (q *QPImage) Refocus(distance float64, method string) (*QPImage, error) {
	if method == "" {
		method = q.refocus
	}
	meta, err := q.Meta()
	if err != nil {
		return nil, err
	}
	px, okPx := meta.Get(models.MetaPixelSize)
	wl, okWl := meta.Get(models.MetaWavelength)
	if !okPx || !okWl {
		return nil, fmt.Errorf("%w: refocusing requires pixel size and wavelength", ErrInvalidArgument)
	}
	field, err := q.Field()
	if err != nil {
		return nil, err
	}
	refocused, err := nrefocus.Refocus(field, nrefocus.Params{
		Distance:    distance,
		PixelSize:   px,
		Wavelength:  wl,
		MediumIndex: q.mediumIndex,
		Method:      method,
	})
	if errors.Is(err, nrefocus.ErrUnsupportedMethod) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	opts := append(q.inherited(),
		WithStore(store.DefaultConfig()),
		WithData(Data{Field: refocused}, EncodingField),
	)
	for _, name := range meta.Keys() {
		opts = append(opts, WithMeta(name, meta[name]))
	}
	q.logger.Debug("refocused image", "distance", distance, "method", method)
	return New(opts...)
}

// inherited returns the options a derived image shares with q.
func (q *QPImage) inherited() []Option {
	return []Option{
		WithUnwrapper(q.unwrap),
		WithLogger(q.logger),
		WithMediumIndex(q.mediumIndex),
		WithRefocusMethod(q.refocus),
		func(o *options) { o.estimators = q.estimators.clone() },
	}
}

// Store returns the backing store.
func (q *QPImage) Store() store.Store { return q.st }

// Owned reports whether the image closes its store on Close.
func (q *QPImage) Owned() bool { return q.owned }

// Flush makes pending writes durable.
func (q *QPImage) Flush() error {
	if q.closed || q.st.Closed() || !q.st.Writable() {
		return nil
	}
	return q.st.Flush()
}

// Close releases the image. An owned store is flushed and closed, an
// attached store is only flushed. Closing twice is a no-op.
func (q *QPImage) Close() error {
	if q.closed {
		return nil
	}
	var err error
	if q.owned {
		err = q.st.Close()
	} else {
		err = q.Flush()
	}
	q.closed = true
	q.logger.Debug("closed image", "location", q.st.Location(), "owned", q.owned)
	return err
}
