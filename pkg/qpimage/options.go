package qpimage

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"qpimage/internal/logging"
	"qpimage/internal/models"
	"qpimage/pkg/imagedata"
	"qpimage/pkg/nrefocus"
	"qpimage/pkg/store"
	"qpimage/pkg/unwrap"
)

// Method names of the background correction hooks used when none is given.
const (
	DefaultAmpMethod = "border"
	DefaultPhaMethod = "border,sphere-edge"
)

// Estimator computes a background estimate from raw field data. The result
// must have the shape of raw and is stored as the "fit" component.
type Estimator func(raw *mat.Dense) (*mat.Dense, error)

type estimators map[imagedata.Kind]map[string]Estimator

func (e estimators) clone() estimators {
	out := estimators{}
	for kind, methods := range e {
		out[kind] = make(map[string]Estimator, len(methods))
		for name, fn := range methods {
			out[kind][name] = fn
		}
	}
	return out
}

type options struct {
	data   *Data
	bg     *Data
	enc    Encoding
	cfg    store.Config
	handle store.Store
	meta   models.Meta

	unwrap      unwrap.Func
	logger      *slog.Logger
	estimators  estimators
	mediumIndex float64
	refocus     string
}

func defaultOptions() options {
	return options{
		enc:         EncodingPhase,
		cfg:         store.DefaultConfig(),
		meta:        models.Meta{},
		unwrap:      unwrap.Unwrap2D,
		logger:      logging.Discard(),
		estimators:  estimators{},
		mediumIndex: 1,
		refocus:     nrefocus.MethodHelmholtz,
	}
}

// Option configures a QPImage created with New.
type Option func(*options)

// WithData sets the raw input data and its encoding.
func WithData(data Data, enc Encoding) Option {
	return func(o *options) {
		o.data = &data
		o.enc = enc
	}
}

// WithBackground sets background input data. It is decoded with the
// encoding of the raw data and stored as the "data" component.
func WithBackground(bg Data) Option {
	return func(o *options) {
		o.bg = &bg
	}
}

// WithStore makes the image open, and own, the store described by cfg.
func WithStore(cfg store.Config) Option {
	return func(o *options) {
		o.cfg = cfg
		o.handle = nil
	}
}

// WithHandle attaches the image to an open store. The image never closes an
// attached store.
func WithHandle(st store.Store) Option {
	return func(o *options) {
		o.handle = st
	}
}

// WithPixelSize sets the pixel size in meters.
func WithPixelSize(v float64) Option {
	return func(o *options) { o.meta[models.MetaPixelSize] = v }
}

// WithWavelength sets the wavelength in meters.
func WithWavelength(v float64) Option {
	return func(o *options) { o.meta[models.MetaWavelength] = v }
}

// WithTime sets the time of data recording in seconds.
func WithTime(v float64) Option {
	return func(o *options) { o.meta[models.MetaTime] = v }
}

// WithMeta sets the metadata key name. Unknown keys make New fail.
func WithMeta(name string, v float64) Option {
	return func(o *options) { o.meta[name] = v }
}

// WithUnwrapper replaces the phase unwrapping routine.
func WithUnwrapper(fn unwrap.Func) Option {
	return func(o *options) {
		if fn != nil {
			o.unwrap = fn
		}
	}
}

// WithLogger sets the logger used by the image and, unless the store config
// has its own, by the store it opens.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEstimator registers a background estimation method for the amplitude
// or the phase field.
func WithEstimator(kind imagedata.Kind, method string, fn Estimator) Option {
	return func(o *options) {
		if o.estimators[kind] == nil {
			o.estimators[kind] = map[string]Estimator{}
		}
		o.estimators[kind][method] = fn
	}
}

// WithMediumIndex sets the refractive index of the medium used when
// refocusing. The default is 1.
func WithMediumIndex(n float64) Option {
	return func(o *options) {
		o.mediumIndex = n
	}
}

// WithRefocusMethod sets the propagation method Refocus uses when called
// with an empty method. The default is helmholtz.
func WithRefocusMethod(method string) Option {
	return func(o *options) {
		if method != "" {
			o.refocus = method
		}
	}
}
