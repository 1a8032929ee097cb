package models

import "sort"

// Names of the objects that make up a persisted quantitative phase image.
// Both groups live directly below the root of the store.
const (
	// GroupAmplitude holds the amplitude raw data and its background components
	GroupAmplitude = "amplitude"

	// GroupPhase holds the (unwrapped) phase raw data and its background components
	GroupPhase = "phase"

	// DatasetRaw is the name of the raw measurement dataset inside each group
	DatasetRaw = "raw"

	// Root is the group path used for container level attributes
	Root = "/"
)

// Scalar metadata attribute names stored on the root group.
const (
	// MetaPixelSize is the pixel size in meters
	MetaPixelSize = "pixel_size"

	// MetaWavelength is the wavelength of the radiation used in meters
	MetaWavelength = "wavelength"

	// MetaTime is the time point of data recording in seconds
	MetaTime = "time"
)

// Groups returns the image groups in the order they are created.
func Groups() []string {
	return []string{GroupAmplitude, GroupPhase}
}

// MetaKeys returns all known metadata attribute names.
func MetaKeys() []string {
	return []string{MetaPixelSize, MetaTime, MetaWavelength}
}

// IsMetaKey reports whether name is a known metadata attribute.
func IsMetaKey(name string) bool {
	for _, k := range MetaKeys() {
		if k == name {
			return true
		}
	}
	return false
}

// Meta holds the scalar metadata of an image. A key that is not present in
// the map is not set; no default values are ever filled in.
type Meta map[string]float64

// Keys returns the set attribute names in sorted order.
func (m Meta) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the attribute value and whether it is set.
func (m Meta) Get(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}
