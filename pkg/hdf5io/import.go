// Package hdf5io reads quantitative phase images stored as HDF5 files, as
// written by h5py based tools, into a store.
package hdf5io

import (
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/go-hdf5/hdf5"
	"gonum.org/v1/gonum/mat"

	"qpimage/internal/logging"
	"qpimage/internal/models"
	"qpimage/pkg/imagedata"
	"qpimage/pkg/store"
)

// Summary lists what Import copied.
type Summary struct {
	Datasets []string
	Meta     models.Meta
}

// Import copies the image in the HDF5 file at path into dst.
//
// The file must contain the groups "amplitude" and "phase". Of each group the
// 2D datasets "raw" and the background components are imported; other
// members are ignored. Known metadata attributes of the root group become
// root attributes of dst. A failed import may leave dst partially written.
func Import(path string, dst store.Store, logger *slog.Logger) (*Summary, error) {
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
	sum := &Summary{Meta: meta}
	for _, name := range meta.Keys() {
		if err := dst.SetAttr(store.Root, name, meta[name]); err != nil {
			return nil, err
		}
	}

	for _, group := range models.Groups() {
		g, err := root.OpenGroup(group)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group, err)
		}
		if err := dst.CreateGroup(group); err != nil {
			return nil, err
		}
		members, err := g.Members()
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group, err)
		}
		for _, name := range members {
			if !imported(name) {
				logger.Debug("skipping hdf5 member", "group", group, "name", name)
				continue
			}
			data, err := readDataset(g, name)
			if err != nil {
				return nil, fmt.Errorf("dataset %s/%s: %w", group, name, err)
			}
			if err := dst.WriteDataset(group, name, data); err != nil {
				return nil, err
			}
			sum.Datasets = append(sum.Datasets, group+"/"+name)
		}
	}
	logger.Info("imported hdf5 file", "path", path, "datasets", len(sum.Datasets))
	return sum, nil
}

// readMeta reads the known metadata attributes of g.
func readMeta(g *hdf5.Group) (models.Meta, error) {
	meta := models.Meta{}
	for _, name := range g.Attrs() {
		if !models.IsMetaKey(name) {
			continue
		}
		v, err := g.Attr(name).ReadScalarFloat64()
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		meta[name] = v
	}
	return meta, nil
}

func imported(name string) bool {
	return name == models.DatasetRaw || imagedata.Key(name).Valid()
}

func readDataset(g *hdf5.Group, name string) (*mat.Dense, error) {
	ds, err := g.OpenDataset(name)
	if err != nil {
		return nil, err
	}
	shape := ds.Shape()
	if len(shape) != 2 || shape[0] == 0 || shape[1] == 0 {
		return nil, fmt.Errorf("%w: expected a non-empty 2D dataset, got shape %v",
			imagedata.ErrInvalidArgument, shape)
	}
	values, err := ds.ReadFloat64()
	if err != nil {
		return nil, err
	}
	rows, cols := int(shape[0]), int(shape[1])
	if len(values) != rows*cols {
		return nil, fmt.Errorf("read %d values for shape %dx%d", len(values), rows, cols)
	}
	return mat.NewDense(rows, cols, values), nil
}
