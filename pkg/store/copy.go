package store

import (
	"fmt"
)

// CopyTo copies every group, dataset and attribute of src into dst.
//
// The root attributes and each group of src replace their counterparts in
// dst: datasets and attributes that exist in dst but not in src are removed.
// Groups of dst that src does not have are left alone.
func CopyTo(src, dst Store) error {
	if err := copyAttrs(src, dst, Root); err != nil {
		return err
	}
	groups, err := src.Groups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := dst.CreateGroup(g); err != nil {
			return err
		}
		if err := copyDatasets(src, dst, g); err != nil {
			return err
		}
		if err := copyAttrs(src, dst, g); err != nil {
			return err
		}
	}
	return nil
}

func copyDatasets(src, dst Store, group string) error {
	names, err := src.Datasets(group)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		keep[name] = true
		data, err := src.ReadDataset(group, name)
		if err != nil {
			return fmt.Errorf("copy %s/%s: %w", group, name, err)
		}
		if err := dst.WriteDataset(group, name, data); err != nil {
			return fmt.Errorf("copy %s/%s: %w", group, name, err)
		}
	}

	stale, err := dst.Datasets(group)
	if err != nil {
		return err
	}
	for _, name := range stale {
		if keep[name] {
			continue
		}
		if err := dst.DeleteDataset(group, name); err != nil {
			return err
		}
	}
	return nil
}

func copyAttrs(src, dst Store, group string) error {
	attrs, err := src.Attrs(group)
	if err != nil {
		return err
	}
	for name, v := range attrs {
		if err := dst.SetAttr(group, name, v); err != nil {
			return fmt.Errorf("copy attribute %s@%s: %w", group, name, err)
		}
	}

	stale, err := dst.Attrs(group)
	if err != nil {
		return err
	}
	for name := range stale {
		if _, ok := attrs[name]; ok {
			continue
		}
		if err := dst.DeleteAttr(group, name); err != nil {
			return fmt.Errorf("copy attribute %s@%s: %w", group, name, err)
		}
	}
	return nil
}
