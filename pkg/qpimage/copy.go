package qpimage

import (
	"errors"

	"qpimage/pkg/store"
)

// Copy returns a deep copy of the image in a new store opened from cfg. The
// copy owns its store and shares nothing with q.
func (q *QPImage) Copy(cfg store.Config) (*QPImage, error) {
	dst, err := New(append(q.inherited(), WithStore(cfg))...)
	if err != nil {
		return nil, err
	}
	if err := store.CopyTo(q.st, dst.st); err != nil {
		dst.Close()
		return nil, err
	}
	q.logger.Debug("copied image", "from", q.st.Location(), "to", dst.st.Location())
	return dst, nil
}

// CopyTo copies all data and metadata of the image into st. The store is
// flushed but not closed.
func (q *QPImage) CopyTo(st store.Store) error {
	if err := store.CopyTo(q.st, st); err != nil {
		return err
	}
	q.logger.Debug("copied image", "from", q.st.Location(), "to", st.Location())
	return st.Flush()
}

// CopyFile copies the image persisted at in to out. Both stores are closed
// before CopyFile returns.
func CopyFile(in, out store.Config) (err error) {
	src, err := store.Open(in)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, src.Close()) }()

	dst, err := store.Open(out)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, dst.Close()) }()

	return store.CopyTo(src, dst)
}
