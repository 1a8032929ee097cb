package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"gonum.org/v1/gonum/mat"
)

// Key layout of the Badger engine. Names cannot contain NUL, which keeps
// group and object names unambiguous.
//
//	g\x00<group>                 group marker
//	d\x00<group>\x00<name>       gob+gzip dataset
//	a\x00<group>\x00<name>       big endian float64 bits
const (
	prefixGroup   = "g\x00"
	prefixDataset = "d\x00"
	prefixAttr    = "a\x00"
)

func groupKey(group string) []byte         { return []byte(prefixGroup + group) }
func datasetKey(group, name string) []byte { return []byte(prefixDataset + group + "\x00" + name) }
func attrKey(group, name string) []byte    { return []byte(prefixAttr + group + "\x00" + name) }

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// badgerStore keeps every object under its own key of a Badger database.
type badgerStore struct {
	db       *badger.DB
	path     string
	writable bool
	closed   bool
	logger   *slog.Logger
}

var _ Store = (*badgerStore)(nil)

func openBadger(cfg Config) (*badgerStore, error) {
	fail := func(err error) (*badgerStore, error) {
		return nil, &AccessError{Op: "open", Location: cfg.Path, Err: err}
	}

	var opts badger.Options
	if cfg.Ephemeral() {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		switch cfg.Mode {
		case ModeRead, ModeReadWrite:
			if _, err := os.Stat(cfg.Path); err != nil {
				return fail(err)
			}
		case ModeCreate:
			if err := os.MkdirAll(cfg.Path, 0750); err != nil {
				return fail(fmt.Errorf("create database directory: %w", err))
			}
		default:
			return fail(fmt.Errorf("invalid store mode %v", cfg.Mode))
		}
		opts = badger.DefaultOptions(cfg.Path).WithReadOnly(cfg.Mode == ModeRead)
	}

	logger := cfg.logger()
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return fail(err)
	}
	s := &badgerStore{
		db:       db,
		path:     cfg.Path,
		writable: cfg.Ephemeral() || cfg.Mode != ModeRead,
		logger:   logger,
	}
	logger.Debug("opened badger store", "location", s.Location(), "writable", s.writable)
	return s, nil
}

func (s *badgerStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AccessError{Op: op, Location: s.path, Err: err}
}

func (s *badgerStore) check(op string, write bool) error {
	if s.closed {
		return s.wrap(op, ErrClosed)
	}
	if write && !s.writable {
		return s.wrap(op, ErrReadOnly)
	}
	return nil
}

// has reports whether key exists.
func (s *badgerStore) has(op string, key []byte) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, s.wrap(op, err)
	}
	return found, nil
}

// get returns a copy of the value stored under key, or ErrNotFound.
func (s *badgerStore) get(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

// scan calls fn with the key suffix and value of every key under prefix.
func (s *badgerStore) scan(prefix string, fn func(suffix string, val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(strings.TrimPrefix(string(item.Key()), prefix), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *badgerStore) requireGroup(op, group string) error {
	if group == Root {
		return nil
	}
	ok, err := s.HasGroup(group)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: group %q: %w", op, group, ErrNotFound)
	}
	return nil
}

func (s *badgerStore) CreateGroup(name string) error {
	if err := s.check("create group", true); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(groupKey(name), []byte{})
	})
	return s.wrap("create group", err)
}

func (s *badgerStore) HasGroup(name string) (bool, error) {
	if err := s.check("read group", false); err != nil {
		return false, err
	}
	if name == Root {
		return true, nil
	}
	return s.has("read group", groupKey(name))
}

func (s *badgerStore) Groups() ([]string, error) {
	if err := s.check("list groups", false); err != nil {
		return nil, err
	}
	names := []string{}
	err := s.scan(prefixGroup, func(suffix string, _ []byte) error {
		names = append(names, suffix)
		return nil
	})
	if err != nil {
		return nil, s.wrap("list groups", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *badgerStore) WriteDataset(group, name string, data *mat.Dense) error {
	if err := s.check("write dataset", true); err != nil {
		return err
	}
	if err := validGroup(group); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := s.requireGroup("write dataset", group); err != nil {
		return err
	}
	blob, err := encodeArray(data)
	if err != nil {
		return fmt.Errorf("write dataset %s/%s: %w", group, name, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(datasetKey(group, name), blob)
	})
	return s.wrap("write dataset", err)
}

func (s *badgerStore) ReadDataset(group, name string) (*mat.Dense, error) {
	if err := s.check("read dataset", false); err != nil {
		return nil, err
	}
	blob, err := s.get(datasetKey(group, name))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("dataset %s/%s: %w", group, name, ErrNotFound)
	}
	if err != nil {
		return nil, s.wrap("read dataset", err)
	}
	m, err := decodeArray(blob)
	if err != nil {
		return nil, s.wrap("read dataset", fmt.Errorf("%s/%s: %w", group, name, err))
	}
	return m, nil
}

func (s *badgerStore) DeleteDataset(group, name string) error {
	if err := s.check("delete dataset", true); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(datasetKey(group, name))
	})
	return s.wrap("delete dataset", err)
}

func (s *badgerStore) HasDataset(group, name string) (bool, error) {
	if err := s.check("read dataset", false); err != nil {
		return false, err
	}
	return s.has("read dataset", datasetKey(group, name))
}

func (s *badgerStore) Datasets(group string) ([]string, error) {
	if err := s.check("list datasets", false); err != nil {
		return nil, err
	}
	names := []string{}
	err := s.scan(prefixDataset+group+"\x00", func(suffix string, _ []byte) error {
		names = append(names, suffix)
		return nil
	})
	if err != nil {
		return nil, s.wrap("list datasets", err)
	}
	sort.Strings(names)
	return names, nil
}

func encodeFloat(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func decodeFloat(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: attribute of %d bytes", ErrCorrupt, len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (s *badgerStore) SetAttr(group, name string, value float64) error {
	if err := s.check("write attribute", true); err != nil {
		return err
	}
	if err := validGroup(group); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := s.requireGroup("write attribute", group); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(attrKey(group, name), encodeFloat(value))
	})
	return s.wrap("write attribute", err)
}

func (s *badgerStore) Attr(group, name string) (float64, error) {
	if err := s.check("read attribute", false); err != nil {
		return 0, err
	}
	b, err := s.get(attrKey(group, name))
	if errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("attribute %s@%s: %w", group, name, ErrNotFound)
	}
	if err != nil {
		return 0, s.wrap("read attribute", err)
	}
	v, err := decodeFloat(b)
	return v, s.wrap("read attribute", err)
}

func (s *badgerStore) DeleteAttr(group, name string) error {
	if err := s.check("delete attribute", true); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(attrKey(group, name))
	})
	return s.wrap("delete attribute", err)
}

func (s *badgerStore) Attrs(group string) (map[string]float64, error) {
	if err := s.check("list attributes", false); err != nil {
		return nil, err
	}
	attrs := map[string]float64{}
	err := s.scan(prefixAttr+group+"\x00", func(suffix string, val []byte) error {
		v, err := decodeFloat(val)
		if err != nil {
			return err
		}
		attrs[suffix] = v
		return nil
	})
	if err != nil {
		return nil, s.wrap("list attributes", err)
	}
	return attrs, nil
}

func (s *badgerStore) Flush() error {
	if s.closed || !s.writable || s.Ephemeral() {
		return nil
	}
	return s.wrap("flush", s.db.Sync())
}

func (s *badgerStore) Close() error {
	if s.closed {
		return nil
	}
	flushErr := s.Flush()
	s.closed = true
	s.logger.Debug("closing badger store", "location", s.Location())
	if err := s.db.Close(); err != nil {
		return s.wrap("close", err)
	}
	return flushErr
}

func (s *badgerStore) Closed() bool    { return s.closed }
func (s *badgerStore) Writable() bool  { return s.writable }
func (s *badgerStore) Ephemeral() bool { return s.path == "" }
func (s *badgerStore) Location() string {
	return s.path
}
