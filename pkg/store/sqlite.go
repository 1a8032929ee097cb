package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS groups (
		name              TEXT PRIMARY KEY
	);
	CREATE TABLE IF NOT EXISTS datasets (
		grp               TEXT NOT NULL,
		name              TEXT NOT NULL,
		rows              INTEGER NOT NULL,
		cols              INTEGER NOT NULL,
		data              BLOB NOT NULL,
		PRIMARY KEY (grp, name)
	);
	CREATE TABLE IF NOT EXISTS attrs (
		grp               TEXT NOT NULL,
		name              TEXT NOT NULL,
		value             DOUBLE NOT NULL,
		PRIMARY KEY (grp, name)
	);
`

// sqliteStore keeps groups, datasets and attributes in three tables of a
// single SQLite database. Ephemeral stores use a uniquely named shared-cache
// memory database that lives as long as the connection.
type sqliteStore struct {
	db       *sql.DB
	path     string
	writable bool
	closed   bool
	logger   *slog.Logger
}

var _ Store = (*sqliteStore)(nil)

// sqliteDSN builds the URI filename for cfg.
func sqliteDSN(cfg Config) (string, error) {
	if cfg.Ephemeral() {
		return "file:qpimage-" + uuid.NewString() + "?mode=memory&cache=shared", nil
	}
	var mode string
	switch cfg.Mode {
	case ModeRead:
		mode = "ro"
	case ModeReadWrite:
		mode = "rw"
	case ModeCreate:
		mode = "rwc"
	default:
		return "", fmt.Errorf("invalid store mode %v", cfg.Mode)
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return "", err
	}
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(filepath.ToSlash(abs))
	return fmt.Sprintf("file:%s?mode=%s&_pragma=busy_timeout(5000)", escaped, mode), nil
}

func openSQLite(cfg Config) (*sqliteStore, error) {
	fail := func(err error) (*sqliteStore, error) {
		return nil, &AccessError{Op: "open", Location: cfg.Path, Err: err}
	}

	dsn, err := sqliteDSN(cfg)
	if err != nil {
		return fail(err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fail(err)
	}
	// A single connection keeps memory databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return fail(err)
	}

	s := &sqliteStore{
		db:       db,
		path:     cfg.Path,
		writable: cfg.Ephemeral() || cfg.Mode != ModeRead,
		logger:   cfg.logger(),
	}
	if s.writable {
		if _, err := db.Exec(sqliteSchema); err != nil {
			db.Close()
			return fail(err)
		}
	} else {
		// Surface a missing or foreign database at open time.
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM groups").Scan(&n); err != nil {
			db.Close()
			return fail(err)
		}
	}
	s.logger.Debug("opened sqlite store", "location", s.Location(), "writable", s.writable)
	return s, nil
}

func (s *sqliteStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AccessError{Op: op, Location: s.path, Err: err}
}

// check verifies that the store can serve op.
func (s *sqliteStore) check(op string, write bool) error {
	if s.closed {
		return s.wrap(op, ErrClosed)
	}
	if write && !s.writable {
		return s.wrap(op, ErrReadOnly)
	}
	return nil
}

func (s *sqliteStore) requireGroup(op, group string) error {
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

func (s *sqliteStore) CreateGroup(name string) error {
	if err := s.check("create group", true); err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT OR IGNORE INTO groups (name) VALUES (?)", name)
	return s.wrap("create group", err)
}

func (s *sqliteStore) HasGroup(name string) (bool, error) {
	if err := s.check("read group", false); err != nil {
		return false, err
	}
	if name == Root {
		return true, nil
	}
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM groups WHERE name = ?", name).Scan(&n)
	if err != nil {
		return false, s.wrap("read group", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) Groups() ([]string, error) {
	if err := s.check("list groups", false); err != nil {
		return nil, err
	}
	rows, err := s.db.Query("SELECT name FROM groups ORDER BY name")
	if err != nil {
		return nil, s.wrap("list groups", err)
	}
	return s.scanNames("list groups", rows)
}

func (s *sqliteStore) scanNames(op string, rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, s.wrap(op, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(op, err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *sqliteStore) WriteDataset(group, name string, data *mat.Dense) error {
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
	r, c := data.Dims()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO datasets (grp, name, rows, cols, data) VALUES (?, ?, ?, ?, ?)`,
		group, name, r, c, blob,
	)
	return s.wrap("write dataset", err)
}

func (s *sqliteStore) ReadDataset(group, name string) (*mat.Dense, error) {
	if err := s.check("read dataset", false); err != nil {
		return nil, err
	}
	var blob []byte
	err := s.db.QueryRow("SELECT data FROM datasets WHERE grp = ? AND name = ?", group, name).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
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

func (s *sqliteStore) DeleteDataset(group, name string) error {
	if err := s.check("delete dataset", true); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM datasets WHERE grp = ? AND name = ?", group, name)
	return s.wrap("delete dataset", err)
}

func (s *sqliteStore) HasDataset(group, name string) (bool, error) {
	if err := s.check("read dataset", false); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM datasets WHERE grp = ? AND name = ?", group, name).Scan(&n)
	if err != nil {
		return false, s.wrap("read dataset", err)
	}
	return n > 0, nil
}

func (s *sqliteStore) Datasets(group string) ([]string, error) {
	if err := s.check("list datasets", false); err != nil {
		return nil, err
	}
	rows, err := s.db.Query("SELECT name FROM datasets WHERE grp = ?", group)
	if err != nil {
		return nil, s.wrap("list datasets", err)
	}
	return s.scanNames("list datasets", rows)
}

func (s *sqliteStore) SetAttr(group, name string, value float64) error {
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
	_, err := s.db.Exec("INSERT OR REPLACE INTO attrs (grp, name, value) VALUES (?, ?, ?)", group, name, value)
	return s.wrap("write attribute", err)
}

func (s *sqliteStore) Attr(group, name string) (float64, error) {
	if err := s.check("read attribute", false); err != nil {
		return 0, err
	}
	var v float64
	err := s.db.QueryRow("SELECT value FROM attrs WHERE grp = ? AND name = ?", group, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("attribute %s@%s: %w", group, name, ErrNotFound)
	}
	if err != nil {
		return 0, s.wrap("read attribute", err)
	}
	return v, nil
}

func (s *sqliteStore) DeleteAttr(group, name string) error {
	if err := s.check("delete attribute", true); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM attrs WHERE grp = ? AND name = ?", group, name)
	return s.wrap("delete attribute", err)
}

func (s *sqliteStore) Attrs(group string) (map[string]float64, error) {
	if err := s.check("list attributes", false); err != nil {
		return nil, err
	}
	rows, err := s.db.Query("SELECT name, value FROM attrs WHERE grp = ?", group)
	if err != nil {
		return nil, s.wrap("list attributes", err)
	}
	defer rows.Close()

	attrs := map[string]float64{}
	for rows.Next() {
		var (
			name  string
			value float64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, s.wrap("list attributes", err)
		}
		attrs[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list attributes", err)
	}
	return attrs, nil
}

// Flush is a no-op for SQLite: every statement commits on its own.
func (s *sqliteStore) Flush() error {
	return nil
}

func (s *sqliteStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("closing sqlite store", "location", s.Location())
	return s.wrap("close", s.db.Close())
}

func (s *sqliteStore) Closed() bool    { return s.closed }
func (s *sqliteStore) Writable() bool  { return s.writable }
func (s *sqliteStore) Ephemeral() bool { return s.path == "" }
func (s *sqliteStore) Location() string {
	return s.path
}
