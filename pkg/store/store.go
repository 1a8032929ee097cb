// Package store provides the hierarchical array/attribute storage used to
// persist quantitative phase images.
//
// A Store holds named groups; each group holds named 2D float64 datasets and
// scalar float64 attributes. The root group ("/") always exists and carries
// container level attributes. Stores are either ephemeral (memory only,
// discarded on Close) or bound to a location on disk. Two engines are
// available: a single-file SQLite database and a Badger directory.
package store

import (
	"fmt"
	"log/slog"
	"strings"

	"gonum.org/v1/gonum/mat"

	"qpimage/internal/logging"
	"qpimage/internal/models"
)

// Root is the path of the root group.
const Root = models.Root

// Store is the uniform surface over memory and file backed engines.
//
// All methods block until the engine has completed the operation. A Store is
// not safe for concurrent mutation.
type Store interface {
	// CreateGroup creates a group below the root. Creating an existing group
	// is not an error.
	CreateGroup(name string) error
	HasGroup(name string) (bool, error)
	// Groups lists all groups below the root in sorted order.
	Groups() ([]string, error)

	// WriteDataset stores data under group/name, replacing any existing dataset.
	WriteDataset(group, name string, data *mat.Dense) error
	// ReadDataset returns a copy of the dataset, or an error wrapping ErrNotFound.
	ReadDataset(group, name string) (*mat.Dense, error)
	// DeleteDataset removes a dataset. Removing a missing dataset is not an error.
	DeleteDataset(group, name string) error
	HasDataset(group, name string) (bool, error)
	// Datasets lists the dataset names of a group in sorted order.
	Datasets(group string) ([]string, error)

	SetAttr(group, name string, value float64) error
	// Attr returns the attribute value, or an error wrapping ErrNotFound.
	Attr(group, name string) (float64, error)
	DeleteAttr(group, name string) error
	Attrs(group string) (map[string]float64, error)

	// Flush makes pending writes durable without releasing the handle.
	Flush() error
	// Close flushes and releases the handle. Closing twice is a no-op.
	Close() error
	Closed() bool
	Writable() bool
	// Ephemeral reports whether the store lives in memory only.
	Ephemeral() bool
	// Location is the file or directory backing the store, "" when ephemeral.
	Location() string
}

// Mode is the access mode a persistent store is opened with.
type Mode int

const (
	// ModeRead opens an existing store read-only
	ModeRead Mode = iota
	// ModeReadWrite opens an existing store for reading and writing
	ModeReadWrite
	// ModeCreate opens a store for reading and writing, creating it if needed
	ModeCreate
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeReadWrite:
		return "r+"
	case ModeCreate:
		return "a"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode string. The short h5py style names ("r", "r+",
// "a") and the long names ("read", "read-write", "read-write-create") are
// accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "r", "read":
		return ModeRead, nil
	case "r+", "rw", "read-write":
		return ModeReadWrite, nil
	case "a", "create", "read-write-create":
		return ModeCreate, nil
	default:
		return 0, fmt.Errorf("invalid store mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Backend selects the storage engine.
type Backend string

const (
	// BackendSQLite stores everything in a single SQLite database file
	BackendSQLite Backend = "sqlite"
	// BackendBadger stores everything in a Badger database directory
	BackendBadger Backend = "badger"
)

// ParseBackend parses a backend name. The empty string selects SQLite.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendSQLite:
		return BackendSQLite, nil
	case BackendBadger:
		return BackendBadger, nil
	default:
		return "", fmt.Errorf("invalid store backend %q", s)
	}
}

// Config describes how to open a store.
type Config struct {
	// Backend is the storage engine. Empty selects SQLite.
	Backend Backend

	// Path is the database file (SQLite) or directory (Badger).
	// An empty path yields an ephemeral in-memory store.
	Path string

	// Mode is the access mode for persistent stores. Ephemeral stores are
	// always writable.
	Mode Mode

	// SyncWrites makes every Badger write synchronous.
	SyncWrites bool

	// Logger receives engine diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration of an ephemeral SQLite store.
func DefaultConfig() Config {
	return Config{
		Backend: BackendSQLite,
		Mode:    ModeCreate,
	}
}

// FileConfig returns a configuration for a persistent SQLite store at path.
func FileConfig(path string, mode Mode) Config {
	return Config{
		Backend: BackendSQLite,
		Path:    path,
		Mode:    mode,
	}
}

// Ephemeral reports whether the configuration describes a memory-only store.
func (c Config) Ephemeral() bool {
	return c.Path == ""
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Discard()
}

// Open opens or creates the store described by cfg.
func Open(cfg Config) (Store, error) {
	backend, err := ParseBackend(string(cfg.Backend))
	if err != nil {
		return nil, &AccessError{Op: "open", Location: cfg.Path, Err: err}
	}
	switch backend {
	case BackendBadger:
		return openBadger(cfg)
	default:
		return openSQLite(cfg)
	}
}

// validName checks a group or dataset name.
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// validGroup accepts the root path or a valid group name.
func validGroup(group string) error {
	if group == Root {
		return nil
	}
	return validName(group)
}
