package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var backends = []Backend{BackendSQLite, BackendBadger}

func testMatrix() *mat.Dense {
	return mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6.5})
}

func storePath(t *testing.T, b Backend) string {
	t.Helper()
	if b == BackendBadger {
		return filepath.Join(t.TempDir(), "db")
	}
	return filepath.Join(t.TempDir(), "image.sqlite")
}

// TestEphemeralRoundTrip verifies datasets, groups and attributes on a memory store
func TestEphemeralRoundTrip(t *testing.T) {
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			st, err := Open(Config{Backend: b})
			require.NoError(t, err)
			defer st.Close()

			assert.True(t, st.Ephemeral())
			assert.True(t, st.Writable())
			assert.Empty(t, st.Location())

			ok, err := st.HasGroup(Root)
			require.NoError(t, err)
			assert.True(t, ok, "root group always exists")

			require.NoError(t, st.CreateGroup("phase"))
			require.NoError(t, st.CreateGroup("phase"), "creating twice is allowed")
			require.NoError(t, st.CreateGroup("amplitude"))
			groups, err := st.Groups()
			require.NoError(t, err)
			assert.Equal(t, []string{"amplitude", "phase"}, groups)

			require.NoError(t, st.WriteDataset("phase", "raw", testMatrix()))
			got, err := st.ReadDataset("phase", "raw")
			require.NoError(t, err)
			assert.True(t, mat.Equal(testMatrix(), got))

			ok, err = st.HasDataset("phase", "raw")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, st.WriteDataset("phase", "bg_data", mat.NewDense(1, 1, []float64{7})))
			names, err := st.Datasets("phase")
			require.NoError(t, err)
			assert.Equal(t, []string{"bg_data", "raw"}, names)

			require.NoError(t, st.SetAttr(Root, "wavelength", 550e-9))
			require.NoError(t, st.SetAttr("phase", "scale", 2))
			v, err := st.Attr(Root, "wavelength")
			require.NoError(t, err)
			assert.Equal(t, 550e-9, v)
			attrs, err := st.Attrs("phase")
			require.NoError(t, err)
			assert.Equal(t, map[string]float64{"scale": 2}, attrs)

			require.NoError(t, st.DeleteAttr(Root, "wavelength"))
			_, err = st.Attr(Root, "wavelength")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.DeleteDataset("phase", "bg_data"))
			require.NoError(t, st.DeleteDataset("phase", "bg_data"), "deleting twice is allowed")
			_, err = st.ReadDataset("phase", "bg_data")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

// TestWriteToMissingGroup verifies that datasets require an existing group
func TestWriteToMissingGroup(t *testing.T) {
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			st, err := Open(Config{Backend: b})
			require.NoError(t, err)
			defer st.Close()

			err = st.WriteDataset("nope", "raw", testMatrix())
			assert.ErrorIs(t, err, ErrNotFound)

			err = st.WriteDataset("nope", "", testMatrix())
			assert.ErrorIs(t, err, ErrInvalidName)

			require.NoError(t, st.CreateGroup("g"))
			err = st.WriteDataset("g", "empty", &mat.Dense{})
			assert.ErrorIs(t, err, ErrEmptyArray)
		})
	}
}

// TestPersistentReopen verifies that data survives a close and reopen
func TestPersistentReopen(t *testing.T) {
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			path := storePath(t, b)

			st, err := Open(Config{Backend: b, Path: path, Mode: ModeCreate})
			require.NoError(t, err)
			assert.False(t, st.Ephemeral())
			assert.Equal(t, path, st.Location())
			require.NoError(t, st.CreateGroup("phase"))
			require.NoError(t, st.WriteDataset("phase", "raw", testMatrix()))
			require.NoError(t, st.SetAttr(Root, "pixel_size", 1e-7))
			require.NoError(t, st.Flush())
			require.NoError(t, st.Close())
			assert.True(t, st.Closed())
			require.NoError(t, st.Close(), "closing twice is a no-op")

			ro, err := Open(Config{Backend: b, Path: path, Mode: ModeRead})
			require.NoError(t, err)
			defer ro.Close()
			assert.False(t, ro.Writable())

			got, err := ro.ReadDataset("phase", "raw")
			require.NoError(t, err)
			assert.True(t, mat.Equal(testMatrix(), got))
			v, err := ro.Attr(Root, "pixel_size")
			require.NoError(t, err)
			assert.Equal(t, 1e-7, v)

			err = ro.SetAttr(Root, "pixel_size", 2)
			var accessErr *AccessError
			require.True(t, errors.As(err, &accessErr))
			assert.ErrorIs(t, err, ErrReadOnly)
			assert.Equal(t, path, accessErr.Location)
		})
	}
}

// TestOpenMissing verifies that read modes refuse to create a store
func TestOpenMissing(t *testing.T) {
	for _, b := range backends {
		for _, mode := range []Mode{ModeRead, ModeReadWrite} {
			t.Run(string(b)+"/"+mode.String(), func(t *testing.T) {
				_, err := Open(Config{Backend: b, Path: storePath(t, b), Mode: mode})
				var accessErr *AccessError
				assert.True(t, errors.As(err, &accessErr), "got %v", err)
			})
		}
	}
}

// TestClosedStore verifies that a closed store rejects every operation
func TestClosedStore(t *testing.T) {
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			st, err := Open(Config{Backend: b})
			require.NoError(t, err)
			require.NoError(t, st.Close())

			_, err = st.Groups()
			assert.ErrorIs(t, err, ErrClosed)
			err = st.CreateGroup("phase")
			assert.ErrorIs(t, err, ErrClosed)
			assert.NoError(t, st.Flush(), "flushing a closed store is a no-op")
		})
	}
}

// TestParseMode verifies short and long mode names
func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"r":                 ModeRead,
		"read":              ModeRead,
		"r+":                ModeReadWrite,
		"read-write":        ModeReadWrite,
		"a":                 ModeCreate,
		" A ":               ModeCreate,
		"read-write-create": ModeCreate,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("w")
	assert.Error(t, err)

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("r+")))
	assert.Equal(t, ModeReadWrite, m)
	text, err := m.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "r+", string(text))
}

// TestParseBackend verifies backend names
func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, b)

	b, err = ParseBackend("Badger")
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, b)

	_, err = Open(Config{Backend: "hdf5"})
	var accessErr *AccessError
	assert.True(t, errors.As(err, &accessErr))
}

// TestAccessErrorMessage verifies the formatting of engine failures
func TestAccessErrorMessage(t *testing.T) {
	err := &AccessError{Op: "open", Err: ErrClosed}
	assert.Equal(t, "store open (memory): store is closed", err.Error())
	err.Location = "/tmp/x.sqlite"
	assert.Equal(t, "store open (/tmp/x.sqlite): store is closed", err.Error())
}
