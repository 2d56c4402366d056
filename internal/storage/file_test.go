package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Store(ctx, "snapshots/sicon.json", []byte(`{"v":1}`)))
	require.NoError(t, s.Store(ctx, "snapshots/sicon.json", []byte(`{"v":2}`)))
	require.NoError(t, s.Store(ctx, "snapshots/mor.json", []byte(`{}`)))
	require.NoError(t, s.Store(ctx, "other.txt", []byte("x")))

	data, err := s.Retrieve(ctx, "snapshots/sicon.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	names, err := s.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/mor.json", "snapshots/sicon.json"}, names)

	require.NoError(t, s.Delete(ctx, "snapshots/mor.json"))
	require.NoError(t, s.Delete(ctx, "snapshots/mor.json"), "deleting twice is fine")

	_, err = s.Retrieve(ctx, "snapshots/mor.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStorage_LeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStorage(root)
	require.NoError(t, err)

	require.NoError(t, s.Store(context.Background(), "snapshots/sicon.json", []byte("data")))

	entries, err := os.ReadDir(filepath.Join(root, "snapshots"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sicon.json", entries[0].Name())
}

func TestFileStorage_RejectsEscapingNames(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../outside.json", "/etc/passwd", ".", ""} {
		assert.Error(t, s.Store(context.Background(), name, []byte("x")), name)
	}
}

func TestFileStorage_CancelledContext(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Store(ctx, "a.json", []byte("x")), context.Canceled)
}
