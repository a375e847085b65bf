package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "my.vault")
	f := NewFileBackend(path, zerolog.Nop())

	_, err := f.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.Save(ctx, []byte("one")))
	require.NoError(t, f.Save(ctx, []byte("two")))

	got, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".svlt-", "temp files must not be left behind")
	}
}

func TestFileBackendWithoutActiveFile(t *testing.T) {
	f := NewFileBackend("", zerolog.Nop())

	_, ok := f.ActiveFile()
	assert.False(t, ok)
	assert.ErrorIs(t, f.Save(context.Background(), []byte("x")), ErrNoActiveFile)
	_, err := f.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveFile)
}

func TestFileBackendSetActiveFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f := NewFileBackend(filepath.Join(dir, "a.vault"), zerolog.Nop())
	require.NoError(t, f.Save(ctx, []byte("a")))

	require.Error(t, f.SetActiveFile(dir), "a directory cannot be the active file")

	require.NoError(t, f.SetActiveFile(filepath.Join(dir, "b.vault")))
	path, ok := f.ActiveFile()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "b.vault"), path)

	require.NoError(t, f.Save(ctx, []byte("b")))
	a, err := os.ReadFile(filepath.Join(dir, "a.vault"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), a, "switching files must not touch the previous one")
}

func TestFileBackendClearActiveFile(t *testing.T) {
	ctx := context.Background()
	f := NewFileBackend(filepath.Join(t.TempDir(), "a.vault"), zerolog.Nop())
	require.NoError(t, f.Save(ctx, []byte("a")))

	f.ClearActiveFile()
	_, ok := f.ActiveFile()
	assert.False(t, ok)
	assert.ErrorIs(t, f.Save(ctx, []byte("b")), ErrNoActiveFile)
}

func TestFileBackendLockedByAnotherWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.vault")
	f := NewFileBackend(path, zerolog.Nop())
	f.LockTimeout = 150 * time.Millisecond
	require.NoError(t, f.Save(context.Background(), []byte("good")))

	other := flock.New(path + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	err = f.Save(context.Background(), []byte("bad"))
	require.ErrorIs(t, err, ErrFileLocked)

	got, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("good"), got, "a refused write keeps the previous save")
}

func TestLocalFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := LocalFiles{Dir: dir}

	path, err := l.SaveAs(ctx, "export.vault", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "export.vault"), path)

	got, loc, err := l.Open(ctx, "export.vault")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
	assert.Equal(t, path, loc)

	got, loc, err = (LocalFiles{Dir: "elsewhere"}).Open(ctx, path)
	require.NoError(t, err, "absolute names bypass Dir")
	assert.Equal(t, []byte("data"), got)
	assert.Equal(t, path, loc)

	_, _, err = l.Open(ctx, "nope.vault")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSecrets(t *testing.T) {
	s := NewSecrets()

	in := []byte{1, 2, 3}
	s.Put("key", in)
	in[0] = 9

	got, ok := s.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got, "Put copies its input")
	got[1] = 9
	again, ok := s.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, again, "Get returns a copy")

	s.Wipe("key")
	_, ok = s.Get("key")
	assert.False(t, ok)

	s.Put("a", []byte("x"))
	s.Put("b", []byte("y"))
	s.WipeAll()
	_, ok = s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("b")
	assert.False(t, ok)
}
