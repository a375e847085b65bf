package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReportsForeignWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.vault")
	f := NewFileBackend(path, zerolog.Nop())
	require.NoError(t, f.Save(context.Background(), []byte("ours")))

	var changes atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.Watch(ctx, func(p string) {
			assert.Equal(t, path, p)
			changes.Add(1)
		})
	}()
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, f.Save(context.Background(), []byte("ours again")))
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, changes.Load(), "own writes are not reported")

	require.NoError(t, os.WriteFile(path, []byte("theirs"), 0600))
	assert.Eventually(t, func() bool { return changes.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
}

func TestWatchFollowsActiveFile(t *testing.T) {
	first := filepath.Join(t.TempDir(), "a.vault")
	second := filepath.Join(t.TempDir(), "b.vault")
	f := NewFileBackend(first, zerolog.Nop())

	changed := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Watch(ctx, func(p string) { changed <- p }) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, f.SetActiveFile(second))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(second, []byte("x"), 0600))
	select {
	case p := <-changed:
		assert.Equal(t, second, p)
	case <-time.After(2 * time.Second):
		t.Fatal("change in the new directory was not reported")
	}
}

func TestWatchWithoutActiveFile(t *testing.T) {
	f := NewFileBackend("", zerolog.Nop())
	assert.ErrorIs(t, f.Watch(context.Background(), func(string) {}), ErrNoActiveFile)
}
