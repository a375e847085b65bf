package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reports changes to the active vault file made by anything other
// than this backend. It watches the parent directory because saves replace
// the file by rename. onChange runs on the watcher goroutine. Watch blocks
// until ctx is done.
func (f *FileBackend) Watch(ctx context.Context, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := ""
	retarget := func() error {
		path, ok := f.ActiveFile()
		if !ok {
			return ErrNoActiveFile
		}
		next := filepath.Dir(path)
		if next == dir {
			return nil
		}
		if dir != "" {
			_ = watcher.Remove(dir)
		}
		if err := os.MkdirAll(next, 0700); err != nil {
			return err
		}
		if err := watcher.Add(next); err != nil {
			return fmt.Errorf("failed to watch %s: %w", next, err)
		}
		dir = next
		f.log.Debug().Str("dir", dir).Msg("watching vault directory")
		return nil
	}
	if err := retarget(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.moved:
			if err := retarget(); err != nil {
				f.log.Warn().Err(err).Msg("vault watcher could not follow active file")
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path, ok := f.ActiveFile()
			if !ok || filepath.Clean(event.Name) != path {
				continue
			}
			b, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if f.known(path, sha256.Sum256(b)) {
				continue
			}
			f.log.Info().Str("path", path).Msg("vault file changed on disk")
			onChange(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Warn().Err(err).Msg("vault watcher error")
		}
	}
}
