package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

const lockRetryDelay = 50 * time.Millisecond

// FileBackend persists the envelope to one vault file chosen by the user.
// Writers serialize on a sibling ".lock" file so two processes never
// interleave renames on the same vault.
type FileBackend struct {
	mu   sync.RWMutex
	path string
	// digest of the bytes this process last read or wrote
	sum   [sha256.Size]byte
	moved chan struct{}

	LockTimeout time.Duration
	log         zerolog.Logger
}

func NewFileBackend(path string, log zerolog.Logger) *FileBackend {
	return &FileBackend{path: path, LockTimeout: 5 * time.Second, log: log, moved: make(chan struct{}, 1)}
}

func (f *FileBackend) ActiveFile() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.path, f.path != ""
}

func (f *FileBackend) SetActiveFile(path string) error {
	if path == "" {
		return ErrNoActiveFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(abs); err == nil && fi.IsDir() {
		return fmt.Errorf("store: %s is a directory", abs)
	}

	f.mu.Lock()
	prev := f.path
	f.path = abs
	f.sum = [sha256.Size]byte{}
	f.mu.Unlock()

	select {
	case f.moved <- struct{}{}:
	default:
	}

	f.log.Info().Str("previous", prev).Str("path", abs).Msg("active vault file changed")
	return nil
}

// ClearActiveFile forgets the active file. Save and Load fail with
// ErrNoActiveFile until SetActiveFile is called again.
func (f *FileBackend) ClearActiveFile() {
	f.mu.Lock()
	prev := f.path
	f.path = ""
	f.sum = [sha256.Size]byte{}
	f.mu.Unlock()
	if prev != "" {
		f.log.Info().Str("previous", prev).Msg("active vault file cleared")
	}
}

func (f *FileBackend) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := f.ActiveFile()
	if !ok {
		return nil, ErrNoActiveFile
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.remember(path, sha256.Sum256(b))
	return b, nil
}

func (f *FileBackend) remember(path string, sum [sha256.Size]byte) (prev [sha256.Size]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev = f.sum
	if f.path == path {
		f.sum = sum
	}
	return prev
}

func (f *FileBackend) known(path string, sum [sha256.Size]byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.path == path && f.sum == sum
}

func (f *FileBackend) Save(ctx context.Context, envelope []byte) error {
	path, ok := f.ActiveFile()
	if !ok {
		return ErrNoActiveFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	lockCtx := ctx
	if f.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, f.LockTimeout)
		defer cancel()
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %s", ErrFileLocked, path)
		}
		return err
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrFileLocked, path)
	}
	defer lock.Unlock()

	prev := f.remember(path, sha256.Sum256(envelope))
	if err := atomicWriteFile(path, envelope, 0600); err != nil {
		f.remember(path, prev)
		return err
	}
	f.log.Debug().Str("path", path).Int("bytes", len(envelope)).Msg("vault file written")
	return nil
}
