package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalFiles is the filesystem stand-in for an "open file" / "save as"
// dialog. Relative names resolve against Dir.
type LocalFiles struct {
	Dir string
}

func (l LocalFiles) resolve(name string) string {
	if filepath.IsAbs(name) || l.Dir == "" {
		return filepath.Clean(name)
	}
	return filepath.Join(l.Dir, name)
}

// Open reads name and also returns its absolute path.
func (l LocalFiles) Open(ctx context.Context, name string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	path, err := filepath.Abs(l.resolve(name))
	if err != nil {
		return nil, "", err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return b, path, nil
}

// SaveAs writes data and returns the absolute path it landed at.
func (l LocalFiles) SaveAs(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := filepath.Abs(l.resolve(name))
	if err != nil {
		return "", err
	}
	if err := atomicWriteFile(path, data, 0600); err != nil {
		return "", err
	}
	return path, nil
}
