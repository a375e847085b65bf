// Package store holds the places encrypted vault bytes can live: a
// key-value directory, a bbolt database, an in-memory map, a single
// user-selected vault file, and the volatile per-session secret store.
//
// Nothing in this package understands the envelope it persists; it moves
// opaque bytes and guarantees that a failed write leaves the previous value
// in place.
package store

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrInvalidKey   = errors.New("store: invalid key")
	ErrNoActiveFile = errors.New("store: no active file")
	ErrFileLocked   = errors.New("store: file is locked by another writer")
)

func validKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return ErrInvalidKey
	}
	return nil
}
