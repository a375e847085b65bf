package store

import (
	"bytes"
	"sync"
)

// Secrets is volatile per-session storage for key material. It never
// touches disk; Wipe zeroes the bytes before forgetting them.
type Secrets struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewSecrets() *Secrets {
	return &Secrets{m: map[string][]byte{}}
}

func (s *Secrets) Put(name string, secret []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.m[name]; ok {
		zero(old)
	}
	s.m[name] = bytes.Clone(secret)
}

// Get returns a copy; the caller owns it and should zero it when done.
func (s *Secrets) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[name]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

func (s *Secrets) Wipe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[name]; ok {
		zero(v)
		delete(s.m, name)
	}
}

func (s *Secrets) WipeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, v := range s.m {
		zero(v)
		delete(s.m, name)
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
