package storage

import (
	"bytes"
	"sync"
)

type memStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMem returns a transient in-memory backend.
func NewMem(opts Options) *Backend {
	return newBackend(&memStore{data: map[string][]byte{}}, "memory", opts)
}

func (s *memStore) get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, has := s.data[string(key)]
	if !has {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (s *memStore) put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(key)] = bytes.Clone(value)
	return nil
}

func (s *memStore) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
