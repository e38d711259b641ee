package memory

import (
	"context"
	"sync"

	"authgate/internal/storage"
)

// Storage keeps credentials in process memory.
type Storage struct {
	mu     sync.RWMutex
	values map[storage.Key]string
}

func New() *Storage {
	return &Storage{values: make(map[storage.Key]string, len(storage.Keys))}
}

func (s *Storage) Get(_ context.Context, key storage.Key) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok || v == "" {
		return "", storage.ErrCredentialNotFound
	}
	return v, nil
}

func (s *Storage) Set(_ context.Context, key storage.Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *Storage) Delete(_ context.Context, keys ...storage.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}
