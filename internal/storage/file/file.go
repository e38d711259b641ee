package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"authgate/internal/storage"
)

const DefaultPath = ".secrets/credentials.json"

// Storage persists credentials in a JSON file readable only by the owner.
type Storage struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Storage {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &Storage{path: path}
}

func (s *Storage) Get(_ context.Context, key storage.Key) (string, error) {
	const op = "storage.file.Get"

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	v, ok := values[key]
	if !ok || v == "" {
		return "", storage.ErrCredentialNotFound
	}
	return v, nil
}

func (s *Storage) Set(_ context.Context, key storage.Key, value string) error {
	const op = "storage.file.Set"

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	values[key] = value
	if err := s.save(values); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) Delete(_ context.Context, keys ...storage.Key) error {
	const op = "storage.file.Delete"

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	changed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	if err := s.save(values); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// load returns an empty set when the file does not exist yet.
func (s *Storage) load() (map[storage.Key]string, error) {
	values := make(map[storage.Key]string, len(storage.Keys))

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return values, nil
}

func (s *Storage) save(values map[storage.Key]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("chmod file: %w", err)
	}
	return nil
}
