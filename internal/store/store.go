// Package store persists a handful of integers across restarts.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by GetInt for a key that was never written.
var ErrNotFound = errors.New("store: key not found")

// Store is a persistent integer key-value store.
type Store interface {
	GetInt(key string) (int64, error)
	SetInt(key string, v int64) error
}

// FileStore keeps all keys in one YAML file, rewritten on every SetInt.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string]int64
}

// OpenFile loads path, or starts empty if it does not exist yet.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, data: map[string]int64{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", path, err)
	}
	if s.data == nil {
		s.data = map[string]int64{}
	}
	return s, nil
}

// GetInt returns the value stored under key.
func (s *FileStore) GetInt(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

// SetInt stores v under key and flushes the file.
func (s *FileStore) SetInt(key string, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = v
	return s.flush()
}

// flush writes via a temporary file so a power cut never leaves a torn file.
func (s *FileStore) flush() error {
	raw, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and --sim runs.
type MemStore struct {
	mu   sync.Mutex
	data map[string]int64

	// SetError, if set, is returned by SetInt.
	SetError error
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: map[string]int64{}}
}

func (m *MemStore) GetInt(key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (m *MemStore) SetInt(key string, v int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetError != nil {
		return m.SetError
	}
	m.data[key] = v
	return nil
}
