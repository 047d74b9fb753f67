// Package file provides a file-backed store backend that survives process
// restarts. The whole store is one JSON snapshot rewritten atomically on
// every mutation; a corrupt or missing snapshot degrades to an empty store.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vietddude/healer/internal/infra/store"
)

// Config holds file backend settings.
type Config struct {
	Path string `yaml:"path"`
}

// Store persists values in a single JSON file. It assumes one writing
// process per path; the ttl hint is ignored (the cache layer expires
// entries from their metadata).
type Store struct {
	path   string
	mu     sync.Mutex
	values map[string][]byte
}

// Open loads the snapshot at path, creating parent directories as needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("file store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}

	s := &Store{path: path, values: make(map[string][]byte)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read snapshot: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		// A torn or hand-edited snapshot should not brick the cache.
		slog.Warn("file store: snapshot unreadable, starting empty", "path", path, "error", err)
		s.values = make(map[string][]byte)
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, _ time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
	return s.save()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.save()
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// save writes the snapshot via rename so readers never see a partial file.
// Callers must hold s.mu.
func (s *Store) save() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("file store: marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file store: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("file store: replace snapshot: %w", err)
	}
	return nil
}
