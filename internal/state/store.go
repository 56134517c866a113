// Package state provides the persistent shared state surviving process
// restarts: the circuit breaker flag, daily trade counters and per-symbol
// cooldowns. All access is serialized; pipelines never touch raw shared
// variables.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// entry is a single persisted value with its update timestamp.
type entry struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is a JSON-file-backed key/value store. Every Set persists the whole
// file atomically (temp file + rename) so a crash never leaves a torn state.
type Store struct {
	path    string
	mu      sync.Mutex
	entries map[string]entry
}

// Open loads the store from path, creating an empty one if the file does not
// exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]entry),
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	if err := json.Unmarshal(b, &s.entries); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return s, nil
}

// Get unmarshals the value for key into out. The boolean reports presence.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		return true, fmt.Errorf("decoding state key %s: %w", key, err)
	}
	return true, nil
}

// Set stores the value for key and persists the store.
func (s *Store) Set(key string, val interface{}) error {
	b, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encoding state key %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{Value: b, UpdatedAt: time.Now().UTC()}
	return s.flushLocked()
}

// SetAll stores multiple keys in one persisted write.
func (s *Store) SetAll(vals map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for key, val := range vals {
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encoding state key %s: %w", key, err)
		}
		s.entries[key] = entry{Value: b, UpdatedAt: now}
	}
	return s.flushLocked()
}

// UpdatedAt returns the update timestamp for key, zero if absent.
func (s *Store) UpdatedAt(key string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[key].UpdatedAt
}

func (s *Store) flushLocked() error {
	b, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, b, 0o600)
}

// writeFileAtomic writes via a temp file and rename so readers never observe
// a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
