package adapters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StateStore is the file-backed control-point state shared by direct
// adapters. Each entry maps "kind/name" to the last applied specification.
// The file is rewritten atomically so a crashed adapter never leaves a
// truncated store behind.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore opens (or lazily creates) a state store at path.
func NewStateStore(path string) (*StateStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state store directory: %w", err)
	}
	return &StateStore{path: path}, nil
}

// Get returns the stored specification for a resource, if any.
func (s *StateStore) Get(kind, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return "", false, err
	}
	spec, ok := state[stateKey(kind, name)]
	return spec, ok, nil
}

// Put records the applied specification for a resource.
func (s *StateStore) Put(kind, name, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	state[stateKey(kind, name)] = spec
	return s.save(state)
}

// Delete removes a resource from the store.
func (s *StateStore) Delete(kind, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	delete(state, stateKey(kind, name))
	return s.save(state)
}

func (s *StateStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state store: %w", err)
	}

	state := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("state store %s is corrupt: %w", s.path, err)
		}
	}
	return state, nil
}

func (s *StateStore) save(state map[string]string) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize state store: %w", err)
	}
	return nil
}

func stateKey(kind, name string) string {
	return kind + "/" + name
}
