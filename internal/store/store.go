// Package store persists small user preferences as opaque key -> JSON
// string pairs in a YAML sidecar file: the "record audio" default and the
// previously used recording names for autocomplete.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	keyRecordAudio   = "recordAudio"
	keyPreviousNames = "previousNames"
)

// Store is a key/value preference store backed by a single YAML file.
// Values are JSON-encoded strings so the file format stays opaque to the
// keys it carries.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return s, nil
}

// Get unmarshals the value stored under key into v. The boolean reports
// whether the key was present.
func (s *Store) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("failed to decode setting %q: %w", key, err)
	}
	return true, nil
}

// Put stores v under key and persists the file immediately.
func (s *Store) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = string(raw)
	return s.save()
}

// save writes the backing file; caller holds s.mu.
func (s *Store) save() error {
	data, err := yaml.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// RecordAudio returns the persisted "record audio by default" flag.
// Absent or unreadable values default to false.
func (s *Store) RecordAudio() bool {
	var enabled bool
	s.Get(keyRecordAudio, &enabled)
	return enabled
}

// SetRecordAudio persists the "record audio by default" flag.
func (s *Store) SetRecordAudio(enabled bool) error {
	return s.Put(keyRecordAudio, enabled)
}

// PreviousNames returns the sorted list of previously used recording names.
func (s *Store) PreviousNames() []string {
	var names []string
	s.Get(keyPreviousNames, &names)
	return names
}

// RememberName adds a name to the autocomplete list, deduplicated and
// kept sorted. Empty names are ignored.
func (s *Store) RememberName(name string) error {
	if name == "" {
		return nil
	}
	names := s.PreviousNames()
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	names = append(names, name)
	sort.Strings(names)
	return s.Put(keyPreviousNames, names)
}

// FilterNames returns the names containing query, case-insensitively.
// An empty query returns everything.
func FilterNames(names []string, query string) []string {
	if query == "" {
		return names
	}
	query = strings.ToLower(query)
	var out []string
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), query) {
			out = append(out, n)
		}
	}
	return out
}
