// Package settings persists user-level application settings: the remote
// optimization service API key and the location of the data library.
//
// Settings live in a single YAML file. The store keeps an in-memory copy
// guarded by a read-write mutex and rewrites the file atomically on every
// update, so concurrent HTTP handlers can read credentials while an update
// is in flight.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the settings file name under the app data directory.
const DefaultFileName = "settings.yaml"

// Settings is the persisted shape of the settings file.
type Settings struct {
	// APIKey authenticates against the remote optimization service.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// LibraryPath overrides the default location of the data library.
	LibraryPath string `yaml:"library_path,omitempty" json:"library_path,omitempty"`
}

// Store reads and writes the settings file.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Settings
}

// DefaultPath returns the settings file location under the application's
// data directory.
func DefaultPath(configName string) string {
	return filepath.Join(gfconfig.GetAppDataDir(configName), DefaultFileName)
}

// Open loads the settings file at path. A missing file is not an error; the
// store starts empty and creates the file on first update.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.current); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// APIKey returns the configured API key, or empty when not set. Satisfies
// the optimizer's credentials interface.
func (s *Store) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.APIKey
}

// LibraryPath returns the configured library path, or empty for the default.
func (s *Store) LibraryPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.LibraryPath
}

// Update applies fn to the settings and persists the result. The write is
// atomic: the new content lands in a temp file that replaces the old one.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)

	if err := s.write(next); err != nil {
		return err
	}
	s.current = next
	return nil
}

func (s *Store) write(v Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}
