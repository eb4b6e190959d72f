package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// storeDirPermissions is the permission mode for the config directory.
	storeDirPermissions = 0750

	// storeFilePermissions keeps device API keys owner-readable only.
	storeFilePermissions = 0600
)

// ConfigStore persists the full device list. Load on startup, Save after
// every mutation; the store is the wire contract other tools read.
type ConfigStore interface {
	// Load returns all persisted device configurations.
	// A missing backing file is an empty fleet, not an error.
	Load(ctx context.Context) ([]Config, error)

	// Save persists the full device list, replacing previous contents.
	Save(ctx context.Context, configs []Config) error
}

// FileStore persists device configurations as a single JSON array.
//
// Writes go to a temporary file in the same directory followed by a rename,
// so readers never observe a torn file. Concurrent saves are serialised;
// the last writer wins.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the JSON file at path.
// The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the device list from disk.
//
// Returns:
//   - []Config: Persisted devices; empty when the file does not exist
//   - error: If the file cannot be read or parsed
func (s *FileStore) Load(_ context.Context) ([]Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading device config file: %w", err)
	}

	var configs []Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parsing device config file: %w", err)
	}

	return configs, nil
}

// Save writes the device list atomically.
//
// Returns:
//   - error: If marshalling or any filesystem step fails
func (s *FileStore) Save(_ context.Context, configs []Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if configs == nil {
		configs = []Config{}
	}

	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding device configs: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, storeDirPermissions); err != nil {
		return fmt.Errorf("creating device config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".devices-*.json")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()         //nolint:errcheck // Best effort cleanup
		os.Remove(tmpName)  //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("writing temp config file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("closing temp config file: %w", err)
	}

	if err := os.Chmod(tmpName, storeFilePermissions); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("setting config file permissions: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("replacing device config file: %w", err)
	}

	return nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}
