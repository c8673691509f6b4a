package kvstore

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all entries in one JSON object on disk. Every write
// replaces the file atomically, so multi-key updates are never torn.
type FileStore struct {
	Path string

	mu sync.Mutex
}

// NewFileStore creates a FileStore backed by path. The file is created on
// first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Get returns the value stored under key.
func (store *FileStore) Get(key string) (string, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entries, err := store.read()
	if err != nil {
		return "", false, err
	}
	value, ok := entries[key]
	return value, ok, nil
}

// SetMany writes entries in a single file replacement.
func (store *FileStore) SetMany(entries map[string]string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	current, err := store.read()
	if err != nil {
		return err
	}
	maps.Copy(current, entries)
	return store.write(current)
}

// Delete removes keys in a single file replacement.
func (store *FileStore) Delete(keys ...string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	current, err := store.read()
	if err != nil {
		return err
	}
	changed := false
	for _, key := range keys {
		if _, ok := current[key]; ok {
			delete(current, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return store.write(current)
}

// Close is a no-op.
func (store *FileStore) Close() error {
	return nil
}

// read returns the stored entries. A missing file is an empty store.
func (store *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(store.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	entries := map[string]string{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	return entries, nil
}

func (store *FileStore) write(entries map[string]string) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	dir := filepath.Dir(store.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".kvstore-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set store permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), store.Path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
