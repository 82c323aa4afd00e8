package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend persists all values as one JSON document.
// Every Update rewrites the document to a temp file and renames it over the old one.
type FileBackend struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

// NewFileBackend opens (or lazily creates) the document at path
func NewFileBackend(path string) (*FileBackend, error) {
	fb := &FileBackend{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return fb, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	if len(data) == 0 {
		return fb, nil
	}
	if err := json.Unmarshal(data, &fb.values); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	if fb.values == nil {
		fb.values = make(map[string]string)
	}
	return fb, nil
}

func (f *FileBackend) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FileBackend) Update(_ context.Context, set map[string]string, del []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[string]string, len(f.values)+len(set))
	for k, v := range f.values {
		next[k] = v
	}
	applyUpdate(next, set, del)

	if err := f.write(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) write(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}
