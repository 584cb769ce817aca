package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a Store backed by a single JSON file. Every write rewrites the
// whole file through a temp file and rename, so a crash never leaves a
// half-written store behind.
type File struct {
	mu     sync.Mutex
	path   string
	mode   fs.FileMode
	values map[string]string
}

// OpenFile loads (or creates) a file-backed store. The mode is applied to
// newly created files; the secure partition should be opened with 0600.
func OpenFile(path string, mode fs.FileMode) (*File, error) {
	f := &File{
		path:   path,
		mode:   mode,
		values: make(map[string]string),
	}

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}

	if len(content) > 0 {
		if err := json.Unmarshal(content, &f.values); err != nil {
			return nil, fmt.Errorf("decode store file %q: %w", path, err)
		}
	}

	return f, nil
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return f.flush()
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return f.flush()
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = make(map[string]string)
	return f.flush()
}

func (f *File) flush() error {
	data, err := json.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, f.mode); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

// OpenFilePartitions opens the default on-disk layout under dir: a 0600
// secure store for tokens and a 0644 general store for everything else.
func OpenFilePartitions(dir string) (Partitions, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Partitions{}, fmt.Errorf("create data dir: %w", err)
	}

	secure, err := OpenFile(filepath.Join(dir, "secure.json"), 0o600)
	if err != nil {
		return Partitions{}, fmt.Errorf("open secure store: %w", err)
	}
	general, err := OpenFile(filepath.Join(dir, "store.json"), 0o644)
	if err != nil {
		return Partitions{}, fmt.Errorf("open general store: %w", err)
	}

	return Partitions{Secure: secure, General: general}, nil
}
