package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend stores one file per key under a directory. Writes go to a
// temp file that is fsynced and renamed over the target, so a crash leaves
// either the old value or the new one.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

// NewFileBackend creates dir with 0700 permissions if it does not exist.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("store: file backend directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) Dir() string {
	return f.dir
}

func (f *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %q: %w", key, err)
	}
	return data, nil
}

func (f *FileBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path(key), value)
}

func (f *FileBackend) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: remove %q: %w", key, err)
	}
	return nil
}

// Keys are encoded so that separators and dots in a namespace can never
// escape the directory.
func (f *FileBackend) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key)))
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	fh, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}

	cleanup := func() {
		_ = fh.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := fh.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := fh.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("store: fsync temp file: %w", err)
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}
