package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when an archive key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// FSStore implements the Backend interface using the local filesystem.
type FSStore struct {
	root     string
	provider string
}

// NewFSStore creates a new filesystem-based storage backend.
func NewFSStore(root string) (*FSStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root dir: %w", err)
	}
	return &FSStore{root: absRoot, provider: "filesystem"}, nil
}

func (s *FSStore) Provider() string {
	return s.provider
}

// path resolves key under root and refuses keys that escape it.
func (s *FSStore) path(key string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: key %q escapes root", key)
	}
	return full, nil
}

func (s *FSStore) PutArchive(_ context.Context, kind string, at time.Time, raw []byte) (ObjectMeta, error) {
	blob, meta, err := PrepareBlob(raw, kind, at)
	if err != nil {
		return ObjectMeta{}, err
	}
	fullPath, err := s.path(meta.Key)
	if err != nil {
		return ObjectMeta{}, err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ObjectMeta{}, fmt.Errorf("storage: mkdir: %w", err)
	}

	// Atomic write: write to temp file then rename (same partition)
	tmpFile, err := os.CreateTemp(dir, "archive-*.tmp")
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName)

	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return ObjectMeta{}, fmt.Errorf("storage: chmod: %w", err)
	}
	if _, err := tmpFile.Write(blob); err != nil {
		tmpFile.Close()
		return ObjectMeta{}, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return ObjectMeta{}, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return ObjectMeta{}, fmt.Errorf("storage: rename: %w", err)
	}

	meta.Provider = s.provider
	return meta, nil
}

func (s *FSStore) GetArchive(_ context.Context, key string) ([]byte, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	defer f.Close()
	return DecompressBlob(f)
}

func (s *FSStore) DeleteObject(_ context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // idempotent delete
		}
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}
