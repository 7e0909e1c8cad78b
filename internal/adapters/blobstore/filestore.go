// Package blobstore implements the BlobStore port on the local filesystem.
// Locations are the storage keys themselves, kept opaque to callers so a
// bucket-backed implementation can replace this one without touching the
// expense core.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
)

type FileStore struct {
	baseDir string
}

// NewFileStore creates the base directory if needed and returns a store
// rooted there.
func NewFileStore(baseDir string) (*FileStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob store dir %s: %w", baseDir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob store dir %s: %w", abs, err)
	}
	return &FileStore{baseDir: abs}, nil
}

// Ensure FileStore implements clients.BlobStore
var _ clients.BlobStore = (*FileStore)(nil)

// Put writes data under key and returns the key as the blob location. The
// content type is not persisted; readers sniff it from the bytes.
func (s *FileStore) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	full, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory for %s: %w", key, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return key, nil
}

// Get fetches the bytes previously stored at location.
func (s *FileStore) Get(ctx context.Context, location string) ([]byte, error) {
	full, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", location, err)
	}
	return data, nil
}

// resolve maps a key to an absolute path inside baseDir, rejecting keys that
// would escape it.
func (s *FileStore) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: blob key is empty", apperrors.ErrValidation)
	}
	rel := filepath.Clean(key)
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: blob key %q escapes the store", apperrors.ErrValidation, key)
	}
	return filepath.Join(s.baseDir, rel), nil
}
