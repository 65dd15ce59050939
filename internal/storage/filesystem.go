package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// FileStore writes objects below a root directory as <root>/<bucket>/<key>.
type FileStore struct {
	root   string
	closed atomic.Bool
}

// NewFileStore creates the root directory if needed
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem store: empty root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem store: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// PutObject writes data through a temp file and renames it into place,
// so readers never observe a partial object.
func (s *FileStore) PutObject(ctx context.Context, bucket, key string, data []byte, meta Metadata) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Path returns where bucket/key is stored on disk
func (s *FileStore) Path(bucket, key string) (string, error) {
	return s.objectPath(bucket, key)
}

func (s *FileStore) objectPath(bucket, key string) (string, error) {
	if bucket == "" || bucket == "." || bucket == ".." || key == "" || strings.ContainsAny(bucket, `/\`) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidKey, bucket, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(key)), nil
}

// HealthCheck verifies the root directory still exists
func (s *FileStore) HealthCheck(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("filesystem store: %s is not a directory", s.root)
	}
	return nil
}

// Close marks the store closed
func (s *FileStore) Close() error {
	s.closed.Store(true)
	return nil
}
