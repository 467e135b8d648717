package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// DiskStore writes images into a local directory that the HTTP server
// exposes read-only under URLPrefix.
type DiskStore struct {
	dir       string
	urlPrefix string
}

// NewDiskStore creates dir if needed. urlPrefix is usually "/uploads".
func NewDiskStore(dir, urlPrefix string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: creating upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, urlPrefix: urlPrefix}, nil
}

// Dir is the directory images are written to.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) Put(ctx context.Context, key, _ string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.dir, filepath.Base(key))
	// O_EXCL: two uploads of the same name in the same millisecond must not
	// silently overwrite each other.
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("upload: creating %s: %w", dst, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("upload: writing %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("upload: closing %s: %w", dst, err)
	}

	return path.Join(s.urlPrefix, filepath.Base(key)), nil
}

func (s *DiskStore) Delete(_ context.Context, key string) error {
	dst := filepath.Join(s.dir, filepath.Base(key))
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("upload: removing %s: %w", dst, err)
	}
	return nil
}
