// Package storage keeps exam material bytes on local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrInvalidRef is returned for references that do not name a stored file.
var ErrInvalidRef = errors.New("invalid content reference")

// Local stores materials as UUID-named files in a single directory.
// A content reference is the file's base name.
type Local struct {
	dir string
}

// NewLocal creates a Local storage rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Save writes body to a new file and returns its reference.
func (s *Local) Save(ctx context.Context, body io.Reader, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	ref := uuid.New().String() + ext
	destPath := filepath.Join(s.dir, ref)

	dst, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(dst, body); err != nil {
		dst.Close()
		os.Remove(destPath)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("close file: %w", err)
	}
	return ref, nil
}

// Path resolves a reference to a readable file path.
func (s *Local) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || ref == "." || ref == ".." {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.dir, ref), nil
}

// Remove deletes the stored file. A missing file is not an error.
func (s *Local) Remove(ctx context.Context, ref string) error {
	p, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
