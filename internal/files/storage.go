package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a requested file is not in the store.
var ErrNotFound = errors.New("file not found")

// Storage keeps uploaded files in a flat directory on disk.
type Storage struct {
	dir string
}

func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &Storage{dir: dir}, nil
}

// Save writes the file and returns its path. The filename is reduced to its
// base name so callers cannot escape the storage directory.
func (s *Storage) Save(data []byte, filename string) (string, error) {
	path := s.path(filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save file %s: %w", filename, err)
	}
	return path, nil
}

func (s *Storage) Read(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.path(filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", filename, err)
	}
	return data, nil
}

// Delete removes the file; deleting a missing file is a no-op.
func (s *Storage) Delete(filename string) error {
	err := os.Remove(s.path(filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete file %s: %w", filename, err)
	}
	return nil
}

func (s *Storage) path(filename string) string {
	return filepath.Join(s.dir, filepath.Base(filename))
}
