package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// File stores each key as one JSON file under a directory.
type File struct {
	Dir string
}

func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("store: file directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &File{Dir: dir}, nil
}

// path escapes the key so user IDs cannot traverse out of Dir.
func (f *File) path(key string) string {
	return filepath.Join(f.Dir, url.PathEscape(key)+".json")
}

func (f *File) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Save writes to a temp file and renames it so readers never see a partial snapshot.
func (f *File) Save(ctx context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(f.Dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

func (f *File) Close() error { return nil }
