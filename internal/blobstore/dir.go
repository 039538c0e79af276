package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"monty/pkg/utils"
)

// DirStore keeps objects as files below a root directory, typically a
// mounted network share.
type DirStore struct {
	root string
}

// NewDirStore returns a store rooted at root. The directory must exist.
func NewDirStore(root string) (*DirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("storage directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage path %s is not a directory", root)
	}
	return &DirStore{root: root}, nil
}

func (d *DirStore) Root() string { return d.root }

func (d *DirStore) path(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

func (d *DirStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

func (d *DirStore) Put(ctx context.Context, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.path(name)
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(p, r, 0644)
}

func (d *DirStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := d.path(name)
	if err != nil {
		return false, err
	}
	return utils.FileExists(p), nil
}

func (d *DirStore) Available() bool { return true }
