// Package blobstore is the remote side of the media catalog: a flat
// namespace of named objects holding audio files and the catalog index.
//
// The store is chosen once by Open. When no backend is configured or the
// backend cannot be reached, Open returns an Unavailable store and every
// caller sees ErrStorageUnavailable instead of a transport error.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrStorageUnavailable is returned by every operation of an Unavailable store.
	ErrStorageUnavailable = errors.New("remote storage unavailable")
)

// ObjectStore stores named objects. Names are slash separated and relative.
type ObjectStore interface {
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	Put(ctx context.Context, name string, r io.Reader) error
	Exists(ctx context.Context, name string) (bool, error)
	Available() bool
}

// Unavailable is the store used when the remote cannot be reached.
type Unavailable struct {
	Reason string
}

func (u Unavailable) err() error {
	if u.Reason == "" {
		return ErrStorageUnavailable
	}
	return fmt.Errorf("%w: %s", ErrStorageUnavailable, u.Reason)
}

func (u Unavailable) Get(context.Context, string) (io.ReadCloser, error) { return nil, u.err() }
func (u Unavailable) Put(context.Context, string, io.Reader) error       { return u.err() }
func (u Unavailable) Exists(context.Context, string) (bool, error)       { return false, u.err() }
func (u Unavailable) Available() bool                                    { return false }

// CleanName validates an object name and returns it in canonical form.
// Absolute names and names escaping the namespace are rejected.
func CleanName(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "", fmt.Errorf("empty object name")
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return clean, nil
}
