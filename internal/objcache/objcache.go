// Package objcache mirrors remote audio objects into a local directory on
// demand and moves the catalog index in and out of the object store.
//
// Cache files live at {root}/{artist_id}/{release_id}/{recording_id}.{format}
// and are never invalidated: a file's name is derived from its identity, so
// its content cannot change.
package objcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"monty/internal/blobstore"
	"monty/internal/index"
	"monty/internal/logger"
	"monty/internal/metadata"
	"monty/pkg/utils"
)

// Re-exported so callers need not import blobstore to test for them.
var (
	ErrStorageUnavailable = blobstore.ErrStorageUnavailable
	ErrNotFound           = blobstore.ErrNotFound
)

const (
	DefaultPrefix    = "audio"
	DefaultIndexName = "index/audio.json"
)

// Cache is safe for concurrent use.
type Cache struct {
	store     blobstore.ObjectStore
	root      string
	prefix    string
	indexName string
	logger    *logger.Logger

	flights singleflight.Group
	reads   atomic.Int64
}

// Option customises a Cache.
type Option func(*Cache)

// WithPrefix sets the object name prefix for audio files.
func WithPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithIndexName sets the object name of the catalog index.
func WithIndexName(name string) Option {
	return func(c *Cache) { c.indexName = name }
}

// New creates a cache of store rooted at root.
func New(store blobstore.ObjectStore, root string, log *logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:     store,
		root:      root,
		prefix:    DefaultPrefix,
		indexName: DefaultIndexName,
		logger:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether the remote store is connected.
func (c *Cache) Available() bool { return c.store.Available() }

// Root returns the local cache directory.
func (c *Cache) Root() string { return c.root }

// Reads returns how many objects were read from the remote store.
func (c *Cache) Reads() int64 { return c.reads.Load() }

// LocalPath returns where the recording lives in the local cache. The IDs
// must pass metadata.CheckID; Fetch and Put check them.
func (c *Cache) LocalPath(artistID, releaseID, recordingID string, format metadata.Format) string {
	return filepath.Join(c.root, artistID, releaseID, recordingID+"."+string(format))
}

// ObjectName returns the remote name of the recording.
func (c *Cache) ObjectName(artistID, releaseID, recordingID string, format metadata.Format) string {
	return path.Join(c.prefix, artistID, releaseID, recordingID+"."+string(format))
}

// Fetch returns the local path of the recording, downloading it first if it
// is not cached. A cached file is returned without touching the remote
// store, so Fetch keeps working for cached tracks when storage is
// unavailable. Concurrent fetches of the same recording share one download.
func (c *Cache) Fetch(ctx context.Context, artistID, releaseID, recordingID string, format metadata.Format) (string, error) {
	rec := metadata.TrackRecord{ArtistID: artistID, ReleaseID: releaseID, RecordingID: recordingID}
	if err := rec.CheckIDs(); err != nil {
		return "", fmt.Errorf("cannot fetch recording: %w", err)
	}

	local := c.LocalPath(artistID, releaseID, recordingID, format)
	if utils.FileExists(local) {
		return local, nil
	}

	if !c.store.Available() {
		return "", fmt.Errorf("recording %s is not cached: %w", recordingID, ErrStorageUnavailable)
	}

	_, err, _ := c.flights.Do(local, func() (interface{}, error) {
		// another flight may have finished between the check and Do
		if utils.FileExists(local) {
			return nil, nil
		}
		return nil, c.download(ctx, c.ObjectName(artistID, releaseID, recordingID, format), local)
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

// FetchRecord is Fetch for a record's identifiers.
func (c *Cache) FetchRecord(ctx context.Context, rec metadata.TrackRecord) (string, error) {
	return c.Fetch(ctx, rec.ArtistID, rec.ReleaseID, rec.RecordingID, rec.Format)
}

func (c *Cache) download(ctx context.Context, name, local string) error {
	c.logger.Debug("Fetching %s", name)

	rc, err := c.store.Get(ctx, name)
	c.reads.Add(1)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	defer rc.Close()

	if err := utils.WriteFileAtomic(local, rc, 0644); err != nil {
		return fmt.Errorf("failed to cache %s: %w", name, err)
	}
	return nil
}

// Put uploads the file at src as the recording and seeds the local cache
// with it, so the uploading machine never downloads its own tracks.
func (c *Cache) Put(ctx context.Context, src string, rec metadata.TrackRecord) error {
	if err := rec.CheckIDs(); err != nil {
		return fmt.Errorf("%s: cannot upload: %w", src, err)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	name := c.ObjectName(rec.ArtistID, rec.ReleaseID, rec.RecordingID, rec.Format)
	if err := c.store.Put(ctx, name, f); err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}
	c.logger.Debug("Uploaded %s to %s", src, name)

	local := c.LocalPath(rec.ArtistID, rec.ReleaseID, rec.RecordingID, rec.Format)
	if !utils.FileExists(local) {
		if err := utils.CopyFileAtomic(src, local); err != nil {
			c.logger.Warn("Uploaded %s but could not seed cache: %v", name, err)
		}
	}
	return nil
}

// FetchIndex downloads the catalog index. A missing index or an
// unavailable store gives an empty index.
func (c *Cache) FetchIndex(ctx context.Context) (index.CatalogIndex, error) {
	if !c.store.Available() {
		c.logger.Debug("Storage unavailable, using empty index")
		return index.CatalogIndex{}, nil
	}

	rc, err := c.store.Get(ctx, c.indexName)
	c.reads.Add(1)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorageUnavailable) {
			c.logger.Debug("No index at %s, using empty index", c.indexName)
			return index.CatalogIndex{}, nil
		}
		return nil, fmt.Errorf("failed to fetch index: %w", err)
	}
	defer rc.Close()

	idx, skipped, err := index.Decode(rc)
	if err != nil {
		return nil, err
	}
	for _, e := range skipped {
		c.logger.Warn("Ignoring index entry: %v", e)
	}
	return idx, nil
}

// PublishIndex overwrites the remote index with idx.
func (c *Cache) PublishIndex(ctx context.Context, idx index.CatalogIndex) error {
	if !c.store.Available() {
		return fmt.Errorf("cannot publish index: %w", ErrStorageUnavailable)
	}

	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		return err
	}

	if err := c.store.Put(ctx, c.indexName, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("failed to publish index: %w", err)
	}
	c.logger.Debug("Published index with %d entries", len(idx))
	return nil
}
