package objcache

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monty/internal/blobstore"
	"monty/internal/index"
	"monty/internal/logger"
	"monty/internal/metadata"
	"monty/internal/testutil"
)

type countingStore struct {
	blobstore.ObjectStore
	gets atomic.Int32
	gate chan struct{}
}

func (s *countingStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	s.gets.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.ObjectStore.Get(ctx, name)
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (brokenReader) Close() error             { return nil }

type brokenStore struct{ blobstore.ObjectStore }

func (brokenStore) Get(context.Context, string) (io.ReadCloser, error) { return brokenReader{}, nil }

func newRemote(t *testing.T) *blobstore.DirStore {
	t.Helper()
	store, err := blobstore.NewDirStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func seed(t *testing.T, store blobstore.ObjectStore, name, content string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), name, strings.NewReader(content)))
}

func TestFetchMissThenHit(t *testing.T) {
	ctx := context.Background()
	remote := &countingStore{ObjectStore: newRemote(t)}
	seed(t, remote, "audio/a1/r1/rec1.mp3", "audio bytes")

	c := New(remote, t.TempDir(), logger.Discard())

	path, err := c.Fetch(ctx, "a1", "r1", "rec1", metadata.FormatMP3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Root(), "a1", "r1", "rec1.mp3"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "audio bytes", string(data))
	assert.Equal(t, int32(1), remote.gets.Load())

	again, err := c.Fetch(ctx, "a1", "r1", "rec1", metadata.FormatMP3)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), remote.gets.Load(), "cache hit must not read the remote store")
}

func TestFetchHitWorksWhileUnavailable(t *testing.T) {
	root := t.TempDir()
	c := New(blobstore.Unavailable{}, root, logger.Discard())

	local := c.LocalPath("a", "r", "rec", metadata.FormatFLAC)
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0755))
	require.NoError(t, os.WriteFile(local, []byte("cached"), 0644))

	path, err := c.Fetch(context.Background(), "a", "r", "rec", metadata.FormatFLAC)
	require.NoError(t, err)
	assert.Equal(t, local, path)
	assert.Zero(t, c.Reads())
}

func TestFetchMissWhileUnavailable(t *testing.T) {
	c := New(blobstore.Unavailable{}, t.TempDir(), logger.Discard())

	_, err := c.Fetch(context.Background(), "a", "r", "rec", metadata.FormatMP3)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestFetchMissingRemoteObject(t *testing.T) {
	c := New(newRemote(t), t.TempDir(), logger.Discard())

	_, err := c.Fetch(context.Background(), "a", "r", "nope", metadata.FormatMP3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, c.LocalPath("a", "r", "nope", metadata.FormatMP3))
}

func TestFetchFailureLeavesNoPartialFile(t *testing.T) {
	c := New(brokenStore{newRemote(t)}, t.TempDir(), logger.Discard())

	_, err := c.Fetch(context.Background(), "a", "r", "rec", metadata.FormatMP3)
	require.Error(t, err)

	dir := filepath.Dir(c.LocalPath("a", "r", "rec", metadata.FormatMP3))
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestFetchRejectsUnsafeIDs(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	remote := newRemote(t)
	seed(t, remote, "rel/evil.mp3", "outside")
	seed(t, remote, "audio/a/rel/evil.mp3", "inside")
	c := New(remote, filepath.Join(base, "cache"), logger.Discard())

	tests := []struct {
		artist, release, recording string
	}{
		{"", "r", "rec"},
		{"..", "rel", "evil"},
		{"a", ".", "evil"},
		{"a", "rel", "../evil"},
		{"a", `..\rel`, "evil"},
	}
	for _, tt := range tests {
		_, err := c.Fetch(ctx, tt.artist, tt.release, tt.recording, metadata.FormatMP3)
		assert.ErrorIs(t, err, metadata.ErrInvalidID, "%+v", tt)
	}
	assert.NoFileExists(t, filepath.Join(base, "rel", "evil.mp3"))
	assert.Zero(t, c.Reads())

	err := c.Put(ctx, filepath.Join(base, "missing.mp3"), metadata.TrackRecord{
		ArtistID: "..", ReleaseID: "rel", RecordingID: "evil", Format: metadata.FormatMP3,
	})
	assert.ErrorIs(t, err, metadata.ErrInvalidID)
}

func TestFetchIndexSkipsUnsafeEntries(t *testing.T) {
	remote := newRemote(t)
	seed(t, remote, DefaultIndexName, `{
  "good": {"artist_id": "a", "release_id": "r", "track_id": "good", "file_format": "flac"},
  "evil": {"artist_id": "..", "release_id": "rel", "track_id": "evil", "file_format": "mp3"}
}`)
	c := New(remote, t.TempDir(), logger.Discard())

	idx, err := c.FetchIndex(context.Background())
	require.NoError(t, err)
	assert.Len(t, idx, 1)
	assert.Contains(t, idx, "good")
}

func TestConcurrentFetchDownloadsOnce(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	remote := &countingStore{ObjectStore: newRemote(t), gate: make(chan struct{})}
	seed(t, remote.ObjectStore, "audio/a/r/rec.flac", "flac")
	c := New(remote, t.TempDir(), logger.Discard())

	const workers = 8
	var wg sync.WaitGroup
	paths := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = c.Fetch(context.Background(), "a", "r", "rec", metadata.FormatFLAC)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(remote.gate)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, paths[0], paths[i])
	}
	assert.Equal(t, int32(1), remote.gets.Load())
}

func TestPutUploadsAndSeedsCache(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	c := New(remote, t.TempDir(), logger.Discard(), WithPrefix("media"))

	src := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(src, []byte("song"), 0644))

	rec := metadata.TrackRecord{ArtistID: "a", ReleaseID: "r", RecordingID: "rec", Format: metadata.FormatMP3}
	require.NoError(t, c.Put(ctx, src, rec))

	ok, err := remote.Exists(ctx, "media/a/r/rec.mp3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, c.LocalPath("a", "r", "rec", metadata.FormatMP3))

	assert.Error(t, c.Put(ctx, src, metadata.TrackRecord{Format: metadata.FormatMP3}))
}

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	remote := newRemote(t)
	c := New(remote, t.TempDir(), logger.Discard())

	idx, err := c.FetchIndex(ctx)
	require.NoError(t, err)
	assert.Empty(t, idx)

	published := index.CatalogIndex{"rec": {Artist: "A", TrackName: "T", ArtistID: "a", ReleaseID: "r", TrackID: "rec", FileFormat: metadata.FormatMP3}}
	require.NoError(t, c.PublishIndex(ctx, published))

	ok, err := remote.Exists(ctx, DefaultIndexName)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := c.FetchIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, published, got)
}

func TestIndexWhileUnavailable(t *testing.T) {
	ctx := context.Background()
	c := New(blobstore.Unavailable{}, t.TempDir(), logger.Discard())

	idx, err := c.FetchIndex(ctx)
	require.NoError(t, err)
	assert.Empty(t, idx)

	err = c.PublishIndex(ctx, index.CatalogIndex{})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestFetchIndexMalformed(t *testing.T) {
	remote := newRemote(t)
	seed(t, remote, DefaultIndexName, "[1,2,3]")
	c := New(remote, t.TempDir(), logger.Discard())

	_, err := c.FetchIndex(context.Background())
	assert.Error(t, err)
}
