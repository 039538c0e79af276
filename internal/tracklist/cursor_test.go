package tracklist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monty/internal/blobstore"
	"monty/internal/logger"
	"monty/internal/metadata"
	"monty/internal/objcache"
)

type fakeFetcher struct {
	fail  map[string]error
	calls []string
}

func (f *fakeFetcher) FetchRecord(_ context.Context, rec metadata.TrackRecord) (string, error) {
	f.calls = append(f.calls, rec.RecordingID)
	if err := f.fail[rec.RecordingID]; err != nil {
		return "", err
	}
	return "/cache/" + rec.RecordingID + ".mp3", nil
}

func records(n int) []metadata.TrackRecord {
	out := make([]metadata.TrackRecord, n)
	for i := range out {
		out[i] = metadata.TrackRecord{
			Title:       fmt.Sprintf("Track %d", i+1),
			TrackNumber: uint(i + 1),
			Format:      metadata.FormatMP3,
			ArtistID:    "artist",
			ReleaseID:   "release",
			RecordingID: fmt.Sprintf("rec-%d", i),
		}
	}
	return out
}

func TestNewRejectsOutOfRangePosition(t *testing.T) {
	f := &fakeFetcher{}
	for _, pos := range []int{-1, 3, 4} {
		_, err := New(records(3), pos, f)
		assert.ErrorIs(t, err, ErrNoAvailableTrack, "position %d", pos)
	}

	_, err := New(nil, 0, f)
	assert.ErrorIs(t, err, ErrNoAvailableTrack)

	_, err = New(records(3), 0, nil)
	assert.Error(t, err)

	c, err := New(records(3), 2, f)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Position())
	assert.Empty(t, f.calls, "construction must not fetch")
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{}
	c, err := New(records(3), 0, f)
	require.NoError(t, err)

	path, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rec-0.mp3", path)

	path, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rec-1.mp3", path)
	assert.Equal(t, 1, c.Position())

	path, err = c.Previous(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rec-0.mp3", path)

	path, err = c.SkipTo(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rec-2.mp3", path)
	assert.Equal(t, 2, c.Position())
}

func TestBoundariesLeavePositionUnchanged(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{}

	c, err := New(records(3), 2, f)
	require.NoError(t, err)
	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, ErrNoAvailableTrack)
	assert.Equal(t, 2, c.Position())

	for _, i := range []int{-1, 3} {
		_, err = c.SkipTo(ctx, i)
		assert.ErrorIs(t, err, ErrNoAvailableTrack)
		assert.Equal(t, 2, c.Position())
	}

	c, err = New(records(3), 0, f)
	require.NoError(t, err)
	_, err = c.Previous(ctx)
	assert.ErrorIs(t, err, ErrNoAvailableTrack)
	assert.Equal(t, 0, c.Position())

	assert.Empty(t, f.calls)
}

func TestFetchFailure(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{fail: map[string]error{"rec-1": fmt.Errorf("fetch: %w", objcache.ErrStorageUnavailable)}}
	c, err := New(records(3), 0, f)
	require.NoError(t, err)

	_, err = c.Next(ctx)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Position)
	assert.Equal(t, "rec-1", fe.Record.RecordingID)
	assert.ErrorIs(t, err, objcache.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "could not retrieve track")
	assert.Equal(t, 0, c.Position())

	path, err := c.SkipTo(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rec-2.mp3", path)
}

func TestOnFetchedAndRecords(t *testing.T) {
	ctx := context.Background()
	c, err := New(records(2), 0, &fakeFetcher{})
	require.NoError(t, err)

	var seen []string
	c.OnFetched(func(rec metadata.TrackRecord, local string) {
		seen = append(seen, rec.RecordingID+"="+local)
	})

	_, err = c.Current(ctx)
	require.NoError(t, err)
	_, err = c.Current(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"rec-0=/cache/rec-0.mp3"}, seen, "hook runs once per new local path")
	assert.Equal(t, "/cache/rec-0.mp3", c.Records()[0].LocalPath)
	assert.Empty(t, c.Records()[1].LocalPath)
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	c, err := New(records(3), 1, &fakeFetcher{})
	require.NoError(t, err)

	extra := metadata.TrackRecord{RecordingID: "extra", Format: metadata.FormatFLAC}
	c.EnqueueNext(extra)
	c.Enqueue(metadata.TrackRecord{RecordingID: "last"})

	var ids []string
	for _, r := range c.Records() {
		ids = append(ids, r.RecordingID)
	}
	assert.Equal(t, []string{"rec-0", "rec-1", "extra", "rec-2", "last"}, ids)
	assert.Equal(t, 5, c.Len())

	path, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/cache/extra.mp3", path)
}

func TestCursorOverObjectCache(t *testing.T) {
	ctx := context.Background()
	remote := t.TempDir()
	store, err := blobstore.NewDirStore(remote)
	require.NoError(t, err)
	cache := objcache.New(store, t.TempDir(), logger.Discard())

	recs := records(2)
	src := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(src, []byte("ID3 audio"), 0644))
	require.NoError(t, cache.Put(ctx, src, recs[0]))

	// a fresh cache over the same store starts empty
	cache = objcache.New(store, t.TempDir(), logger.Discard())
	c, err := New(recs, 0, cache)
	require.NoError(t, err)

	path, err := c.Current(ctx)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3 audio", string(data))
	assert.EqualValues(t, 1, cache.Reads())

	_, err = c.Next(ctx)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.ErrorIs(t, err, objcache.ErrNotFound)
	assert.Equal(t, 0, c.Position())
}
