package lookup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monty/internal/identity"
	"monty/internal/logger"
	"monty/internal/metadata"
	"monty/internal/testutil"
)

type fakeService struct {
	artists      []ArtistCandidate
	artistErr    error
	groups       []ReleaseGroupCandidate
	groupErrs    []error // consumed per call
	tracks       map[string][]ReleaseTrack
	tracksErr    error
	groupQueries []string
	trackCalls   atomic.Int32
	mu           sync.Mutex
}

func (f *fakeService) SearchArtists(context.Context, string) ([]ArtistCandidate, error) {
	return f.artists, f.artistErr
}

func (f *fakeService) SearchReleaseGroups(_ context.Context, query string) ([]ReleaseGroupCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupQueries = append(f.groupQueries, query)
	if len(f.groupErrs) > 0 {
		err := f.groupErrs[0]
		f.groupErrs = f.groupErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.groups, nil
}

func (f *fakeService) ReleaseTracks(_ context.Context, id string) ([]ReleaseTrack, error) {
	f.trackCalls.Add(1)
	if f.tracksErr != nil {
		return nil, f.tracksErr
	}
	return f.tracks[id], nil
}

func matchedService(n int) *fakeService {
	// listing arrives unsorted
	var tracks []ReleaseTrack
	for i := n; i >= 1; i-- {
		tracks = append(tracks, ReleaseTrack{Position: i, RecordingID: fmt.Sprintf("rec-%d", i)})
	}
	return &fakeService{
		artists: []ArtistCandidate{{ID: "artist-1", Name: "Radiohead", Score: 100}},
		groups: []ReleaseGroupCandidate{
			{ID: "g0", Score: 90, Releases: []ReleaseCandidate{{ID: "wrong", ArtistIDs: []string{"artist-1"}}}},
			{ID: "g1", Score: 100, Releases: []ReleaseCandidate{
				{ID: "other-artist", ArtistIDs: []string{"artist-2"}},
				{ID: "rel-1", ArtistIDs: []string{"artist-2", "artist-1"}},
			}},
		},
		tracks: map[string][]ReleaseTrack{"rel-1": tracks},
	}
}

func audioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func record(path string, track uint) metadata.TrackRecord {
	return metadata.TrackRecord{
		Artist: "Radiohead", Album: "OK Computer", Title: "Airbag",
		TrackNumber: track, Format: metadata.FormatMP3, LocalPath: path,
	}
}

func TestResolveMatchedRelease(t *testing.T) {
	svc := matchedService(12)
	r := NewResolver(svc, logger.Discard())

	got, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", 3))
	require.NoError(t, err)

	assert.Equal(t, "artist-1", got.ArtistID)
	assert.Equal(t, "rel-1", got.ReleaseID)
	assert.Equal(t, "rec-3", got.RecordingID)
	assert.Equal(t, []string{"Radiohead OK Computer"}, svc.groupQueries)
}

func TestResolveArtistWithoutExactMatch(t *testing.T) {
	path := audioFile(t, "unique bytes")
	svc := &fakeService{artists: []ArtistCandidate{{ID: "close", Score: 97}}}
	r := NewResolver(svc, logger.Discard())

	got, err := r.ResolveTrack(context.Background(), record(path, 1))
	require.NoError(t, err)

	assert.Equal(t, identity.ResolveString("Radiohead"), got.ArtistID)
	assert.Equal(t, identity.ResolveString("OK Computer"), got.ReleaseID)
	assert.Equal(t, identity.Resolve([]byte("unique bytes")), got.RecordingID)
	assert.Empty(t, svc.groupQueries, "release search must not run without an artist match")
}

func TestResolveNoArtistResults(t *testing.T) {
	path := audioFile(t, "x")
	r := NewResolver(Offline{}, logger.Discard())

	got, err := r.ResolveTrack(context.Background(), record(path, 0))
	require.NoError(t, err)
	assert.True(t, got.Resolved())
}

func TestResolveOnlyTopArtistCounts(t *testing.T) {
	path := audioFile(t, "x")
	svc := &fakeService{artists: []ArtistCandidate{{ID: "first", Score: 80}, {ID: "second", Score: 100}}}
	r := NewResolver(svc, logger.Discard())

	got, err := r.ResolveTrack(context.Background(), record(path, 1))
	require.NoError(t, err)
	assert.Equal(t, identity.ResolveString("Radiohead"), got.ArtistID)
}

func TestResolveNoQualifyingRelease(t *testing.T) {
	path := audioFile(t, "other bytes")
	svc := matchedService(3)
	svc.groups = svc.groups[:1] // only the inexact group
	r := NewResolver(svc, logger.Discard())

	got, err := r.ResolveTrack(context.Background(), record(path, 1))
	require.NoError(t, err)

	assert.Equal(t, "artist-1", got.ArtistID)
	assert.Equal(t, identity.ResolveString("OK Computer"), got.ReleaseID)
	assert.Equal(t, identity.Resolve([]byte("other bytes")), got.RecordingID)
	assert.Zero(t, svc.trackCalls.Load())
}

func TestResolveRetriesReleaseSearchWithAlbum(t *testing.T) {
	svc := matchedService(5)
	svc.groupErrs = []error{errors.New("timeout")}
	r := NewResolver(svc, logger.Discard())

	got, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", 2))
	require.NoError(t, err)

	assert.Equal(t, "rec-2", got.RecordingID)
	assert.Equal(t, []string{"Radiohead OK Computer", "OK Computer"}, svc.groupQueries)
}

func TestResolveReleaseSearchFailsTwice(t *testing.T) {
	svc := matchedService(5)
	svc.groupErrs = []error{errors.New("timeout"), errors.New("timeout again")}
	r := NewResolver(svc, logger.Discard())

	_, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", 2))

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "OK Computer", se.Query)
	assert.Len(t, svc.groupQueries, 2)
}

func TestResolveArtistSearchError(t *testing.T) {
	svc := &fakeService{artistErr: errors.New("503")}
	r := NewResolver(svc, logger.Discard())

	_, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", 1))

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Radiohead", se.Query)
}

func TestResolveTrackNumberOutOfRange(t *testing.T) {
	svc := matchedService(3)
	r := NewResolver(svc, logger.Discard())

	_, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", 4))
	assert.ErrorIs(t, err, ErrTrackPosition)
}

func TestResolveMissingTrackNumberFailsBeforeFetch(t *testing.T) {
	svc := matchedService(3)
	r := NewResolver(svc, logger.Discard())

	_, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", 0))
	assert.ErrorIs(t, err, ErrTrackPosition)
	assert.Zero(t, svc.trackCalls.Load())
}

func TestResolveListingErrorNotCached(t *testing.T) {
	svc := matchedService(3)
	svc.tracksErr = errors.New("boom")
	r := NewResolver(svc, logger.Discard())

	_, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", 1))
	var se *ServiceError
	require.ErrorAs(t, err, &se)

	svc.tracksErr = nil
	got, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", 1))
	require.NoError(t, err)
	assert.Equal(t, "rec-1", got.RecordingID)
	assert.Equal(t, int32(2), svc.trackCalls.Load())
}

func TestReleaseListingFetchedOncePerRelease(t *testing.T) {
	for _, n := range []int{1, 5, 50} {
		t.Run(fmt.Sprintf("%d tracks", n), func(t *testing.T) {
			svc := matchedService(n)
			r := NewResolver(svc, logger.Discard())

			for i := 1; i <= n; i++ {
				got, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", uint(i)))
				require.NoError(t, err)
				assert.Equal(t, fmt.Sprintf("rec-%d", i), got.RecordingID)
			}

			assert.Equal(t, int32(1), svc.trackCalls.Load())
			assert.Equal(t, int64(1), r.Fetches())
		})
	}
}

func TestReleaseListingFetchedOnceConcurrently(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	const n = 50
	svc := matchedService(n)
	r := NewResolver(svc, logger.Discard())

	var wg sync.WaitGroup
	ids := make([]string, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := r.ResolveTrack(context.Background(), record("/m/a.mp3", uint(i)))
			if err != nil {
				t.Errorf("ResolveTrack(%d) error: %v", i, err)
				return
			}
			ids[i-1] = got.RecordingID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), svc.trackCalls.Load())
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("rec-%d", i+1), id)
	}
}
