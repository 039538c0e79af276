package lookup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"monty/internal/identity"
	"monty/internal/logger"
	"monty/internal/metadata"
)

// Resolver fills in the identifiers of extracted records. Track listings are
// fetched at most once per release for the life of the Resolver and shared
// by all goroutines using it.
type Resolver struct {
	svc    Service
	logger *logger.Logger

	mu       sync.RWMutex
	releases map[string][]ReleaseTrack
	flights  singleflight.Group
	fetches  atomic.Int64
}

// NewResolver creates a Resolver backed by svc.
func NewResolver(svc Service, log *logger.Logger) *Resolver {
	return &Resolver{
		svc:      svc,
		logger:   log,
		releases: make(map[string][]ReleaseTrack),
	}
}

// Fetches returns how many track listings were requested from the service.
func (r *Resolver) Fetches() int64 { return r.fetches.Load() }

// ResolveTrack returns rec with ArtistID, ReleaseID and RecordingID set.
//
// An artist without an exact match gets identifiers derived from the
// artist name, album name and file content. A matched artist whose album
// has no exact release keeps the artist ID and derives the rest. A matched
// release takes the recording at rec.TrackNumber from its track listing.
func (r *Resolver) ResolveTrack(ctx context.Context, rec metadata.TrackRecord) (metadata.TrackRecord, error) {
	artists, err := r.svc.SearchArtists(ctx, rec.Artist)
	if err != nil {
		return rec, serviceError("artist search", rec.Artist, err)
	}

	if len(artists) == 0 || artists[0].Score != ExactScore {
		r.logger.Debug("No exact artist match for %q, using content identifiers", rec.Artist)
		return r.fallback(rec, identity.ResolveString(rec.Artist))
	}
	artistID := artists[0].ID

	release, ok, err := r.matchRelease(ctx, rec, artistID)
	if err != nil {
		return rec, err
	}
	if !ok {
		r.logger.Debug("No exact release match for %q by %q", rec.Album, rec.Artist)
		return r.fallback(rec, artistID)
	}

	if rec.TrackNumber == 0 {
		return rec, fmt.Errorf("%s: no track number to locate on release %s: %w", rec.LocalPath, release, ErrTrackPosition)
	}

	tracks, err := r.releaseTracks(ctx, release)
	if err != nil {
		return rec, err
	}

	i := int(rec.TrackNumber) - 1
	if i >= len(tracks) {
		return rec, fmt.Errorf("%s: track %d of release %s with %d tracks: %w",
			rec.LocalPath, rec.TrackNumber, release, len(tracks), ErrTrackPosition)
	}

	rec.ArtistID = artistID
	rec.ReleaseID = release
	rec.RecordingID = tracks[i].RecordingID
	return rec, nil
}

func (r *Resolver) fallback(rec metadata.TrackRecord, artistID string) (metadata.TrackRecord, error) {
	if rec.LocalPath == "" {
		return rec, fmt.Errorf("cannot derive recording id for %q without a file", rec.Title)
	}
	recordingID, err := identity.ResolveFile(rec.LocalPath)
	if err != nil {
		return rec, err
	}
	rec.ArtistID = artistID
	rec.ReleaseID = identity.ResolveString(rec.Album)
	rec.RecordingID = recordingID
	return rec, nil
}

// matchRelease searches "{artist} {album}", retrying once with the album
// alone, and returns the first release of an exact group credited to artistID.
func (r *Resolver) matchRelease(ctx context.Context, rec metadata.TrackRecord, artistID string) (string, bool, error) {
	query := rec.Artist + " " + rec.Album
	groups, err := r.svc.SearchReleaseGroups(ctx, query)
	if err != nil {
		r.logger.Debug("Release search %q failed, retrying with album only: %v", query, err)
		query = rec.Album
		groups, err = r.svc.SearchReleaseGroups(ctx, query)
		if err != nil {
			return "", false, serviceError("release group search", query, err)
		}
	}

	for _, g := range groups {
		if g.Score != ExactScore {
			continue
		}
		for _, rel := range g.Releases {
			if credited(rel, artistID) {
				return rel.ID, true, nil
			}
		}
	}
	return "", false, nil
}

func credited(rel ReleaseCandidate, artistID string) bool {
	for _, id := range rel.ArtistIDs {
		if id == artistID {
			return true
		}
	}
	return false
}

func (r *Resolver) cached(releaseID string) ([]ReleaseTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tracks, ok := r.releases[releaseID]
	return tracks, ok
}

// releaseTracks returns the listing sorted by position. Concurrent callers
// for the same release wait on a single request; failures are not cached.
func (r *Resolver) releaseTracks(ctx context.Context, releaseID string) ([]ReleaseTrack, error) {
	if tracks, ok := r.cached(releaseID); ok {
		return tracks, nil
	}

	v, err, _ := r.flights.Do(releaseID, func() (interface{}, error) {
		if tracks, ok := r.cached(releaseID); ok {
			return tracks, nil
		}

		r.fetches.Add(1)
		listing, err := r.svc.ReleaseTracks(ctx, releaseID)
		if err != nil {
			return nil, serviceError("release tracks", releaseID, err)
		}

		tracks := make([]ReleaseTrack, len(listing))
		copy(tracks, listing)
		sort.SliceStable(tracks, func(i, j int) bool { return tracks[i].Position < tracks[j].Position })

		r.mu.Lock()
		r.releases[releaseID] = tracks
		r.mu.Unlock()

		r.logger.Debug("Cached %d tracks for release %s", len(tracks), releaseID)
		return tracks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ReleaseTrack), nil
}
