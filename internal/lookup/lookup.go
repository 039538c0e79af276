// Package lookup assigns stable identifiers to extracted tracks using an
// external metadata service, falling back to content-derived identifiers
// when the service has no confident answer.
package lookup

import (
	"context"
	"errors"
	"fmt"
)

// ExactScore is the score a service gives an exact match.
const ExactScore = 100

// ErrTrackPosition is returned when a track number does not address a
// track of the matched release.
var ErrTrackPosition = errors.New("track number out of range for release")

// ArtistCandidate is one artist search hit. Hits are ranked best first.
type ArtistCandidate struct {
	ID    string
	Name  string
	Score int
}

// ReleaseCandidate is one release inside a release group.
type ReleaseCandidate struct {
	ID        string
	Title     string
	ArtistIDs []string // artist credit
}

// ReleaseGroupCandidate is one release group search hit.
type ReleaseGroupCandidate struct {
	ID       string
	Title    string
	Score    int
	Releases []ReleaseCandidate
}

// ReleaseTrack is one entry of a release's track listing.
type ReleaseTrack struct {
	Position    int
	RecordingID string
	Title       string
}

// Service is the external metadata service.
type Service interface {
	SearchArtists(ctx context.Context, name string) ([]ArtistCandidate, error)
	SearchReleaseGroups(ctx context.Context, query string) ([]ReleaseGroupCandidate, error)
	ReleaseTracks(ctx context.Context, releaseID string) ([]ReleaseTrack, error)
}

// ServiceError wraps a failed call to the Service.
type ServiceError struct {
	Op    string
	Query string
	Err   error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("lookup %s %q: %v", e.Op, e.Query, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func serviceError(op, query string, err error) error {
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Op: op, Query: query, Err: err}
}

// Offline is a Service that never matches anything, so every track gets
// content-derived identifiers.
type Offline struct{}

func (Offline) SearchArtists(context.Context, string) ([]ArtistCandidate, error) {
	return nil, nil
}

func (Offline) SearchReleaseGroups(context.Context, string) ([]ReleaseGroupCandidate, error) {
	return nil, nil
}

func (Offline) ReleaseTracks(_ context.Context, releaseID string) ([]ReleaseTrack, error) {
	return nil, fmt.Errorf("release %s: offline", releaseID)
}
