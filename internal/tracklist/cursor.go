// Package tracklist implements the playback queue: a position over an
// ordered list of catalog records that makes sure each track is on local
// disk before handing out its path.
package tracklist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"monty/internal/metadata"
)

// ErrNoAvailableTrack is returned when navigation would leave the list.
var ErrNoAvailableTrack = errors.New("no available track")

// Fetcher ensures a record's audio file exists locally and returns its path.
// *objcache.Cache satisfies it.
type Fetcher interface {
	FetchRecord(ctx context.Context, rec metadata.TrackRecord) (string, error)
}

// FetchError reports a track that could not be retrieved. The cursor
// position is unchanged when it is returned.
type FetchError struct {
	Position int
	Record   metadata.TrackRecord
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("could not retrieve track %d (%s - %s): %v",
		e.Position+1, e.Record.Artist, e.Record.Title, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Cursor is safe for concurrent use, though navigation calls are
// serialised: a slow fetch blocks other moves until it finishes.
type Cursor struct {
	mu        sync.Mutex
	records   []metadata.TrackRecord
	position  int
	fetcher   Fetcher
	onFetched func(rec metadata.TrackRecord, localPath string)
}

// New creates a cursor at position. The records slice is copied.
func New(records []metadata.TrackRecord, position int, fetcher Fetcher) (*Cursor, error) {
	if fetcher == nil {
		return nil, errors.New("tracklist: fetcher is required")
	}
	if position < 0 || position >= len(records) {
		return nil, fmt.Errorf("start position %d of %d tracks: %w", position, len(records), ErrNoAvailableTrack)
	}
	return &Cursor{
		records:  append([]metadata.TrackRecord(nil), records...),
		position: position,
		fetcher:  fetcher,
	}, nil
}

// OnFetched registers fn to run after every successful fetch, with the
// record as it was before its local path was filled in.
func (c *Cursor) OnFetched(fn func(rec metadata.TrackRecord, localPath string)) {
	c.mu.Lock()
	c.onFetched = fn
	c.mu.Unlock()
}

// Current returns the local path of the track at the current position.
func (c *Cursor) Current(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(ctx, c.position)
}

// Next advances by one track.
func (c *Cursor) Next(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(ctx, c.position+1)
}

// Previous steps back by one track.
func (c *Cursor) Previous(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(ctx, c.position-1)
}

// SkipTo jumps to index i.
func (c *Cursor) SkipTo(ctx context.Context, i int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(ctx, i)
}

// moveTo fetches the track at target and only then updates the position.
// Callers hold c.mu.
func (c *Cursor) moveTo(ctx context.Context, target int) (string, error) {
	if target < 0 || target >= len(c.records) {
		return "", fmt.Errorf("position %d of %d tracks: %w", target, len(c.records), ErrNoAvailableTrack)
	}

	rec := c.records[target]
	local, err := c.fetcher.FetchRecord(ctx, rec)
	if err != nil {
		return "", &FetchError{Position: target, Record: rec, Err: err}
	}

	if c.onFetched != nil && rec.LocalPath != local {
		c.onFetched(rec, local)
	}
	c.records[target].LocalPath = local
	c.position = target
	return local, nil
}

// Enqueue appends rec to the end of the list.
func (c *Cursor) Enqueue(rec metadata.TrackRecord) {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
}

// EnqueueNext inserts rec directly after the current track.
func (c *Cursor) EnqueueNext(rec metadata.TrackRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := c.position + 1
	c.records = append(c.records, metadata.TrackRecord{})
	copy(c.records[at+1:], c.records[at:])
	c.records[at] = rec
}

// Position returns the current index.
func (c *Cursor) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *Cursor) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Records returns a copy of the queue, with local paths filled in for
// tracks fetched so far.
func (c *Cursor) Records() []metadata.TrackRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]metadata.TrackRecord(nil), c.records...)
}
