package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"monty/internal/index"
	"monty/internal/metadata"
)

// ErrTrackNotFound is returned by Get for unknown recording IDs.
var ErrTrackNotFound = errors.New("track not found")

const (
	trackColumns = "artist, album, track_title, track_number, file_path, artist_id, release_id, track_id, file_format"
	trackOrder   = " ORDER BY artist, album, track_number, track_id"
	upsertTrack  = `INSERT INTO audio_tracks (` + trackColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(track_id) DO UPDATE SET
    artist = excluded.artist,
    album = excluded.album,
    track_title = excluded.track_title,
    track_number = excluded.track_number,
    file_path = excluded.file_path,
    artist_id = excluded.artist_id,
    release_id = excluded.release_id,
    file_format = excluded.file_format`
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, r metadata.TrackRecord) error {
	_, err := db.ExecContext(ctx, upsertTrack,
		r.Artist, r.Album, r.Title, r.TrackNumber, r.LocalPath,
		r.ArtistID, r.ReleaseID, r.RecordingID, string(r.Format))
	return err
}

// Bootstrap replaces the contents of the catalog with the index from
// source and returns the number of tracks loaded. On error the catalog is
// left unchanged.
func (s *Store) Bootstrap(ctx context.Context, source IndexSource) (int, error) {
	idx, err := source.FetchIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch index: %w", err)
	}
	return s.Replace(ctx, idx.Records())
}

// Replace swaps every row for records in one transaction.
func (s *Store) Replace(ctx context.Context, records []metadata.TrackRecord) (int, error) {
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM audio_tracks"); err != nil {
			return err
		}
		for _, r := range records {
			if err := insertRecord(ctx, tx, r); err != nil {
				return fmt.Errorf("insert %s: %w", r.RecordingID, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("replace catalog: %w", err)
	}
	return len(records), nil
}

// Upsert adds records, replacing rows with the same recording ID.
func (s *Store) Upsert(ctx context.Context, records ...metadata.TrackRecord) error {
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, r := range records {
			if r.RecordingID == "" {
				return fmt.Errorf("record %q has no recording id", r.Title)
			}
			if err := insertRecord(ctx, tx, r); err != nil {
				return fmt.Errorf("insert %s: %w", r.RecordingID, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("upsert tracks: %w", err)
	}
	return nil
}

// UpdateLocalPath records where the recording lives on this machine.
func (s *Store) UpdateLocalPath(ctx context.Context, recordingID, path string) error {
	res, err := s.execWithRetry(ctx, "UPDATE audio_tracks SET file_path = ? WHERE track_id = ?", path, recordingID)
	if err != nil {
		return fmt.Errorf("update local path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", recordingID, ErrTrackNotFound)
	}
	return nil
}

// ListTracks returns every track ordered by artist, album and track number.
func (s *Store) ListTracks(ctx context.Context) ([]metadata.TrackRecord, error) {
	return s.query(ctx, "SELECT "+trackColumns+" FROM audio_tracks"+trackOrder)
}

// Get returns the track with the given recording ID.
func (s *Store) Get(ctx context.Context, recordingID string) (metadata.TrackRecord, error) {
	records, err := s.query(ctx, "SELECT "+trackColumns+" FROM audio_tracks WHERE track_id = ?", recordingID)
	if err != nil {
		return metadata.TrackRecord{}, err
	}
	if len(records) == 0 {
		return metadata.TrackRecord{}, fmt.Errorf("%s: %w", recordingID, ErrTrackNotFound)
	}
	return records[0], nil
}

// Count returns the number of tracks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM audio_tracks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return n, nil
}

// Search filters tracks with a comma separated list of terms. A term
// prefixed with @ matches the artist, # the album and $ the title; a bare
// term matches any of them. Terms of the same kind are ORed and kinds are
// ANDed. An empty query lists everything.
func (s *Store) Search(ctx context.Context, input string) ([]metadata.TrackRecord, error) {
	fields := map[byte]string{'@': "artist", '#': "album", '$': "track_title"}
	groups := make(map[string][]string)
	var order []string

	for _, word := range strings.Split(input, ",") {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		kind := "any"
		if col, ok := fields[word[0]]; ok {
			kind = col
			word = strings.TrimSpace(word[1:])
			if word == "" {
				continue
			}
		}
		if _, seen := groups[kind]; !seen {
			order = append(order, kind)
		}
		groups[kind] = append(groups[kind], word)
	}

	var (
		sqlParts []string
		args     []any
	)
	for _, kind := range order {
		var subParts []string
		for _, p := range groups[kind] {
			pattern := "%" + escapeLike(p) + "%"
			if kind == "any" {
				subParts = append(subParts, `(artist LIKE ? ESCAPE '\' OR album LIKE ? ESCAPE '\' OR track_title LIKE ? ESCAPE '\')`)
				args = append(args, pattern, pattern, pattern)
				continue
			}
			subParts = append(subParts, kind+` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		sqlParts = append(sqlParts, "("+strings.Join(subParts, " OR ")+")")
	}

	query := "SELECT " + trackColumns + " FROM audio_tracks"
	if len(sqlParts) > 0 {
		query += " WHERE " + strings.Join(sqlParts, " AND ")
	}
	return s.query(ctx, query+trackOrder, args...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]metadata.TrackRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var out []metadata.TrackRecord
	for rows.Next() {
		var (
			r      metadata.TrackRecord
			format string
		)
		if err := rows.Scan(&r.Artist, &r.Album, &r.Title, &r.TrackNumber, &r.LocalPath,
			&r.ArtistID, &r.ReleaseID, &r.RecordingID, &format); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		r.Format = metadata.Format(format)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	return out, nil
}

// Index returns the catalog as an index, for republishing.
func (s *Store) Index(ctx context.Context) (index.CatalogIndex, error) {
	records, err := s.ListTracks(ctx)
	if err != nil {
		return nil, err
	}
	return index.FromRecords(records), nil
}
