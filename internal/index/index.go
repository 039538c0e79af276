// Package index holds the catalog index shared through the object store:
// a JSON object mapping recording IDs to track entries.
//
// Publishers merge their entries into the current index and write it back
// whole. Two publishers racing read-merge-write can drop each other's
// entries; the last write wins.
package index

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"monty/internal/metadata"
)

// CatalogIndex maps recording IDs to entries.
type CatalogIndex map[string]Entry

// Entry is the wire form of one track.
type Entry struct {
	Artist     string          `json:"artist"`
	Album      string          `json:"album"`
	TrackName  string          `json:"track_name"`
	Position   uint            `json:"position"`
	Path       string          `json:"path"`
	ArtistID   string          `json:"artist_id"`
	ReleaseID  string          `json:"release_id"`
	TrackID    string          `json:"track_id"`
	FileFormat metadata.Format `json:"file_format"`
}

// UnmarshalJSON accepts the older "format" key and falls back to the
// extension of path when neither key is present.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var raw struct {
		plain
		Format string `json:"format"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entry(raw.plain)

	if e.FileFormat == "" {
		format := raw.Format
		if format == "" {
			format = filepath.Ext(e.Path)
		}
		e.FileFormat = metadata.Format(strings.ToLower(strings.TrimPrefix(format, ".")))
	}
	return nil
}

// Validate checks the entry stored under key: its identifiers must be
// usable as path segments and its format must be registered.
func (e Entry) Validate(key string) error {
	rec := e.Record(key)
	if rec.RecordingID != key {
		return fmt.Errorf("track_id %q does not match key", e.TrackID)
	}
	if err := rec.CheckIDs(); err != nil {
		return err
	}
	if _, err := metadata.ParseFormat(string(e.FileFormat)); err != nil {
		return err
	}
	return nil
}

// EntryError describes an index entry that Decode left out.
type EntryError struct {
	Key string
	Err error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %q: %v", e.Key, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// EntryFromRecord converts a resolved record.
func EntryFromRecord(r metadata.TrackRecord) Entry {
	return Entry{
		Artist:     r.Artist,
		Album:      r.Album,
		TrackName:  r.Title,
		Position:   r.TrackNumber,
		Path:       r.LocalPath,
		ArtistID:   r.ArtistID,
		ReleaseID:  r.ReleaseID,
		TrackID:    r.RecordingID,
		FileFormat: r.Format,
	}
}

// Record converts the entry stored under key back into a TrackRecord.
func (e Entry) Record(key string) metadata.TrackRecord {
	id := e.TrackID
	if id == "" {
		id = key
	}
	return metadata.TrackRecord{
		Artist:      e.Artist,
		Album:       e.Album,
		Title:       e.TrackName,
		TrackNumber: e.Position,
		Format:      e.FileFormat,
		LocalPath:   e.Path,
		ArtistID:    e.ArtistID,
		ReleaseID:   e.ReleaseID,
		RecordingID: id,
	}
}

// FromRecords builds an index from records. Records without a recording ID
// are skipped; later duplicates win.
func FromRecords(records []metadata.TrackRecord) CatalogIndex {
	idx := make(CatalogIndex, len(records))
	for _, r := range records {
		if r.RecordingID == "" {
			continue
		}
		idx[r.RecordingID] = EntryFromRecord(r)
	}
	return idx
}

// Records returns the entries as records ordered by artist, album, track
// number and recording ID.
func (idx CatalogIndex) Records() []metadata.TrackRecord {
	out := make([]metadata.TrackRecord, 0, len(idx))
	for key, e := range idx {
		out = append(out, e.Record(key))
	}
	SortRecords(out)
	return out
}

// SortRecords orders records the way the catalog lists them.
func SortRecords(records []metadata.TrackRecord) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Artist != b.Artist {
			return a.Artist < b.Artist
		}
		if a.Album != b.Album {
			return a.Album < b.Album
		}
		if a.TrackNumber != b.TrackNumber {
			return a.TrackNumber < b.TrackNumber
		}
		return a.RecordingID < b.RecordingID
	})
}

// Merge returns the union of existing and incoming. On shared keys the
// incoming entry wins. Neither input is modified.
func Merge(existing, incoming CatalogIndex) CatalogIndex {
	out := make(CatalogIndex, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// Decode reads a JSON index. An empty document decodes to an empty index.
// Entries that fail Validate are left out of idx and returned in skipped.
func Decode(r io.Reader) (idx CatalogIndex, skipped []*EntryError, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read index: %w", err)
	}
	idx = make(CatalogIndex)
	if len(strings.TrimSpace(string(data))) == 0 {
		return idx, nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse index: %w", err)
	}
	for key, msg := range raw {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			skipped = append(skipped, &EntryError{Key: key, Err: err})
			continue
		}
		if err := e.Validate(key); err != nil {
			skipped = append(skipped, &EntryError{Key: key, Err: err})
			continue
		}
		idx[key] = e
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Key < skipped[j].Key })
	return idx, skipped, nil
}

// Encode writes idx as indented JSON.
func (idx CatalogIndex) Encode(w io.Writer) error {
	if idx == nil {
		idx = CatalogIndex{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(idx); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return nil
}
