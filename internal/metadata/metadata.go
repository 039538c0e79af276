package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidID is returned for identifiers that cannot name a single path
// segment in the cache or the object store.
var ErrInvalidID = errors.New("invalid identifier")

// TrackRecord is one audio file as the catalog knows it.
type TrackRecord struct {
	Artist      string
	Album       string
	Title       string
	TrackNumber uint // 1-based; 0 when the file carries no track tag
	Format      Format
	LocalPath   string // empty when the file is not in the local cache

	ArtistID    string
	ReleaseID   string
	RecordingID string
}

// Key is the catalog key of the record.
func (r TrackRecord) Key() string {
	return r.RecordingID
}

// Resolved reports whether all three identifiers are present.
func (r TrackRecord) Resolved() bool {
	return r.ArtistID != "" && r.ReleaseID != "" && r.RecordingID != ""
}

// CheckID rejects identifiers that are empty, are "." or "..", or contain
// a path separator.
func CheckID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	return nil
}

// CheckIDs runs CheckID over the record's three identifiers.
func (r TrackRecord) CheckIDs() error {
	for _, id := range []string{r.ArtistID, r.ReleaseID, r.RecordingID} {
		if err := CheckID(id); err != nil {
			return err
		}
	}
	return nil
}
