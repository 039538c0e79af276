package metadata

import (
	"fmt"

	"go.senan.xyz/taglib"
)

// Property names MusicBrainz Picard uses for identifiers.
const (
	TagArtistID    = "MUSICBRAINZ_ARTISTID"
	TagReleaseID   = "MUSICBRAINZ_ALBUMID"
	TagRecordingID = "MUSICBRAINZ_TRACKID"
)

// WriteIdentifiers stores the record's identifiers in the file's tags so a
// later re-ingest or an external player sees the same IDs.
func WriteIdentifiers(path string, rec TrackRecord) error {
	if !rec.Resolved() {
		return fmt.Errorf("%s: record has no identifiers", path)
	}

	tags := map[string][]string{
		TagArtistID:    {rec.ArtistID},
		TagReleaseID:   {rec.ReleaseID},
		TagRecordingID: {rec.RecordingID},
	}

	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}

// ReadIdentifiers returns identifiers previously written by WriteIdentifiers.
// Missing tags yield empty strings.
func ReadIdentifiers(path string) (artistID, releaseID, recordingID string, err error) {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read tags from %s: %w", path, err)
	}
	return firstTag(tags, TagArtistID), firstTag(tags, TagReleaseID), firstTag(tags, TagRecordingID), nil
}
