package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"go.senan.xyz/taglib"
	"golang.org/x/text/unicode/norm"
)

// Extractor turns an audio file into a TrackRecord without identifiers.
type Extractor struct {
	reader TagReader
}

// NewExtractor creates an Extractor reading tags through r.
func NewExtractor(r TagReader) *Extractor {
	return &Extractor{reader: r}
}

// Extract reads the display metadata of the file at path. Files whose
// extension is not registered fail with ErrUnsupportedFormat before any
// tag reading happens.
func (e *Extractor) Extract(path string) (TrackRecord, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return TrackRecord{}, err
	}

	tags, err := e.reader.ReadTags(path)
	if err != nil {
		return TrackRecord{}, err
	}

	number, err := ParseTrackNumber(firstTag(tags, taglib.TrackNumber))
	if err != nil {
		return TrackRecord{}, fmt.Errorf("%s: %w", path, err)
	}

	return TrackRecord{
		Artist:      CleanTag(firstTag(tags, taglib.Artist)),
		Album:       CleanTag(firstTag(tags, taglib.Album)),
		Title:       CleanTag(firstTag(tags, taglib.Title)),
		TrackNumber: number,
		Format:      format,
		LocalPath:   path,
	}, nil
}

// ParseTrackNumber parses the left side of an "n/total" track tag.
// An empty value is 0.
func ParseTrackNumber(value string) (uint, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	left, _, _ := strings.Cut(value, "/")
	left = strings.TrimSpace(left)
	if left == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(left, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid track number %q", value)
	}
	return uint(n), nil
}

// CleanTag trims s, collapses inner whitespace and converts it to NFC so
// the same name typed by different taggers hashes to the same identifier.
func CleanTag(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

func firstTag(tags map[string][]string, key string) string {
	if vals, ok := tags[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}
