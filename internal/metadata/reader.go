package metadata

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"go.senan.xyz/taglib"

	"monty/internal/logger"
)

// TagReader reads the raw tag map of an audio file. Keys follow the
// taglib property names (TITLE, ARTIST, ALBUM, TRACKNUMBER).
type TagReader interface {
	Name() string
	ReadTags(path string) (map[string][]string, error)
}

// TaglibReader reads tags through TagLib.
type TaglibReader struct{}

func (TaglibReader) Name() string { return "taglib" }

func (TaglibReader) ReadTags(path string) (map[string][]string, error) {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags from %s: %w", path, err)
	}
	return tags, nil
}

// DhowdenReader reads ID3 and Vorbis comments with the pure Go tag package.
type DhowdenReader struct{}

func (DhowdenReader) Name() string { return "dhowden" }

func (DhowdenReader) ReadTags(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags from %s: %w", path, err)
	}

	tags := make(map[string][]string)
	set := func(key, value string) {
		if value != "" {
			tags[key] = []string{value}
		}
	}
	set(taglib.Title, m.Title())
	set(taglib.Artist, m.Artist())
	set(taglib.Album, m.Album())
	set(taglib.AlbumArtist, m.AlbumArtist())
	set(taglib.TrackNumber, rawTrack(m))

	return tags, nil
}

// rawTrack prefers the unparsed frame so "3/12" style values reach the
// extractor untouched.
func rawTrack(m tag.Metadata) string {
	raw := m.Raw()
	for _, key := range []string{"TRCK", "TRK", "tracknumber"} {
		if v, ok := raw[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	if n, _ := m.Track(); n > 0 {
		return strconv.Itoa(n)
	}
	return ""
}

// ChainReader tries multiple readers in order, returning the tags from the
// first one that succeeds.
type ChainReader struct {
	readers []TagReader
	logger  *logger.Logger
}

// NewChainReader creates a ChainReader that queries readers in order.
func NewChainReader(readers []TagReader, log *logger.Logger) *ChainReader {
	return &ChainReader{readers: readers, logger: log}
}

func (c *ChainReader) Name() string { return "chain" }

func (c *ChainReader) ReadTags(path string) (map[string][]string, error) {
	var lastErr error
	for _, r := range c.readers {
		tags, err := r.ReadTags(path)
		if err != nil {
			c.logger.Debug("tag reader %s failed: %v", r.Name(), err)
			lastErr = err
			continue
		}
		return tags, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no tag readers configured")
	}
	return nil, lastErr
}

// NewTagReader builds the reader named in configuration.
func NewTagReader(name string, log *logger.Logger) (TagReader, error) {
	switch name {
	case "", "taglib":
		return TaglibReader{}, nil
	case "dhowden":
		return DhowdenReader{}, nil
	case "chain":
		return NewChainReader([]TagReader{TaglibReader{}, DhowdenReader{}}, log), nil
	default:
		return nil, fmt.Errorf("unknown tag reader %q", name)
	}
}
