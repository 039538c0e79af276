package metadata

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for files whose extension is not in the
// format registry.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// UnsupportedFormatError carries the offending path and extension.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("%s: no file extension", e.Path)
	}
	return fmt.Sprintf("%s: unsupported audio format %q", e.Path, e.Ext)
}

func (e *UnsupportedFormatError) Unwrap() error { return ErrUnsupportedFormat }

// Format is a lowercase file extension without the dot.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
)

var registry = map[Format]string{
	FormatMP3:  "audio/mpeg",
	FormatFLAC: "audio/flac",
}

// ParseFormat validates s against the registry. A leading dot and case are ignored.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	if _, ok := registry[f]; !ok {
		return "", &UnsupportedFormatError{Path: s, Ext: string(f)}
	}
	return f, nil
}

// FormatFromPath returns the registered format for path's extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	f := Format(ext)
	if _, ok := registry[f]; !ok {
		return "", &UnsupportedFormatError{Path: path, Ext: ext}
	}
	return f, nil
}

// MIMEType returns the content type used when uploading the format.
func (f Format) MIMEType() string {
	if t, ok := registry[f]; ok {
		return t
	}
	return "application/octet-stream"
}

func (f Format) String() string { return string(f) }

// SupportedFormats lists the registry in sorted order.
func SupportedFormats() []Format {
	out := make([]Format, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
