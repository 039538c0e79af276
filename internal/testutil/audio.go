package testutil

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
)

// Tags describes the text tags written into fixture files.
type Tags struct {
	Artist string
	Album  string
	Title  string
	Track  string // raw TRCK / TRACKNUMBER value, e.g. "3/12"
}

// WriteMP3 writes an ID3v2.4 tag followed by payload to dir/name and
// returns the full path. Payload stands in for the audio frames and makes
// the file content unique.
func WriteMP3(t *testing.T, dir, name string, tags Tags, payload string) string {
	t.Helper()

	tag := id3v2.NewEmptyTag()
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if tags.Artist != "" {
		tag.SetArtist(tags.Artist)
	}
	if tags.Album != "" {
		tag.SetAlbum(tags.Album)
	}
	if tags.Title != "" {
		tag.SetTitle(tags.Title)
	}
	if tags.Track != "" {
		tag.AddTextFrame("TRCK", id3v2.EncodingUTF8, tags.Track)
	}

	var buf bytes.Buffer
	if _, err := tag.WriteTo(&buf); err != nil {
		t.Fatalf("failed to encode id3 tag: %v", err)
	}
	buf.WriteString(payload)

	return writeFixture(t, dir, name, buf.Bytes())
}

// WriteFLAC writes a minimal FLAC stream (STREAMINFO + VORBIS_COMMENT)
// followed by payload.
func WriteFLAC(t *testing.T, dir, name string, tags Tags, payload string) string {
	t.Helper()

	var comments []string
	add := func(key, value string) {
		if value != "" {
			comments = append(comments, key+"="+value)
		}
	}
	add("ARTIST", tags.Artist)
	add("ALBUM", tags.Album)
	add("TITLE", tags.Title)
	add("TRACKNUMBER", tags.Track)

	var vc bytes.Buffer
	vendor := "monty fixture"
	binary.Write(&vc, binary.LittleEndian, uint32(len(vendor)))
	vc.WriteString(vendor)
	binary.Write(&vc, binary.LittleEndian, uint32(len(comments)))
	for _, c := range comments {
		binary.Write(&vc, binary.LittleEndian, uint32(len(c)))
		vc.WriteString(c)
	}

	var buf bytes.Buffer
	buf.WriteString("fLaC")
	writeBlockHeader(&buf, 0, false, 34)
	buf.Write(make([]byte, 34))
	writeBlockHeader(&buf, 4, true, vc.Len())
	buf.Write(vc.Bytes())
	buf.WriteString(payload)

	return writeFixture(t, dir, name, buf.Bytes())
}

func writeBlockHeader(buf *bytes.Buffer, blockType byte, last bool, length int) {
	if last {
		blockType |= 0x80
	}
	buf.WriteByte(blockType)
	buf.WriteByte(byte(length >> 16))
	buf.WriteByte(byte(length >> 8))
	buf.WriteByte(byte(length))
}

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
