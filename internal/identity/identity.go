// Package identity derives stable content-addressed identifiers.
//
// An identifier is the MD5 digest of the input laid out as a UUID, so the
// same bytes always map to the same ID on every machine. Used as the
// fallback when the external lookup cannot name an artist, release or
// recording.
package identity

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// Resolve returns the identifier for content.
func Resolve(content []byte) string {
	sum := md5.Sum(content)
	return fromDigest(sum[:])
}

// ResolveString returns the identifier for the UTF-8 bytes of s.
func ResolveString(s string) string {
	return Resolve([]byte(s))
}

// ResolveReader streams r into the digest. The result equals Resolve on
// the full contents.
func ResolveReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return fromDigest(h.Sum(nil)), nil
}

// ResolveFile returns the identifier for the contents of the file at path.
func ResolveFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return ResolveReader(f)
}

func fromDigest(sum []byte) string {
	// md5 always yields 16 bytes
	id, err := uuid.FromBytes(sum)
	if err != nil {
		panic(err)
	}
	return id.String()
}
