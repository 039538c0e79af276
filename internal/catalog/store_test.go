package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monty/internal/index"
	"monty/internal/logger"
	"monty/internal/metadata"
)

type staticSource struct {
	idx   index.CatalogIndex
	err   error
	calls int
}

func (s *staticSource) FetchIndex(context.Context) (index.CatalogIndex, error) {
	s.calls++
	return s.idx, s.err
}

func rec(artist, album, title string, n uint, id string) metadata.TrackRecord {
	return metadata.TrackRecord{
		Artist: artist, Album: album, Title: title, TrackNumber: n,
		Format: metadata.FormatMP3, ArtistID: "a-" + artist, ReleaseID: "r-" + album, RecordingID: id,
	}
}

func sampleIndex() index.CatalogIndex {
	return index.FromRecords([]metadata.TrackRecord{
		rec("Radiohead", "OK Computer", "Paranoid Android", 2, "rec-2"),
		rec("Björk", "Homogenic", "Jóga", 2, "rec-4"),
		rec("Radiohead", "OK Computer", "Airbag", 1, "rec-1"),
		rec("Radiohead", "Kid A", "Everything In Its Right Place", 1, "rec-3"),
	})
}

func openStore(t *testing.T, source IndexSource) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db", "local.db")
	s, err := Open(context.Background(), path, source, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func titles(records []metadata.TrackRecord) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.Title)
	}
	return out
}

func TestOpenBootstrapsNewStore(t *testing.T) {
	src := &staticSource{idx: sampleIndex()}
	s := openStore(t, src)

	tracks, err := s.ListTracks(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Jóga", "Everything In Its Right Place", "Airbag", "Paranoid Android"}, titles(tracks))
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "a-Radiohead", tracks[1].ArtistID)
	assert.Equal(t, metadata.FormatMP3, tracks[1].Format)
}

func TestOpenExistingStoreDoesNotResync(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	first := &staticSource{idx: sampleIndex()}
	s, err := Open(ctx, path, first, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	second := &staticSource{idx: index.CatalogIndex{}}
	s, err = Open(ctx, path, second, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	assert.Zero(t, second.calls)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestOpenWithUnreachableIndexStartsEmpty(t *testing.T) {
	s := openStore(t, &staticSource{err: errors.New("storage unavailable")})

	tracks, err := s.ListTracks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tracks)

	_, err = os.Stat(s.Path())
	assert.NoError(t, err)
}

func TestBootstrapReplacesRows(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, &staticSource{idx: sampleIndex()})

	n, err := s.Bootstrap(ctx, &staticSource{idx: index.FromRecords([]metadata.TrackRecord{
		rec("Low", "Things We Lost in the Fire", "Sunflower", 1, "rec-9"),
	})})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tracks, err := s.ListTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sunflower"}, titles(tracks))

	_, err = s.Bootstrap(ctx, &staticSource{err: errors.New("down")})
	assert.Error(t, err)
	count, _ := s.Count(ctx)
	assert.Equal(t, 1, count, "failed bootstrap must keep existing rows")
}

func TestUpsertAndUpdateLocalPath(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, nil)

	r := rec("Radiohead", "OK Computer", "Airbag", 1, "rec-1")
	require.NoError(t, s.Upsert(ctx, r))

	r.Title = "Airbag (Remastered)"
	require.NoError(t, s.Upsert(ctx, r))

	require.NoError(t, s.UpdateLocalPath(ctx, "rec-1", "/cache/a/r/rec-1.mp3"))

	got, err := s.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "Airbag (Remastered)", got.Title)
	assert.Equal(t, "/cache/a/r/rec-1.mp3", got.LocalPath)

	assert.ErrorIs(t, s.UpdateLocalPath(ctx, "missing", "/x"), ErrTrackNotFound)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrTrackNotFound)
	assert.Error(t, s.Upsert(ctx, metadata.TrackRecord{Title: "no id"}))
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, &staticSource{idx: sampleIndex()})

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Jóga", "Everything In Its Right Place", "Airbag", "Paranoid Android"}},
		{"@radiohead", []string{"Everything In Its Right Place", "Airbag", "Paranoid Android"}},
		{"@radiohead, #ok computer", []string{"Airbag", "Paranoid Android"}},
		{"$airbag, $joga", []string{"Airbag"}},
		{"android", []string{"Paranoid Android"}},
		{"kid, homogenic", []string{"Jóga", "Everything In Its Right Place"}},
		{"@", []string{"Jóga", "Everything In Its Right Place", "Airbag", "Paranoid Android"}},
		{"100%", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(got))
		})
	}
}

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := sampleIndex()
	s := openStore(t, &staticSource{idx: idx})

	got, err := s.Index(ctx)
	require.NoError(t, err)
	assert.Equal(t, idx, got)
}

func TestSchemaVersionRecorded(t *testing.T) {
	s := openStore(t, nil)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, schemaVersion, version)
}
