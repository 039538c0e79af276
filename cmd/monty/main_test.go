package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monty/internal/config"
	"monty/internal/identity"
	"monty/internal/shutdown"
	"monty/internal/testutil"
)

type harness struct {
	t          *testing.T
	configPath string
	remote     string
	media      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := t.TempDir()
	h := &harness{
		t:          t,
		configPath: filepath.Join(root, "monty.yaml"),
		remote:     filepath.Join(root, "bucket"),
		media:      filepath.Join(root, "media"),
	}
	require.NoError(t, os.MkdirAll(h.remote, 0755))

	cfg := config.DefaultConfig()
	cfg.MediaDir = h.media
	cfg.DBPath = filepath.Join(root, "db", "local.db")
	cfg.TagReader = "dhowden"
	cfg.Lookup.Provider = "none"
	cfg.Storage.Backend = config.BackendDir
	cfg.Storage.Dir = h.remote
	require.NoError(t, config.SaveConfigFile(cfg, h.configPath))
	return h
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	sh := shutdown.New(context.Background())
	defer sh.Shutdown()

	cmd := newRootCommand(sh)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.configPath, "--verbose"}, args...))
	err := cmd.ExecuteContext(sh.Context())
	return out.String(), err
}

func TestIngestListFetchPlay(t *testing.T) {
	h := newHarness(t)
	src := t.TempDir()
	first := testutil.WriteMP3(t, src, "01.mp3", testutil.Tags{Artist: "Nobody Known", Album: "Demos", Title: "Sketch", Track: "1"}, "one")
	testutil.WriteMP3(t, src, "02.mp3", testutil.Tags{Artist: "Nobody Known", Album: "Demos", Title: "Outro", Track: "2"}, "two")

	out, err := h.run("ingest", src)
	require.NoError(t, err)
	assert.Contains(t, out, "2 files: 2 ingested, 0 failed, 0 skipped")

	out, err = h.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "Sketch")
	assert.Contains(t, out, "Outro")

	out, err = h.run("search", "$outro")
	require.NoError(t, err)
	assert.Contains(t, out, "Outro")
	assert.NotContains(t, out, "Sketch")

	content, err := os.ReadFile(first)
	require.NoError(t, err)
	recID := identity.Resolve(content)

	out, err = h.run("fetch", recID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), h.media), "fetch printed %q", out)

	out, err = h.run("play", "--start", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "2/2  Nobody Known - Outro")
	assert.NotContains(t, out, "Sketch")

	_, err = h.run("play", "--start", "2")
	assert.Error(t, err)
}

func TestSyncRebuildsCatalog(t *testing.T) {
	h := newHarness(t)
	src := t.TempDir()
	testutil.WriteFLAC(t, src, "a.flac", testutil.Tags{Artist: "A", Album: "B", Title: "C", Track: "1"}, "x")

	_, err := h.run("ingest", src)
	require.NoError(t, err)

	out, err := h.run("sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog now holds 1 tracks")

	out, err = h.run("sync", "--push")
	require.NoError(t, err)
	assert.Contains(t, out, "Published 1 tracks")
}

func TestIngestDryRun(t *testing.T) {
	h := newHarness(t)
	src := t.TempDir()
	testutil.WriteMP3(t, src, "a.mp3", testutil.Tags{Artist: "A", Album: "B", Title: "Dry"}, "x")

	out, err := h.run("ingest", "--dry-run", src)
	require.NoError(t, err)
	assert.Contains(t, out, "Dry")

	_, err = os.Stat(filepath.Join(h.remote, "index", "audio.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestIdentifyRejectsUnsupportedFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "cover.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0644))

	_, err := h.run("identify", path)
	assert.ErrorContains(t, err, "unsupported")
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monty.toml")
	sh := shutdown.New(context.Background())
	defer sh.Shutdown()

	cmd := newRootCommand(sh)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init-config", "--path", path})
	require.NoError(t, cmd.Execute())

	cfg, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestIngestStopsOnConfigError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.configPath, []byte("parallel_jobs: [not, a, number]\n"), 0644))

	out, err := h.run("ingest", t.TempDir())
	require.Error(t, err)
	assert.NotContains(t, out, "ingested")

	entries, _ := os.ReadDir(h.remote)
	assert.Empty(t, entries)
}
