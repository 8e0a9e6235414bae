package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/spacesaver/internal/models"
	"github.com/jmylchreest/spacesaver/internal/store"
)

// stubProber returns a fixed ACTUAL metadata row without touching ffprobe.
type stubProber struct {
	codec string
}

func (p *stubProber) ActualMetadata(_ context.Context, entryUUID, _ string) *models.Metadata {
	meta := models.NewMetadata(entryUUID, models.KindActual)
	if p.codec != "" {
		meta.Codec = p.codec
	}
	return meta
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"), "silent", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeMedia(t *testing.T, dir, name string, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestScanDiscoversMediaFiles(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeMedia(t, dir, "Some.Movie.2019.1080p.x264.mkv", "movie-bytes")
	writeMedia(t, dir, "notes.txt", "not media")
	writeMedia(t, dir, "clip.MP4", "clip-bytes")

	s := New(st, &stubProber{codec: "h264"}, nil)
	result := s.Scan(context.Background(), []string{dir})

	assert.Equal(t, Result{Added: 2, Skipped: 0, Errors: 0}, result)

	entries, err := st.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for _, entry := range entries {
		progress, err := st.GetProgress(context.Background(), entry.UUID)
		require.NoError(t, err)
		require.NotNil(t, progress)
		assert.Equal(t, models.StatusPending, progress.Status)

		metas, err := st.GetAllMetadata(context.Background(), entry.UUID)
		require.NoError(t, err)
		assert.Len(t, metas, 2)
	}
}

func TestScanCleansEntryName(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeMedia(t, dir, "Some.Movie.2019.1080p.BluRay.x265.mkv", "movie-bytes")

	s := New(st, &stubProber{}, nil)
	s.Scan(context.Background(), []string{dir})

	entries, err := st.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Some Movie", entries[0].Name)
}

func TestScanSkipsKnownFiles(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeMedia(t, dir, "a.mkv", "aaa")
	writeMedia(t, dir, "b.mkv", "bbb")

	s := New(st, &stubProber{}, nil)
	first := s.Scan(context.Background(), []string{dir})
	assert.Equal(t, Result{Added: 2}, first)

	second := s.Scan(context.Background(), []string{dir})
	assert.Equal(t, Result{Skipped: 2}, second)

	// A changed file is a new entry.
	writeMedia(t, dir, "a.mkv", "different content now")
	third := s.Scan(context.Background(), []string{dir})
	assert.Equal(t, Result{Added: 1, Skipped: 1}, third)
}

func TestScanDepthLimit(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeMedia(t, dir, "root.mkv", "0")
	writeMedia(t, dir, "a/one.mkv", "1")
	writeMedia(t, dir, "a/b/two.mkv", "2")
	writeMedia(t, dir, "a/b/c/three.mkv", "3")
	writeMedia(t, dir, "a/b/c/d/four.mkv", "4")

	s := New(st, &stubProber{}, nil)
	result := s.Scan(context.Background(), []string{dir})

	// Files up to three directories deep are found; deeper ones are not.
	assert.Equal(t, 4, result.Added)

	entries, err := st.ListEntries(context.Background())
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Path, "four.mkv")
	}
}

func TestScanMissingSourceDir(t *testing.T) {
	st := newTestStore(t)

	s := New(st, &stubProber{}, nil)
	result := s.Scan(context.Background(), []string{filepath.Join(t.TempDir(), "nope")})
	assert.Equal(t, Result{}, result)
}

func TestScanHashFailureCounted(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeMedia(t, dir, "good.mkv", "fine")
	writeMedia(t, dir, "bad.mkv", "broken")

	s := New(st, &stubProber{}, nil)
	s.hash = func(path string) (string, error) {
		if filepath.Base(path) == "bad.mkv" {
			return "", errors.New("io error")
		}
		return "hash-" + filepath.Base(path), nil
	}

	result := s.Scan(context.Background(), []string{dir})
	assert.Equal(t, Result{Added: 1, Errors: 1}, result)
}
