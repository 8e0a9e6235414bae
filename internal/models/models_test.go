package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	e := NewEntry("Some Movie", "abc123", "/media/movies/Some.Movie.2019.1080p.mkv", 4096)

	_, err := uuid.Parse(e.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Some Movie", e.Name)
	assert.Equal(t, "abc123", e.Hash)
	assert.Equal(t, "/media/movies/Some.Movie.2019.1080p.mkv", e.Path)
	assert.Equal(t, int64(4096), e.Size)
}

func TestNewMetadataDefaults(t *testing.T) {
	m := NewMetadata("some-uuid", KindActual)

	assert.Equal(t, KindActual, m.Kind)
	assert.Equal(t, Unknown, m.Codec)
	assert.Equal(t, Unknown, m.Resolution)
	assert.Equal(t, 0.0, m.Framerate)
	assert.Equal(t, "{}", m.Extra)
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusQueued.IsActive())
	assert.True(t, StatusInProgress.IsActive())
	assert.False(t, StatusPending.IsActive())
	assert.False(t, StatusDone.IsActive())

	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusOptimum.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusUnknown.IsTerminal())
}

func TestNewProgress(t *testing.T) {
	p := NewProgress("some-uuid")
	assert.Equal(t, StatusPending, p.Status)
	assert.Zero(t, p.Progress)
	assert.Nil(t, p.Workfile)
}
