package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/spacesaver/internal/models"
	"github.com/jmylchreest/spacesaver/internal/transcoder"
)

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	return se.GetStatus()
}

func TestEnqueueEndpoint(t *testing.T) {
	st := newTestStore(t)
	h := NewEnqueueHandler(transcoder.NewAdmission(st, nil), nil)
	ctx := context.Background()

	entry := insertEntry(t, st, "Movie", 100, "h264")

	out, err := h.Enqueue(ctx, &EnqueueInput{UUID: entry.UUID})
	require.NoError(t, err)
	assert.Equal(t, entry.UUID, out.Body.UUID)
	assert.Equal(t, "queued", out.Body.Status)

	// Unknown uuid.
	_, err = h.Enqueue(ctx, &EnqueueInput{UUID: "no-such-uuid"})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	// Re-enqueue while queued.
	_, err = h.Enqueue(ctx, &EnqueueInput{UUID: entry.UUID})
	assert.Equal(t, http.StatusConflict, statusOf(t, err))
	assert.Contains(t, err.Error(), "already queued")

	require.NoError(t, st.SetStatus(ctx, entry.UUID, models.StatusInProgress))
	_, err = h.Enqueue(ctx, &EnqueueInput{UUID: entry.UUID})
	assert.Equal(t, http.StatusConflict, statusOf(t, err))
	assert.Contains(t, err.Error(), "already in_progress")
}

func TestEnqueueBestEndpoint(t *testing.T) {
	st := newTestStore(t)
	h := NewEnqueueHandler(transcoder.NewAdmission(st, nil), nil)
	ctx := context.Background()

	// Empty library.
	_, err := h.EnqueueBest(ctx, &EnqueueBestInput{})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	insertEntry(t, st, "Small", 100, "h264")
	big := insertEntry(t, st, "Big", 9000, "h264")

	out, err := h.EnqueueBest(ctx, &EnqueueBestInput{})
	require.NoError(t, err)
	assert.Equal(t, big.UUID, out.Body.UUID)
	assert.Equal(t, "Big", out.Body.Name)
	assert.Equal(t, int64(9000), out.Body.Size)

	// Queue now active.
	_, err = h.EnqueueBest(ctx, &EnqueueBestInput{})
	assert.Equal(t, http.StatusConflict, statusOf(t, err))
	assert.Contains(t, err.Error(), "queue already active")
}
