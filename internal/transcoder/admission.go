package transcoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/spacesaver/internal/models"
	"github.com/jmylchreest/spacesaver/internal/store"
)

// Admission errors. Handlers map these onto HTTP status codes.
var (
	// ErrNotFound means no entry exists for the requested uuid, or no
	// PENDING candidate exists for enqueue-best.
	ErrNotFound = errors.New("entry not found")

	// ErrAlreadyActive means the entry is already QUEUED or IN_PROGRESS.
	ErrAlreadyActive = errors.New("entry already active")

	// ErrQueueActive means enqueue-best was refused because some entry is
	// already QUEUED or IN_PROGRESS.
	ErrQueueActive = errors.New("queue already active")
)

// Admission decides which entries may enter the encode queue. It never
// encodes anything itself; accepted entries are picked up by the worker loop.
type Admission struct {
	store  *store.Store
	logger *slog.Logger
}

// NewAdmission creates an admission layer over the store.
func NewAdmission(st *store.Store, log *slog.Logger) *Admission {
	if log == nil {
		log = slog.Default()
	}
	return &Admission{store: st, logger: log}
}

// Enqueue marks the entry QUEUED. Entries already QUEUED or IN_PROGRESS are
// refused with ErrAlreadyActive and the blocking status; any other status,
// including DONE and OPTIMUM, is re-queueable. The guard and the flip are a
// single store update, so concurrent requests for one entry admit exactly one.
func (a *Admission) Enqueue(ctx context.Context, uuid string) (models.Status, error) {
	a.logger.Info("enqueue_requested", slog.String("uuid", uuid))

	entry, err := a.store.GetEntryByUUID(ctx, uuid)
	if err != nil {
		return "", fmt.Errorf("looking up entry: %w", err)
	}
	if entry == nil {
		return "", ErrNotFound
	}

	queued, err := a.store.EnqueueEntry(ctx, uuid)
	if err != nil {
		return "", fmt.Errorf("queueing entry: %w", err)
	}
	if !queued {
		// Lost to an already-active row; report which status blocked us.
		progress, err := a.store.GetProgress(ctx, uuid)
		if err != nil {
			return "", fmt.Errorf("looking up progress: %w", err)
		}
		status := models.StatusQueued
		if progress != nil {
			status = progress.Status
		}
		return status, ErrAlreadyActive
	}

	a.logger.Info("enqueue_accepted",
		slog.String("uuid", uuid),
		slog.String("name", entry.Name),
	)
	return models.StatusQueued, nil
}

// EnqueueBest queues the largest PENDING entry. It refuses with
// ErrQueueActive while any entry is QUEUED or IN_PROGRESS, and with
// ErrNotFound when nothing is pending. Candidate pick and active-queue guard
// run in one store transaction, so of any set of concurrent requests exactly
// one is admitted. On success the chosen entry is returned.
func (a *Admission) EnqueueBest(ctx context.Context) (*models.Entry, error) {
	entry, err := a.store.EnqueueBestCandidate(ctx)
	if err != nil {
		return nil, fmt.Errorf("queueing best candidate: %w", err)
	}
	if entry == nil {
		active, err := a.store.HasActiveQueue(ctx)
		if err != nil {
			return nil, fmt.Errorf("checking active queue: %w", err)
		}
		if active {
			return nil, ErrQueueActive
		}
		return nil, ErrNotFound
	}

	a.logger.Info("enqueue_accepted",
		slog.String("uuid", entry.UUID),
		slog.String("name", entry.Name),
		slog.Int64("size", entry.Size),
	)
	return entry, nil
}
