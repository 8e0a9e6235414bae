package transcoder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/spacesaver/internal/ffmpeg"
	"github.com/jmylchreest/spacesaver/internal/models"
	"github.com/jmylchreest/spacesaver/internal/store"
)

// Snapshot describes the file the worker is currently encoding. A zero-value
// snapshot with Active false means the worker is idle.
type Snapshot struct {
	Active       bool      `json:"active"`
	UUID         string    `json:"uuid,omitempty"`
	Name         string    `json:"name,omitempty"`
	Size         int64     `json:"size,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	FrameCurrent int64     `json:"frame_current,omitempty"`
	FrameTotal   int64     `json:"frame_total,omitempty"`
	Progress     float64   `json:"progress,omitempty"`
}

// Worker drains the queue one entry at a time. There is exactly one worker
// per process; the queue therefore never encodes two files concurrently.
type Worker struct {
	store   *store.Store
	prober  *ffmpeg.Prober
	encoder *ffmpeg.Encoder
	logger  *slog.Logger

	crf          int
	resCap       int
	workDir      string
	pollInterval time.Duration

	mu      sync.Mutex
	current Snapshot
}

// NewWorker creates the encode worker. pollInterval bounds how long an
// enqueued entry can wait while the queue is idle.
func NewWorker(st *store.Store, prober *ffmpeg.Prober, encoder *ffmpeg.Encoder, crf, resCap int, workDir string, pollInterval time.Duration, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		store:        st,
		prober:       prober,
		encoder:      encoder,
		logger:       log,
		crf:          crf,
		resCap:       resCap,
		workDir:      workDir,
		pollInterval: pollInterval,
	}
}

// PrepareStartup recovers from a previous unclean shutdown: leftover
// workfiles are deleted and IN_PROGRESS rows revert to PENDING. Runs once
// before the loop starts.
func (w *Worker) PrepareStartup(ctx context.Context) error {
	if err := os.MkdirAll(w.workDir, 0o755); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}

	matches, err := filepath.Glob(filepath.Join(w.workDir, "*.mkv"))
	if err != nil {
		return fmt.Errorf("listing workfiles: %w", err)
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			w.logger.Warn("workfile_cleanup_failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		w.logger.Info("workfile_removed", slog.String("path", path))
	}

	n, err := w.store.ResetInProgress(ctx)
	if err != nil {
		return fmt.Errorf("resetting interrupted encodes: %w", err)
	}
	if n > 0 {
		w.logger.Info("interrupted_encodes_reset", slog.Int64("count", n))
	}

	return nil
}

// Run drains the queue until ctx is cancelled. Encode failures are recorded
// on the entry and the loop keeps going; only cancellation stops it.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker_started",
		slog.Int("crf", w.crf),
		slog.Int("res_cap", w.resCap),
		slog.Duration("poll_interval", w.pollInterval),
	)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker_stopped")
			return
		}

		entry, err := w.store.PickNextQueued(ctx)
		if err != nil {
			w.logger.Error("queue_poll_failed", slog.String("error", err.Error()))
		}
		if entry == nil {
			select {
			case <-ctx.Done():
				w.logger.Info("worker_stopped")
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}

		w.process(ctx, entry)
	}
}

// Snapshot returns a copy of the current encode state.
func (w *Worker) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Worker) setCurrent(s Snapshot) {
	w.mu.Lock()
	w.current = s
	w.mu.Unlock()
}

func (w *Worker) updateFrames(frameCurrent int64, progress float64) {
	w.mu.Lock()
	w.current.FrameCurrent = frameCurrent
	w.current.Progress = progress
	w.mu.Unlock()
}

// process runs one entry through probe, skip check, encode, and publish.
// Failures roll the entry back to PENDING; they are never retried
// automatically.
func (w *Worker) process(ctx context.Context, entry *models.Entry) {
	log := w.logger.With(
		slog.String("uuid", entry.UUID),
		slog.String("name", entry.Name),
	)
	log.Info("transcode_started", slog.Int64("size", entry.Size))

	// Always probe fresh: the file may have changed since the scan.
	probe, err := w.prober.Probe(ctx, entry.Path)
	if err != nil {
		log.Warn("transcode_probe_failed", slog.String("error", err.Error()))
		w.revertPending(ctx, entry.UUID, log)
		return
	}
	if len(probe.VideoStreams()) == 0 {
		log.Warn("transcode_no_video_streams", slog.String("path", entry.Path))
		w.revertPending(ctx, entry.UUID, log)
		return
	}

	// The file may have changed since the scan; keep the ACTUAL row current.
	if err := w.store.UpsertMetadata(ctx, ffmpeg.MetadataFromProbe(entry.UUID, probe)); err != nil {
		log.Warn("metadata_refresh_failed", slog.String("error", err.Error()))
	}

	if skip, reason := ShouldSkip(probe, w.crf, w.resCap); skip {
		log.Info("transcode_skipped", slog.String("reason", reason))
		if err := w.store.UpdateProgress(ctx, entry.UUID, map[string]any{
			"status":   models.StatusOptimum,
			"progress": 100.0,
		}); err != nil {
			log.Error("progress_update_failed", slog.String("error", err.Error()))
		}
		return
	}

	workfile := filepath.Join(w.workDir, entry.UUID+".mkv")
	frameTotal := probe.EstimateFrameTotal()

	if err := w.store.UpdateProgress(ctx, entry.UUID, map[string]any{
		"status":      models.StatusInProgress,
		"progress":    0.0,
		"frame_total": frameTotal,
		"workfile":    workfile,
	}); err != nil {
		log.Error("progress_update_failed", slog.String("error", err.Error()))
		w.revertPending(ctx, entry.UUID, log)
		return
	}

	w.setCurrent(Snapshot{
		Active:     true,
		UUID:       entry.UUID,
		Name:       entry.Name,
		Size:       entry.Size,
		StartedAt:  time.Now().UTC(),
		FrameTotal: frameTotal,
	})
	defer w.setCurrent(Snapshot{})

	args := w.encoder.BuildArgs(entry.Path, workfile, w.crf, w.resCap, probe)
	err = w.encoder.Run(ctx, args, func(frame int64) {
		var pct float64
		if frameTotal > 0 {
			pct = 100 * float64(frame) / float64(frameTotal)
			if pct > 99.0 {
				pct = 99.0
			}
		}
		w.updateFrames(frame, pct)
		if err := w.store.UpdateProgress(ctx, entry.UUID, map[string]any{
			"frame_current": frame,
			"progress":      pct,
		}); err != nil {
			log.Warn("progress_update_failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		if removeErr := os.Remove(workfile); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Warn("workfile_cleanup_failed",
				slog.String("path", workfile),
				slog.String("error", removeErr.Error()),
			)
		}
		w.revertPending(ctx, entry.UUID, log)
		log.Error("transcode_failed", slog.String("error", err.Error()))
		return
	}

	destination := filepath.Join(filepath.Dir(entry.Path), entry.Hash+"."+entry.Name+".mkv")
	if err := os.Rename(workfile, destination); err != nil {
		if removeErr := os.Remove(workfile); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Warn("workfile_cleanup_failed",
				slog.String("path", workfile),
				slog.String("error", removeErr.Error()),
			)
		}
		w.revertPending(ctx, entry.UUID, log)
		log.Error("transcode_publish_failed",
			slog.String("destination", destination),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := w.store.UpdateProgress(ctx, entry.UUID, map[string]any{
		"status":   models.StatusDone,
		"progress": 100.0,
		"workfile": nil,
	}); err != nil {
		log.Error("progress_update_failed", slog.String("error", err.Error()))
	}

	// The source is replaced by the published encode; losing this delete
	// only wastes disk, so it is best effort.
	if err := os.Remove(entry.Path); err != nil {
		log.Warn("source_delete_failed",
			slog.String("path", entry.Path),
			slog.String("error", err.Error()),
		)
	}

	log.Info("transcode_completed", slog.String("destination", destination))
}

// revertPending rolls an entry back to a re-queueable state. It runs against
// a fresh context so the rollback still lands during shutdown.
func (w *Worker) revertPending(_ context.Context, uuid string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.UpdateProgress(ctx, uuid, map[string]any{
		"status":        models.StatusPending,
		"progress":      0.0,
		"frame_current": int64(0),
		"frame_total":   int64(0),
		"workfile":      nil,
	}); err != nil {
		log.Error("progress_rollback_failed", slog.String("error", err.Error()))
	}
}
