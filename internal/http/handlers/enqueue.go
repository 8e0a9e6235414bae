package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/spacesaver/internal/observability"
	"github.com/jmylchreest/spacesaver/internal/transcoder"
)

// EnqueueHandler serves the transcode request endpoints.
type EnqueueHandler struct {
	admission *transcoder.Admission
	logger    *slog.Logger
}

// NewEnqueueHandler creates an enqueue handler over the admission layer.
func NewEnqueueHandler(admission *transcoder.Admission, log *slog.Logger) *EnqueueHandler {
	if log == nil {
		log = slog.Default()
	}
	return &EnqueueHandler{admission: admission, logger: log}
}

// EnqueueInput is the input for enqueueing one entry.
type EnqueueInput struct {
	UUID string `path:"uuid" doc:"Entry identifier"`
}

// EnqueueResponse acknowledges an accepted enqueue.
type EnqueueResponse struct {
	UUID   string `json:"uuid" doc:"Entry identifier"`
	Status string `json:"status" doc:"New transcode status"`
}

// EnqueueOutput is the output for enqueueing one entry.
type EnqueueOutput struct {
	Body EnqueueResponse
}

// EnqueueBestInput is the input for enqueueing the best candidate.
type EnqueueBestInput struct{}

// EnqueueBestResponse identifies the chosen candidate.
type EnqueueBestResponse struct {
	UUID string `json:"uuid" doc:"Entry identifier"`
	Name string `json:"name" doc:"Cleaned display name"`
	Size int64  `json:"size" doc:"Source file size in bytes"`
}

// EnqueueBestOutput is the output for enqueueing the best candidate.
type EnqueueBestOutput struct {
	Body EnqueueBestResponse
}

// Register registers the enqueue routes with the API.
func (h *EnqueueHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "enqueueEntry",
		Method:        "POST",
		Path:          "/request/enqueue/{uuid}",
		Summary:       "Enqueue an entry",
		Description:   "Queues one file for encoding. Refused while the file is already queued or encoding.",
		Tags:          []string{"Transcode"},
		DefaultStatus: http.StatusAccepted,
	}, h.Enqueue)

	huma.Register(api, huma.Operation{
		OperationID:   "enqueueBest",
		Method:        "POST",
		Path:          "/request/enqueue/best",
		Summary:       "Enqueue the best candidate",
		Description:   "Queues the largest pending file. Refused while any file is queued or encoding.",
		Tags:          []string{"Transcode"},
		DefaultStatus: http.StatusAccepted,
	}, h.EnqueueBest)
}

// Enqueue queues one entry for encoding.
func (h *EnqueueHandler) Enqueue(ctx context.Context, input *EnqueueInput) (*EnqueueOutput, error) {
	status, err := h.admission.Enqueue(ctx, input.UUID)
	switch {
	case errors.Is(err, transcoder.ErrNotFound):
		return nil, huma.Error404NotFound("entry not found")
	case errors.Is(err, transcoder.ErrAlreadyActive):
		return nil, huma.Error409Conflict("entry is already " + string(status))
	case err != nil:
		h.logger.Error("enqueue_failed",
			slog.String("uuid", input.UUID),
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return nil, huma.Error500InternalServerError("enqueueing entry", err)
	}

	return &EnqueueOutput{
		Body: EnqueueResponse{UUID: input.UUID, Status: string(status)},
	}, nil
}

// EnqueueBest queues the largest pending entry.
func (h *EnqueueHandler) EnqueueBest(ctx context.Context, _ *EnqueueBestInput) (*EnqueueBestOutput, error) {
	entry, err := h.admission.EnqueueBest(ctx)
	switch {
	case errors.Is(err, transcoder.ErrQueueActive):
		return nil, huma.Error409Conflict("queue already active")
	case errors.Is(err, transcoder.ErrNotFound):
		return nil, huma.Error404NotFound("no eligible candidates")
	case err != nil:
		h.logger.Error("enqueue_failed",
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return nil, huma.Error500InternalServerError("enqueueing best candidate", err)
	}

	return &EnqueueBestOutput{
		Body: EnqueueBestResponse{UUID: entry.UUID, Name: entry.Name, Size: entry.Size},
	}, nil
}
