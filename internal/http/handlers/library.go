// Package handlers provides the HTTP API handlers for spacesaver.
package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/spacesaver/internal/models"
	"github.com/jmylchreest/spacesaver/internal/store"
	"github.com/jmylchreest/spacesaver/internal/transcoder"
	"github.com/jmylchreest/spacesaver/internal/version"
)

// WorkerStatus exposes the worker's current encode state.
type WorkerStatus interface {
	Snapshot() transcoder.Snapshot
}

// LibraryHandler serves the read-only library endpoints.
type LibraryHandler struct {
	store  *store.Store
	worker WorkerStatus
	logger *slog.Logger
}

// NewLibraryHandler creates a library handler over the store and worker.
func NewLibraryHandler(st *store.Store, worker WorkerStatus, log *slog.Logger) *LibraryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LibraryHandler{store: st, worker: worker, logger: log}
}

// VersionInput is the input for the version endpoint.
type VersionInput struct{}

// VersionOutput is the output for the version endpoint.
type VersionOutput struct {
	Body version.Info
}

// ListItem is one library entry in the list response.
type ListItem struct {
	UUID     string        `json:"uuid" doc:"Entry identifier"`
	Name     string        `json:"name" doc:"Cleaned display name"`
	Size     int64         `json:"size" doc:"Source file size in bytes"`
	Status   models.Status `json:"status" doc:"Transcode status"`
	Progress float64       `json:"progress" doc:"Transcode progress percentage"`
	Codec    string        `json:"codec" doc:"Codec declared in the file name"`
}

// ListInput is the input for the list endpoint.
type ListInput struct{}

// ListOutput is the output for the list endpoint.
type ListOutput struct {
	Body []ListItem
}

// EntryDetail is the full record of one entry.
type EntryDetail struct {
	Entry    models.Entry      `json:"entry" doc:"File identity"`
	Progress models.Progress   `json:"progress" doc:"Transcode state"`
	Metadata []models.Metadata `json:"metadata" doc:"Declared and actual stream metadata"`
}

// GetEntryInput is the input for the entry detail endpoint.
type GetEntryInput struct {
	UUID string `path:"uuid" doc:"Entry identifier"`
}

// GetEntryOutput is the output for the entry detail endpoint.
type GetEntryOutput struct {
	Body EntryDetail
}

// StatusResponse summarises the library and the current encode.
type StatusResponse struct {
	Counts      map[models.Status]int64 `json:"counts" doc:"Entry count per status"`
	CurrentFile *transcoder.Snapshot    `json:"current_file,omitempty" doc:"File being encoded, if any"`
}

// StatusInput is the input for the status endpoint.
type StatusInput struct{}

// StatusOutput is the output for the status endpoint.
type StatusOutput struct {
	Body StatusResponse
}

// Register registers the library routes with the API.
func (h *LibraryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      "GET",
		Path:        "/version",
		Summary:     "Get version",
		Description: "Returns build version information",
		Tags:        []string{"System"},
	}, h.GetVersion)

	huma.Register(api, huma.Operation{
		OperationID: "listEntries",
		Method:      "GET",
		Path:        "/list",
		Summary:     "List library entries",
		Description: "Returns every known file with its transcode status",
		Tags:        []string{"Library"},
	}, h.ListEntries)

	huma.Register(api, huma.Operation{
		OperationID: "getEntry",
		Method:      "GET",
		Path:        "/list/{uuid}",
		Summary:     "Get one entry",
		Description: "Returns the full record for one file: identity, progress, and metadata",
		Tags:        []string{"Library"},
	}, h.GetEntry)

	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      "GET",
		Path:        "/status",
		Summary:     "Get queue status",
		Description: "Returns entry counts per status and the file currently being encoded",
		Tags:        []string{"Library"},
	}, h.GetStatus)
}

// GetVersion returns build version information.
func (h *LibraryHandler) GetVersion(_ context.Context, _ *VersionInput) (*VersionOutput, error) {
	return &VersionOutput{Body: version.GetInfo()}, nil
}

// ListEntries returns every entry in insertion order.
func (h *LibraryHandler) ListEntries(ctx context.Context, _ *ListInput) (*ListOutput, error) {
	entries, err := h.store.ListEntries(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("listing entries", err)
	}

	items := make([]ListItem, 0, len(entries))
	for _, entry := range entries {
		item := ListItem{
			UUID:  entry.UUID,
			Name:  entry.Name,
			Size:  entry.Size,
			Codec: models.Unknown,
		}

		progress, err := h.store.GetProgress(ctx, entry.UUID)
		if err != nil {
			return nil, huma.Error500InternalServerError("getting progress", err)
		}
		if progress != nil {
			item.Status = progress.Status
			item.Progress = progress.Progress
		} else {
			item.Status = models.StatusUnknown
		}

		meta, err := h.store.GetMetadata(ctx, entry.UUID, models.KindDeclared)
		if err != nil {
			return nil, huma.Error500InternalServerError("getting metadata", err)
		}
		if meta != nil {
			item.Codec = meta.Codec
		}

		items = append(items, item)
	}

	return &ListOutput{Body: items}, nil
}

// GetEntry returns the full record for one entry.
func (h *LibraryHandler) GetEntry(ctx context.Context, input *GetEntryInput) (*GetEntryOutput, error) {
	entry, err := h.store.GetEntryByUUID(ctx, input.UUID)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting entry", err)
	}
	if entry == nil {
		return nil, huma.Error404NotFound("entry not found")
	}

	detail := EntryDetail{Entry: *entry}

	progress, err := h.store.GetProgress(ctx, entry.UUID)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting progress", err)
	}
	if progress != nil {
		detail.Progress = *progress
	}

	metas, err := h.store.GetAllMetadata(ctx, entry.UUID)
	if err != nil {
		return nil, huma.Error500InternalServerError("getting metadata", err)
	}
	detail.Metadata = metas

	return &GetEntryOutput{Body: detail}, nil
}

// GetStatus returns per-status counts and the current encode, if any.
func (h *LibraryHandler) GetStatus(ctx context.Context, _ *StatusInput) (*StatusOutput, error) {
	counts, err := h.store.CountByStatus(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("counting entries", err)
	}

	resp := StatusResponse{Counts: counts}
	if h.worker != nil {
		if snapshot := h.worker.Snapshot(); snapshot.Active {
			resp.CurrentFile = &snapshot
		}
	}

	return &StatusOutput{Body: resp}, nil
}
