package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/engineqa/engineqa/internal/jobs"
	"github.com/engineqa/engineqa/internal/log"
	"github.com/engineqa/engineqa/internal/rag"
)

// ReindexRunner is the slice of the indexer this handler needs.
type ReindexRunner interface {
	Index(ctx context.Context, fullRebuild bool) (rag.IndexRun, error)
}

// ReindexHandler starts background reindex jobs and reports their state.
type ReindexHandler struct {
	manager *jobs.Manager
	indexer ReindexRunner
	logger  log.Logger
}

// NewReindexHandler creates a new reindex handler.
func NewReindexHandler(manager *jobs.Manager, indexer ReindexRunner, logger log.Logger) *ReindexHandler {
	return &ReindexHandler{manager: manager, indexer: indexer, logger: logger}
}

// RegisterRoutes registers reindex routes on the given mux.
func (h *ReindexHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reindex", h.start)
	mux.HandleFunc("GET /api/reindex", h.current)
}

// ReindexRequest is the request body for POST /api/reindex. An absent
// body or absent "full" field means a full rebuild.
type ReindexRequest struct {
	Full *bool `json:"full"`
}

// ReindexResponse is returned when a job is accepted.
type ReindexResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// start launches a reindex job and returns its ID immediately. A second
// request while a job is running gets a 409.
func (h *ReindexHandler) start(w http.ResponseWriter, r *http.Request) {
	full := true
	var req ReindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Full != nil {
		full = *req.Full
	}

	jobID, err := h.manager.Start()
	if err != nil {
		if errors.Is(err, jobs.ErrJobInProgress) {
			writeError(w, http.StatusConflict, "job_in_progress", err.Error())
			return
		}
		h.logger.Error("failed to start reindex job", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start job")
		return
	}

	h.logger.Info("reindex job started", "job_id", jobID, "full", full)

	// The worker outlives this request; completion is observable only
	// through the job record.
	go h.run(jobID, full)

	writeJSON(w, http.StatusAccepted, ReindexResponse{
		JobID:   jobID,
		Message: "reindex started",
	})
}

func (h *ReindexHandler) run(jobID string, full bool) {
	run, err := h.indexer.Index(context.Background(), full)
	if err != nil {
		h.logger.Error("reindex job failed", "job_id", jobID, "error", err)
		h.manager.Fail(jobID, err.Error())
		return
	}
	h.manager.Complete(jobID, run)
}

// current reports the current or most recent job, or null when idle.
func (h *ReindexHandler) current(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*jobs.Job{"job": h.manager.Current()})
}
