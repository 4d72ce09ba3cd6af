package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/engineqa/engineqa/internal/feedback"
	"github.com/engineqa/engineqa/internal/log"
)

// FeedbackHandler records and lists user feedback on answers.
type FeedbackHandler struct {
	store  *feedback.Store
	logger log.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(store *feedback.Store, logger log.Logger) *FeedbackHandler {
	return &FeedbackHandler{store: store, logger: logger}
}

// RegisterRoutes registers feedback routes on the given mux.
func (h *FeedbackHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/feedback", h.create)
	mux.HandleFunc("GET /api/feedback", h.list)
}

// FeedbackRequest is the request body for POST /api/feedback.
type FeedbackRequest struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Rating    string `json:"rating"`
	Comment   string `json:"comment"`
	ErrorCode string `json:"error_code"`
	TraceID   string `json:"trace_id"`
}

// FeedbackResponse is returned when feedback is recorded.
type FeedbackResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

// create records one feedback entry.
func (h *FeedbackHandler) create(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question and answer must not be empty")
		return
	}

	entry, err := h.store.Save(feedback.Entry{
		Question:  req.Question,
		Answer:    req.Answer,
		Rating:    feedback.Rating(req.Rating),
		Comment:   req.Comment,
		ErrorCode: req.ErrorCode,
		TraceID:   req.TraceID,
	})
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidRating) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("failed to save feedback", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save feedback")
		return
	}

	h.logger.Info("feedback recorded",
		"id", entry.ID, "rating", entry.Rating, "trace_id", entry.TraceID)
	writeJSON(w, http.StatusOK, FeedbackResponse{OK: true, ID: entry.ID})
}

// list returns recorded feedback, optionally filtered by trace_id.
func (h *FeedbackHandler) list(w http.ResponseWriter, r *http.Request) {
	var entries []feedback.Entry
	if traceID := r.URL.Query().Get("trace_id"); traceID != "" {
		entries = h.store.ByTraceID(traceID)
	} else {
		entries = h.store.All()
	}
	if entries == nil {
		entries = []feedback.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"feedback": entries,
		"total":    len(entries),
	})
}
