package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/engineqa/engineqa/internal/log"
	"github.com/engineqa/engineqa/internal/query"
)

// MaxQuestionLength bounds the accepted question size in bytes.
const MaxQuestionLength = 4000

// QueryHandler handles the question-answering endpoint.
type QueryHandler struct {
	svc    *query.Service
	logger log.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(svc *query.Service, logger log.Logger) *QueryHandler {
	return &QueryHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers query routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.answer)
}

// QueryRequest is the request body for POST /api/query.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// answer runs the query pipeline for one question. Upstream and
// retrieval failures come back as degraded 200 responses, never 5xx.
func (h *QueryHandler) answer(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question must not be empty")
		return
	}
	if len(req.Question) > MaxQuestionLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "question too long")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "top_k must not be negative")
		return
	}

	resp := h.svc.Answer(r.Context(), req.Question, req.TopK)
	writeJSON(w, http.StatusOK, resp)
}
