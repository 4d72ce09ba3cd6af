package api

import (
	"net/http"
	"time"

	"github.com/engineqa/engineqa/internal/jobs"
	"github.com/engineqa/engineqa/internal/knowledge"
	"github.com/engineqa/engineqa/internal/log"
	"github.com/engineqa/engineqa/internal/provider"
)

// UpstreamInfo is the slice of the upstream client the status endpoint
// needs.
type UpstreamInfo interface {
	Name() string
	ChatModel() string
	RateLimit() provider.RateLimitSnapshot
}

// StatusHandler reports a snapshot of the system's moving parts.
type StatusHandler struct {
	upstream UpstreamInfo
	store    knowledge.Store
	manager  *jobs.Manager
	table    string
	logger   log.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(upstream UpstreamInfo, store knowledge.Store, manager *jobs.Manager,
	table string, logger log.Logger) *StatusHandler {
	return &StatusHandler{
		upstream: upstream,
		store:    store,
		manager:  manager,
		table:    table,
		logger:   logger,
	}
}

// RegisterRoutes registers status routes on the given mux.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", h.status)
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Provider       string                     `json:"provider"`
	Model          string                     `json:"model"`
	VectorStore    string                     `json:"vector_store"`
	Table          string                     `json:"table"`
	IndexSize      int64                      `json:"index_size"`
	LastIndexTime  *time.Time                 `json:"last_index_time"`
	UpstreamHealth string                     `json:"upstream_health"`
	RateLimitState provider.RateLimitSnapshot `json:"rate_limit_state"`
	StoreConnected bool                       `json:"store_connected"`
}

// status reports the provider identity, index size, last index time and
// rate-limit state. A store outage is reported in-band via
// store_connected rather than failing the endpoint.
func (h *StatusHandler) status(w http.ResponseWriter, r *http.Request) {
	connected := true
	count, err := h.store.Count(r.Context())
	if err != nil {
		h.logger.Warn("store unreachable during status check", "error", err)
		connected = false
		count = 0
	}

	// Upstream health is inferred, not probed: a dedicated probe call
	// would spend rate-limit budget on every status poll.
	health := "ok"
	if !connected {
		health = "degraded"
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Provider:       h.upstream.Name(),
		Model:          h.upstream.ChatModel(),
		VectorStore:    "pgvector",
		Table:          h.table,
		IndexSize:      count,
		LastIndexTime:  h.manager.LastIndexTime(),
		UpstreamHealth: health,
		RateLimitState: h.upstream.RateLimit(),
		StoreConnected: connected,
	})
}
