package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engineqa/engineqa/internal/jobs"
	"github.com/engineqa/engineqa/internal/log"
	"github.com/engineqa/engineqa/internal/rag"
)

// stubIndexer blocks inside Index until released, recording the
// full-rebuild flag it was called with.
type stubIndexer struct {
	mu      sync.Mutex
	release chan struct{}
	full    []bool
	run     rag.IndexRun
	err     error
}

func newStubIndexer() *stubIndexer {
	return &stubIndexer{release: make(chan struct{})}
}

func (s *stubIndexer) Index(_ context.Context, fullRebuild bool) (rag.IndexRun, error) {
	s.mu.Lock()
	s.full = append(s.full, fullRebuild)
	s.mu.Unlock()
	<-s.release
	return s.run, s.err
}

func (s *stubIndexer) lastFull(t *testing.T) bool {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.full)
	return s.full[len(s.full)-1]
}

func postReindex(h *ReindexHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/reindex", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.start(w, req)
	return w
}

func waitForStatus(t *testing.T, m *jobs.Manager, want jobs.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		job := m.Current()
		return job != nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReindexHandler_StartReturnsJobID(t *testing.T) {
	manager := jobs.NewManager()
	indexer := newStubIndexer()
	indexer.run = rag.IndexRun{TotalFiles: 2, SuccessfulChunks: 4}
	h := NewReindexHandler(manager, indexer, log.NewNop())

	w := postReindex(h, `{"full":true}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp ReindexResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)

	close(indexer.release)
	waitForStatus(t, manager, jobs.StatusCompleted)

	job := manager.Current()
	assert.Equal(t, resp.JobID, job.JobID)
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.TotalFiles)
}

func TestReindexHandler_SecondStartConflicts(t *testing.T) {
	manager := jobs.NewManager()
	indexer := newStubIndexer()
	h := NewReindexHandler(manager, indexer, log.NewNop())

	first := postReindex(h, `{}`)
	require.Equal(t, http.StatusAccepted, first.Code)

	second := postReindex(h, `{}`)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "job_in_progress")

	close(indexer.release)
	waitForStatus(t, manager, jobs.StatusCompleted)
}

func TestReindexHandler_DefaultsToFullRebuild(t *testing.T) {
	manager := jobs.NewManager()
	indexer := newStubIndexer()
	close(indexer.release)
	h := NewReindexHandler(manager, indexer, log.NewNop())

	w := postReindex(h, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	waitForStatus(t, manager, jobs.StatusCompleted)
	assert.True(t, indexer.lastFull(t))
}

func TestReindexHandler_IncrementalRequested(t *testing.T) {
	manager := jobs.NewManager()
	indexer := newStubIndexer()
	close(indexer.release)
	h := NewReindexHandler(manager, indexer, log.NewNop())

	w := postReindex(h, `{"full":false}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	waitForStatus(t, manager, jobs.StatusCompleted)
	assert.False(t, indexer.lastFull(t))
}

func TestReindexHandler_IndexerFailureFailsJob(t *testing.T) {
	manager := jobs.NewManager()
	indexer := newStubIndexer()
	indexer.err = assert.AnError
	close(indexer.release)
	h := NewReindexHandler(manager, indexer, log.NewNop())

	w := postReindex(h, `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	waitForStatus(t, manager, jobs.StatusFailed)
	assert.Equal(t, assert.AnError.Error(), manager.Current().Error)
}

func TestReindexHandler_InvalidBody(t *testing.T) {
	manager := jobs.NewManager()
	h := NewReindexHandler(manager, newStubIndexer(), log.NewNop())

	w := postReindex(h, `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, manager.Current(), "no job may be created for a bad request")
}

func TestReindexHandler_CurrentWhenIdle(t *testing.T) {
	h := NewReindexHandler(jobs.NewManager(), newStubIndexer(), log.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/reindex", nil)
	w := httptest.NewRecorder()
	h.current(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"job":null}`, w.Body.String())
}
