// Package jobs tracks the single in-flight reindex job. State lives only
// in process memory; a restart forgets any previous run.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engineqa/engineqa/internal/rag"
)

// ErrJobInProgress is returned by Start while another job is running.
var ErrJobInProgress = errors.New("a reindex job is already in progress")

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one reindex run as observed over the API.
type Job struct {
	JobID     string        `json:"job_id"`
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Result    *rag.IndexRun `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Manager is the single-flight guard around reindexing. At most one Job
// may be running at a time; completion signals arrive only through
// Complete and Fail, keyed by job ID so a stale worker cannot clobber a
// newer job after Clear.
//
// Manager is safe for concurrent use by multiple goroutines.
type Manager struct {
	mu        sync.Mutex
	current   *Job
	lastIndex *time.Time
}

// NewManager creates an idle Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Start creates a new running Job and returns its ID. It fails with
// ErrJobInProgress while the current Job is still running; a completed or
// failed Job is superseded.
func (m *Manager) Start() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Status == StatusRunning {
		return "", ErrJobInProgress
	}

	m.current = &Job{
		JobID:     uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	return m.current.JobID, nil
}

// Complete marks the job as completed with its run result. A stale job
// ID is a no-op.
func (m *Manager) Complete(jobID string, result rag.IndexRun) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.JobID != jobID {
		return
	}
	now := time.Now().UTC()
	m.current.Status = StatusCompleted
	m.current.EndedAt = &now
	m.current.Result = &result
	m.lastIndex = &now
}

// Fail marks the job as failed with an error message. A stale job ID is
// a no-op.
func (m *Manager) Fail(jobID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.JobID != jobID {
		return
	}
	now := time.Now().UTC()
	m.current.Status = StatusFailed
	m.current.EndedAt = &now
	m.current.Error = message
}

// Clear drops the current Job, returning the Manager to idle. A running
// worker holding the cleared ID will find its completion is a no-op.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// Current returns a copy of the current Job, or nil when idle.
func (m *Manager) Current() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	job := *m.current
	return &job
}

// LastIndexTime reports when the last successful reindex finished, or
// nil if none has completed since startup.
func (m *Manager) LastIndexTime() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastIndex == nil {
		return nil
	}
	t := *m.lastIndex
	return &t
}
