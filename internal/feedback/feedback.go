// Package feedback collects user verdicts on answers. The log is
// append-only and in-memory; it exists so operators can eyeball which
// answers miss, not as durable analytics storage.
package feedback

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRating is returned for a rating outside the allowed set.
var ErrInvalidRating = errors.New(`rating must be "useful" or "useless"`)

// Rating is the user's verdict on an answer.
type Rating string

const (
	RatingUseful  Rating = "useful"
	RatingUseless Rating = "useless"
)

// Entry is one recorded piece of feedback.
type Entry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Rating    Rating    `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds feedback entries in memory. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewStore creates an empty feedback Store.
func NewStore() *Store {
	return &Store{}
}

// Save validates and appends an entry, assigning it a fresh ID and
// timestamp, and returns the stored copy.
func (s *Store) Save(e Entry) (Entry, error) {
	if e.Rating != RatingUseful && e.Rating != RatingUseless {
		return Entry{}, ErrInvalidRating
	}

	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return e, nil
}

// All returns every entry in insertion order.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByTraceID returns the entries recorded against one query trace.
func (s *Store) ByTraceID(traceID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.TraceID == traceID {
			out = append(out, e)
		}
	}
	return out
}

// Count reports how many entries are stored.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
