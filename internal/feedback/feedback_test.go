package feedback

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_AssignsIDAndTimestamp(t *testing.T) {
	s := NewStore()

	saved, err := s.Save(Entry{
		Question: "how do I deploy?",
		Answer:   "run the deploy script",
		Rating:   RatingUseful,
		TraceID:  "trace-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.Equal(t, RatingUseful, saved.Rating)
	assert.Equal(t, 1, s.Count())
}

func TestSave_RejectsInvalidRating(t *testing.T) {
	s := NewStore()

	_, err := s.Save(Entry{Question: "q", Answer: "a", Rating: "meh"})
	assert.ErrorIs(t, err, ErrInvalidRating)
	assert.Zero(t, s.Count())

	_, err = s.Save(Entry{Question: "q", Answer: "a"})
	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestAll_ReturnsCopyInOrder(t *testing.T) {
	s := NewStore()

	first, err := s.Save(Entry{Question: "q1", Answer: "a1", Rating: RatingUseful})
	require.NoError(t, err)
	second, err := s.Save(Entry{Question: "q2", Answer: "a2", Rating: RatingUseless})
	require.NoError(t, err)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)

	// Mutating the returned slice must not affect the store.
	all[0].Question = "mutated"
	assert.Equal(t, "q1", s.All()[0].Question)
}

func TestByTraceID(t *testing.T) {
	s := NewStore()

	_, err := s.Save(Entry{Question: "q1", Answer: "a1", Rating: RatingUseful, TraceID: "t1"})
	require.NoError(t, err)
	_, err = s.Save(Entry{Question: "q2", Answer: "a2", Rating: RatingUseless, TraceID: "t2"})
	require.NoError(t, err)
	_, err = s.Save(Entry{Question: "q3", Answer: "a3", Rating: RatingUseless, TraceID: "t1"})
	require.NoError(t, err)

	matches := s.ByTraceID("t1")
	require.Len(t, matches, 2)
	assert.Equal(t, "q1", matches[0].Question)
	assert.Equal(t, "q3", matches[1].Question)

	assert.Empty(t, s.ByTraceID("unknown"))
}

func TestStore_ConcurrentSaves(t *testing.T) {
	s := NewStore()

	const n = 32
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Save(Entry{Question: "q", Answer: "a", Rating: RatingUseful})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, s.Count())

	seen := map[string]bool{}
	for _, e := range s.All() {
		assert.False(t, seen[e.ID], "ids must be unique")
		seen[e.ID] = true
	}
}
