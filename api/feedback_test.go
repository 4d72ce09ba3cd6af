package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engineqa/engineqa/internal/feedback"
	"github.com/engineqa/engineqa/internal/log"
)

func postFeedback(h *FeedbackHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.create(w, req)
	return w
}

func TestFeedbackHandler_Create(t *testing.T) {
	store := feedback.NewStore()
	h := NewFeedbackHandler(store, log.NewNop())

	w := postFeedback(h, `{
		"question": "how do I deploy?",
		"answer": "run the script",
		"rating": "useful",
		"comment": "worked",
		"trace_id": "t-1"
	}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp FeedbackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.ID)

	entries := store.ByTraceID("t-1")
	require.Len(t, entries, 1)
	assert.Equal(t, resp.ID, entries[0].ID)
	assert.Equal(t, feedback.RatingUseful, entries[0].Rating)
}

func TestFeedbackHandler_InvalidRating(t *testing.T) {
	h := NewFeedbackHandler(feedback.NewStore(), log.NewNop())

	w := postFeedback(h, `{"question":"q","answer":"a","rating":"great"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "rating")
}

func TestFeedbackHandler_MissingFields(t *testing.T) {
	h := NewFeedbackHandler(feedback.NewStore(), log.NewNop())

	w := postFeedback(h, `{"question":"","answer":"a","rating":"useful"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postFeedback(h, `{"question":"q","answer":"  ","rating":"useful"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedbackHandler_InvalidBody(t *testing.T) {
	h := NewFeedbackHandler(feedback.NewStore(), log.NewNop())

	w := postFeedback(h, `{oops`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedbackHandler_List(t *testing.T) {
	store := feedback.NewStore()
	h := NewFeedbackHandler(store, log.NewNop())

	_, err := store.Save(feedback.Entry{Question: "q1", Answer: "a1", Rating: feedback.RatingUseful, TraceID: "t1"})
	require.NoError(t, err)
	_, err = store.Save(feedback.Entry{Question: "q2", Answer: "a2", Rating: feedback.RatingUseless, TraceID: "t2"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/feedback", nil)
	w := httptest.NewRecorder()
	h.list(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Feedback []feedback.Entry `json:"feedback"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)

	req = httptest.NewRequest(http.MethodGet, "/api/feedback?trace_id=t2", nil)
	w = httptest.NewRecorder()
	h.list(w, req)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "q2", resp.Feedback[0].Question)
}

func TestFeedbackHandler_ListEmpty(t *testing.T) {
	h := NewFeedbackHandler(feedback.NewStore(), log.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/feedback", nil)
	w := httptest.NewRecorder()
	h.list(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"feedback":[],"total":0}`, w.Body.String())
}
