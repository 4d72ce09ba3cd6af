package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/engineqa/engineqa/internal/knowledge"
)

// ErrBelowThreshold is returned when the store produced hits but none
// cleared the relevance threshold. Callers must treat this differently
// from an empty result: the corpus has *something* nearby, just nothing
// trustworthy enough to ground an answer on.
var ErrBelowThreshold = errors.New("no results above score threshold")

// Passage is one retrieved chunk ready for prompting and citation.
type Passage struct {
	DocID     string
	Path      string
	TitlePath string
	Section   string
	Snippet   string
	Score     float64
}

// Retriever performs similarity search and threshold filtering. It reads
// the knowledge store, never writes it.
type Retriever struct {
	store     knowledge.Store
	threshold float64
	topK      int
	logger    *slog.Logger
}

// NewRetriever creates a Retriever. topK is the default result count
// used when a caller passes a non-positive value to Retrieve.
func NewRetriever(store knowledge.Store, threshold float64, topK int, logger *slog.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("score threshold must be in [0, 1], got %v", threshold)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, threshold: threshold, topK: topK, logger: logger}, nil
}

// Retrieve returns the passages above the relevance threshold, highest
// score first. Three outcomes:
//   - the store found nothing at all: empty slice, nil error
//   - hits exist but all score below the threshold: ErrBelowThreshold
//   - at least one hit clears the threshold: ranked passages
func (r *Retriever) Retrieve(ctx context.Context, vec []float32, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = r.topK
	}

	hits, err := r.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}
	if len(hits) == 0 {
		return []Passage{}, nil
	}

	passages := make([]Passage, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.threshold {
			continue
		}
		passages = append(passages, Passage{
			DocID:     hit.Chunk.DocID,
			Path:      hit.Chunk.Path,
			TitlePath: hit.Chunk.TitlePath,
			Section:   hit.Chunk.Section,
			Snippet:   hit.Chunk.Text,
			Score:     hit.Score,
		})
	}

	if len(passages) == 0 {
		r.logger.Debug("all hits below threshold",
			"hits", len(hits), "threshold", r.threshold)
		return nil, ErrBelowThreshold
	}
	return passages, nil
}
