package knowledge

import "context"

// Store is the persistence contract for embedded chunks. Implementations
// must be safe for concurrent use.
type Store interface {
	// EnsureReady creates the chunk table and supporting indexes if they
	// do not exist yet. It is called once at startup and before a full
	// rebuild; it must be idempotent.
	EnsureReady(ctx context.Context) error

	// Search returns up to topK chunks nearest to vec, ordered by
	// descending score. It does not apply any score threshold; that is
	// the retriever's job.
	Search(ctx context.Context, vec []float32, topK int) ([]SearchHit, error)

	// UpsertChunks writes chunks in one batch. Re-writing an existing
	// point is a no-op update, so the call is idempotent.
	UpsertChunks(ctx context.Context, chunks []StoredChunk) error

	// DeleteByDocID removes every chunk belonging to docID and reports
	// how many rows went away.
	DeleteByDocID(ctx context.Context, docID string) (int64, error)

	// ListDocHashes returns the stored whole-file hash for every
	// document currently in the store, keyed by doc ID.
	ListDocHashes(ctx context.Context) (map[string]string, error)

	// Count reports the total number of stored chunks.
	Count(ctx context.Context) (int64, error)
}
