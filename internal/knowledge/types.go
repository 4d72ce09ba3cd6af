// Package knowledge persists embedded document chunks and serves
// similarity search over them. The storage backend is abstracted by the
// Store interface; the production implementation is PostgreSQL + pgvector.
package knowledge

import "errors"

// Sentinel errors returned by Store implementations. Callers distinguish
// backend outages from data problems with errors.Is.
var (
	// ErrStoreUnavailable indicates the backend could not be reached or
	// refused the operation.
	ErrStoreUnavailable = errors.New("knowledge store unavailable")

	// ErrMalformedPayload indicates a stored row could not be decoded
	// into a StoredChunk.
	ErrMalformedPayload = errors.New("malformed chunk payload")
)

// StoredChunk is one embedded slice of a source document, ready to be
// written to or read back from the store.
type StoredChunk struct {
	// PointID is the storage key: "<doc_id>|<chunk_id>|<content_hash>".
	// It changes whenever the chunk text changes, so re-upserting an
	// unchanged chunk is idempotent.
	PointID string

	// DocID identifies the source document. All chunks of a document
	// share it, which is what makes per-document replacement possible.
	DocID string

	// ChunkID is "<doc_id>_chunk_<n>" with n counting from 0 within the
	// document.
	ChunkID string

	// Path is the document's path relative to the knowledge root, kept
	// for citations.
	Path string

	// TitlePath is the heading breadcrumb active where the chunk
	// starts, e.g. "Install / Linux > Packages".
	TitlePath string

	// Section is the nearest enclosing heading, or "" before the first
	// heading.
	Section string

	// Text is the chunk content that was embedded.
	Text string

	// Hash is the SHA-256 hex digest of Text.
	Hash string

	// DocHash is the SHA-256 hex digest of the whole source file. Every
	// chunk of a document carries the same value; it is what the
	// indexer compares against to decide whether a file changed.
	DocHash string

	// Vector is the embedding of Text.
	Vector []float32
}

// SearchHit is a chunk returned from similarity search together with its
// relevance score.
type SearchHit struct {
	Chunk StoredChunk

	// Score is in [0, 1], derived from cosine distance d as
	// clamp(1 - d/2, 0, 1). Higher is more relevant.
	Score float64
}
