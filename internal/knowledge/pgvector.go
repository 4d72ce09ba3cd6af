package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// chunkCols is the standard SELECT column list for scanChunks.
const chunkCols = `point_id, doc_id, chunk_id, path, title_path, section,
	content, content_hash, doc_hash, embedding`

// PGVectorStore is the PostgreSQL + pgvector implementation of Store.
//
// PGVectorStore is safe for concurrent use by multiple goroutines.
type PGVectorStore struct {
	pool   *pgxpool.Pool
	table  string
	dim    int
	logger *slog.Logger
}

// NewPGVectorStore creates a chunk store over the given pool. The table is
// not touched until EnsureReady runs.
func NewPGVectorStore(pool *pgxpool.Pool, table string, dim int, logger *slog.Logger) (*PGVectorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGVectorStore{pool: pool, table: pgx.Identifier{table}.Sanitize(), dim: dim, logger: logger}, nil
}

// EnsureReady creates the chunk table and its indexes if missing.
//
// The vector column dimension comes from configuration, so the table DDL
// lives here rather than in a migration. The HNSW index is best-effort:
// building it can fail on very old pgvector versions, and search still
// works (slower) without it, so failures are logged and swallowed.
func (s *PGVectorStore) EnsureReady(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		point_id     text PRIMARY KEY,
		doc_id       text NOT NULL,
		chunk_id     text NOT NULL,
		path         text NOT NULL,
		title_path   text NOT NULL DEFAULT '',
		section      text NOT NULL DEFAULT '',
		content      text NOT NULL,
		content_hash text NOT NULL,
		doc_hash     text NOT NULL,
		embedding    vector(%d) NOT NULL,
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`, s.table, s.dim)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating chunk table: %w: %w", ErrStoreUnavailable, err)
	}

	docIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (doc_id)`,
		pgx.Identifier{s.indexName("doc_id")}.Sanitize(), s.table)
	if _, err := s.pool.Exec(ctx, docIdx); err != nil {
		return fmt.Errorf("creating doc_id index: %w: %w", ErrStoreUnavailable, err)
	}

	hnsw := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
		pgx.Identifier{s.indexName("embedding")}.Sanitize(), s.table)
	if _, err := s.pool.Exec(ctx, hnsw); err != nil {
		s.logger.Warn("hnsw index creation failed, continuing without it", "error", err)
	}

	return nil
}

// indexName derives a stable index name from the (unsanitized) table name.
func (s *PGVectorStore) indexName(col string) string {
	// s.table is quoted at this point; strip the quotes for the name.
	raw := s.table
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	return raw + "_" + col + "_idx"
}

// Search returns the topK nearest chunks by cosine distance, scored with
// clamp(1 - d/2, 0, 1) so callers see relevance in [0, 1].
func (s *PGVectorStore) Search(ctx context.Context, vec []float32, topK int) ([]SearchHit, error) {
	if topK <= 0 {
		return []SearchHit{}, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT `+chunkCols+`, embedding <=> $1 AS distance
		 FROM %s
		 ORDER BY embedding <=> $1
		 LIMIT $2`, s.table),
		pgvector.NewVector(vec), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	hits := []SearchHit{}
	for rows.Next() {
		var (
			c        StoredChunk
			emb      pgvector.Vector
			distance float64
		)
		if err := rows.Scan(&c.PointID, &c.DocID, &c.ChunkID, &c.Path, &c.TitlePath,
			&c.Section, &c.Text, &c.Hash, &c.DocHash, &emb, &distance); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w: %w", ErrMalformedPayload, err)
		}
		c.Vector = emb.Slice()
		hits = append(hits, SearchHit{Chunk: c, Score: distanceToScore(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk rows: %w: %w", ErrStoreUnavailable, err)
	}
	return hits, nil
}

// UpsertChunks writes all chunks in a single batch. Conflicting point IDs
// are overwritten in place, which keeps re-indexing idempotent.
func (s *PGVectorStore) UpsertChunks(ctx context.Context, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`INSERT INTO %s
		(point_id, doc_id, chunk_id, path, title_path, section, content, content_hash, doc_hash, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (point_id) DO UPDATE SET
			doc_id = EXCLUDED.doc_id,
			chunk_id = EXCLUDED.chunk_id,
			path = EXCLUDED.path,
			title_path = EXCLUDED.title_path,
			section = EXCLUDED.section,
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			doc_hash = EXCLUDED.doc_hash,
			embedding = EXCLUDED.embedding,
			updated_at = now()`, s.table)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(sql, c.PointID, c.DocID, c.ChunkID, c.Path, c.TitlePath,
			c.Section, c.Text, c.Hash, c.DocHash, pgvector.NewVector(c.Vector))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting chunks: %w: %w", ErrStoreUnavailable, err)
		}
	}
	return nil
}

// DeleteByDocID removes every chunk of the given document.
func (s *PGVectorStore) DeleteByDocID(ctx context.Context, docID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE doc_id = $1`, s.table), docID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for %s: %w: %w", docID, ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

// ListDocHashes returns the whole-file hash recorded for each document.
// All chunks of a document carry the same doc_hash, so DISTINCT yields one
// row per document.
func (s *PGVectorStore) ListDocHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT doc_id, doc_hash FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("listing doc hashes: %w: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	hashes := map[string]string{}
	for rows.Next() {
		var docID, docHash string
		if err := rows.Scan(&docID, &docHash); err != nil {
			return nil, fmt.Errorf("scanning doc hash row: %w: %w", ErrMalformedPayload, err)
		}
		hashes[docID] = docHash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading doc hash rows: %w: %w", ErrStoreUnavailable, err)
	}
	return hashes, nil
}

// Count reports the number of stored chunks.
func (s *PGVectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// distanceToScore converts a cosine distance in [0, 2] to a relevance
// score in [0, 1].
func distanceToScore(d float64) float64 {
	score := 1 - d/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// PointKey builds the storage key for a chunk.
func PointKey(docID, chunkID, contentHash string) string {
	return docID + "|" + chunkID + "|" + contentHash
}
