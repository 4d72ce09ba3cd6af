package rag

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/engineqa/engineqa/internal/knowledge"
)

// Embedder is the slice of the upstream client the indexer needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IndexRun aggregates the outcome of one indexing pass. It is returned
// to the caller and recorded on the reindex job; it is never persisted.
type IndexRun struct {
	TotalFiles       int   `json:"total_files"`
	IndexedFiles     int   `json:"indexed_files"`
	SkippedFiles     int   `json:"skipped_files"`
	FailedFiles      int   `json:"failed_files"`
	TotalChunks      int   `json:"total_chunks"`
	SuccessfulChunks int   `json:"successful_chunks"`
	FailedChunks     int   `json:"failed_chunks"`
	DeletedChunks    int64 `json:"deleted_chunks"`
	DurationMS       int64 `json:"duration_ms"`
}

// Indexer keeps the knowledge store in sync with a directory of markdown
// files. It is the only writer to the store.
type Indexer struct {
	store          knowledge.Store
	embedder       Embedder
	chunker        *Chunker
	root           string
	maxConcurrency int64
	logger         *slog.Logger
}

// NewIndexer creates an Indexer over the given knowledge root.
// maxConcurrency bounds how many embedding calls may be in flight at once
// during a run.
func NewIndexer(store knowledge.Store, embedder Embedder, chunker *Chunker,
	root string, maxConcurrency int, logger *slog.Logger) (*Indexer, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if maxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", maxConcurrency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:          store,
		embedder:       embedder,
		chunker:        chunker,
		root:           root,
		maxConcurrency: int64(maxConcurrency),
		logger:         logger,
	}, nil
}

// scannedFile is one markdown file found under the root.
type scannedFile struct {
	relPath string
	docID   string
	hash    string
	content string
}

// Index runs one indexing pass. With fullRebuild every document is
// re-embedded; otherwise only new or changed documents are, decided by
// comparing whole-file hashes against the store's inventory. Documents
// that disappeared from the root have their points deleted either way.
//
// Per-document and per-chunk failures are counted, not propagated; Index
// itself fails only when the store inventory cannot be read.
func (ix *Indexer) Index(ctx context.Context, fullRebuild bool) (IndexRun, error) {
	start := time.Now()
	run := IndexRun{}

	ix.logger.Info("starting markdown indexing", "root", ix.root, "full_rebuild", fullRebuild)

	files, unreadable, err := ix.scan()
	if err != nil {
		return run, fmt.Errorf("scanning knowledge root: %w", err)
	}
	run.TotalFiles = len(files) + unreadable
	run.FailedFiles = unreadable
	if len(files) == 0 {
		ix.logger.Warn("no markdown files found", "root", ix.root)
		run.DurationMS = time.Since(start).Milliseconds()
		return run, nil
	}

	if fullRebuild {
		if err := ix.store.EnsureReady(ctx); err != nil {
			return run, fmt.Errorf("preparing store: %w", err)
		}
	}

	inventory, err := ix.store.ListDocHashes(ctx)
	if err != nil {
		return run, fmt.Errorf("reading store inventory: %w", err)
	}

	sem := semaphore.NewWeighted(ix.maxConcurrency)

	for _, f := range files {
		if !fullRebuild && inventory[f.docID] == f.hash {
			ix.logger.Debug("file unchanged, skipping", "path", f.relPath)
			run.SkippedFiles++
			continue
		}

		ok, failed, err := ix.processFile(ctx, sem, f)
		if err != nil {
			ix.logger.Error("failed to process file", "path", f.relPath, "error", err)
			run.FailedFiles++
			continue
		}
		run.IndexedFiles++
		run.TotalChunks += ok + failed
		run.SuccessfulChunks += ok
		run.FailedChunks += failed
	}

	deleted, err := ix.deleteObsolete(ctx, files, inventory)
	if err != nil {
		ix.logger.Error("failed to delete obsolete documents", "error", err)
	}
	run.DeletedChunks = deleted

	run.DurationMS = time.Since(start).Milliseconds()
	ix.logger.Info("indexing complete",
		"total_files", run.TotalFiles,
		"indexed_files", run.IndexedFiles,
		"skipped_files", run.SkippedFiles,
		"failed_files", run.FailedFiles,
		"successful_chunks", run.SuccessfulChunks,
		"failed_chunks", run.FailedChunks,
		"deleted_chunks", run.DeletedChunks,
		"duration_ms", run.DurationMS)

	return run, nil
}

// scan walks the knowledge root recursively, reading every *.md file and
// hashing its content. A missing root is not an error; it reads as an
// empty corpus. An unreadable file is counted, not fatal. Results are
// sorted by relative path so runs are reproducible.
func (ix *Indexer) scan() ([]scannedFile, int, error) {
	if _, err := os.Stat(ix.root); os.IsNotExist(err) {
		ix.logger.Warn("knowledge directory does not exist", "root", ix.root)
		return nil, 0, nil
	}

	var (
		files      []scannedFile
		unreadable int
	)
	err := filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			ix.logger.Error("failed to read file", "path", path, "error", err)
			unreadable++
			return nil
		}
		rel, err := filepath.Rel(ix.root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		files = append(files, scannedFile{
			relPath: rel,
			docID:   DocID(rel),
			hash:    HashText(string(content)),
			content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].relPath < files[j].relPath })
	return files, unreadable, nil
}

// processFile re-indexes one document: its old points are deleted first,
// then every chunk is embedded (bounded by the concurrency gate) and the
// successful ones are written in a single batch. Chunk failures are
// counted, not fatal.
func (ix *Indexer) processFile(ctx context.Context, sem *semaphore.Weighted, f scannedFile) (ok, failed int, err error) {
	if _, err := ix.store.DeleteByDocID(ctx, f.docID); err != nil {
		return 0, 0, fmt.Errorf("deleting old points: %w", err)
	}

	chunks := ix.chunker.Split(f.content, f.relPath, f.docID)
	if len(chunks) == 0 {
		ix.logger.Debug("document produced no chunks", "path", f.relPath)
		return 0, 0, nil
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		points []knowledge.StoredChunk
	)

	for _, chunk := range chunks {
		if err := sem.Acquire(ctx, 1); err != nil {
			return len(points), failed, err
		}
		wg.Add(1)
		go func(chunk Chunk) {
			defer wg.Done()
			defer sem.Release(1)

			vec, err := ix.embedder.Embed(ctx, chunk.Text)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ix.logger.Error("failed to embed chunk",
					"doc_id", chunk.DocID, "chunk_id", chunk.ChunkID, "error", err)
				failed++
				return
			}
			points = append(points, knowledge.StoredChunk{
				PointID:   knowledge.PointKey(chunk.DocID, chunk.ChunkID, chunk.Hash),
				DocID:     chunk.DocID,
				ChunkID:   chunk.ChunkID,
				Path:      chunk.Path,
				TitlePath: chunk.TitlePath,
				Section:   chunk.Section,
				Text:      chunk.Text,
				Hash:      chunk.Hash,
				DocHash:   f.hash,
				Vector:    vec,
			})
		}(chunk)
	}
	wg.Wait()

	if len(points) > 0 {
		if err := ix.store.UpsertChunks(ctx, points); err != nil {
			return 0, len(chunks), fmt.Errorf("writing points: %w", err)
		}
	}
	return len(points), failed, nil
}

// deleteObsolete removes every stored document that no longer exists
// under the root. It runs on every pass, incremental or not, so deletes
// and renames are picked up even when nothing changed.
func (ix *Indexer) deleteObsolete(ctx context.Context, files []scannedFile, inventory map[string]string) (int64, error) {
	current := make(map[string]struct{}, len(files))
	for _, f := range files {
		current[f.docID] = struct{}{}
	}

	var deleted int64
	for docID := range inventory {
		if _, ok := current[docID]; ok {
			continue
		}
		n, err := ix.store.DeleteByDocID(ctx, docID)
		if err != nil {
			return deleted, err
		}
		ix.logger.Info("deleted obsolete document", "doc_id", docID, "chunks", n)
		deleted += n
	}
	return deleted, nil
}

// DocID derives the stable document ID from a root-relative path. Path
// separators collapse to underscores so the ID is filesystem-neutral.
func DocID(relPath string) string {
	relPath = strings.ReplaceAll(relPath, "/", "_")
	return strings.ReplaceAll(relPath, "\\", "_")
}
