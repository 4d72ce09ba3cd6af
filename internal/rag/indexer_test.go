package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engineqa/engineqa/internal/knowledge"
)

// fakeStore is an in-memory knowledge.Store that records every mutating
// call so tests can assert ordering and call counts.
type fakeStore struct {
	mu     sync.Mutex
	points map[string]knowledge.StoredChunk

	searchHits []knowledge.SearchHit
	searchErr  error

	upsertCalls int
	deleteCalls []string
	ops         []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: map[string]knowledge.StoredChunk{}}
}

func (s *fakeStore) EnsureReady(context.Context) error { return nil }

func (s *fakeStore) Search(_ context.Context, _ []float32, topK int) ([]knowledge.SearchHit, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if topK > len(s.searchHits) {
		topK = len(s.searchHits)
	}
	return s.searchHits[:topK], nil
}

func (s *fakeStore) UpsertChunks(_ context.Context, chunks []knowledge.StoredChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	for _, c := range chunks {
		s.points[c.PointID] = c
		s.ops = append(s.ops, "upsert:"+c.DocID)
	}
	return nil
}

func (s *fakeStore) DeleteByDocID(_ context.Context, docID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls = append(s.deleteCalls, docID)
	s.ops = append(s.ops, "delete:"+docID)
	var n int64
	for id, c := range s.points {
		if c.DocID == docID {
			delete(s.points, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) ListDocHashes(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hashes := map[string]string{}
	for _, c := range s.points {
		hashes[c.DocID] = c.DocHash
	}
	return hashes, nil
}

func (s *fakeStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.points)), nil
}

func (s *fakeStore) chunkCount(docID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.points {
		if c.DocID == docID {
			n++
		}
	}
	return n
}

// fakeEmbedder returns a fixed vector, failing for texts containing any
// of the configured markers.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failWith string
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.failWith != "" && strings.Contains(text, e.failWith) {
		return nil, errors.New("embed refused")
	}
	return []float32{1, 0, 0}, nil
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestIndexer(t *testing.T, store knowledge.Store, embedder Embedder, root string) *Indexer {
	t.Helper()
	chunker := mustChunker(t, 1000, 125)
	ix, err := NewIndexer(store, embedder, chunker, root, 4, nil)
	require.NoError(t, err)
	return ix
}

func TestIndex_MissingRootReturnsZeroedRun(t *testing.T) {
	store := newFakeStore()
	ix := newTestIndexer(t, store, &fakeEmbedder{}, filepath.Join(t.TempDir(), "nope"))

	run, err := ix.Index(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, run.TotalFiles)
	assert.Zero(t, run.IndexedFiles)
	assert.Zero(t, store.upsertCalls)
}

func TestIndex_EmptyRootReturnsZeroedRun(t *testing.T) {
	store := newFakeStore()
	ix := newTestIndexer(t, store, &fakeEmbedder{}, t.TempDir())

	run, err := ix.Index(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, run.TotalFiles)
	assert.Zero(t, run.TotalChunks)
}

func TestIndex_NewDocuments(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "guides/install.md", "# Install\nhow to install\n")
	writeFile(t, root, "faq.md", "common questions\n")

	store := newFakeStore()
	embedder := &fakeEmbedder{}
	ix := newTestIndexer(t, store, embedder, root)

	run, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, run.TotalFiles)
	assert.Equal(t, 2, run.IndexedFiles)
	assert.Zero(t, run.SkippedFiles)
	assert.Equal(t, 2, run.TotalChunks)
	assert.Equal(t, 2, run.SuccessfulChunks)
	assert.Zero(t, run.FailedChunks)

	assert.Equal(t, 1, store.chunkCount("guides_install.md"))
	assert.Equal(t, 1, store.chunkCount("faq.md"))

	hashes, err := store.ListDocHashes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HashText("# Install\nhow to install\n"), hashes["guides_install.md"])
}

func TestIndex_UnchangedDocumentSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "faq.md", "common questions\n")

	store := newFakeStore()
	embedder := &fakeEmbedder{}
	ix := newTestIndexer(t, store, embedder, root)

	_, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	upsertsBefore := store.upsertCalls
	deletesBefore := len(store.deleteCalls)
	embedsBefore := embedder.calls

	run, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, run.SkippedFiles)
	assert.Zero(t, run.IndexedFiles)
	assert.Equal(t, upsertsBefore, store.upsertCalls)
	assert.Equal(t, deletesBefore, len(store.deleteCalls))
	assert.Equal(t, embedsBefore, embedder.calls)
}

func TestIndex_FullRebuildReindexesUnchanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "faq.md", "common questions\n")

	store := newFakeStore()
	ix := newTestIndexer(t, store, &fakeEmbedder{}, root)

	_, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	run, err := ix.Index(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, run.IndexedFiles)
	assert.Zero(t, run.SkippedFiles)
}

func TestIndex_ChangedDocumentDeletesBeforeWriting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "faq.md", "old content\n")

	store := newFakeStore()
	ix := newTestIndexer(t, store, &fakeEmbedder{}, root)

	_, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	writeFile(t, root, "faq.md", "# Updated\nnew content\n")
	store.ops = nil

	run, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, run.IndexedFiles)
	assert.Equal(t, 1, store.chunkCount("faq.md"))

	require.NotEmpty(t, store.ops)
	assert.Equal(t, "delete:faq.md", store.ops[0],
		"old points must be gone before any new point is written")
	for _, op := range store.ops[1:] {
		assert.Equal(t, "upsert:faq.md", op)
	}
}

func TestIndex_RemovedDocumentDeleted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.md", "keeps\n")
	writeFile(t, root, "gone.md", "goes away\n")

	store := newFakeStore()
	ix := newTestIndexer(t, store, &fakeEmbedder{}, root)

	_, err := ix.Index(context.Background(), false)
	require.NoError(t, err)
	prior := store.chunkCount("gone.md")
	require.Positive(t, prior)

	require.NoError(t, os.Remove(filepath.Join(root, "gone.md")))

	run, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, int64(prior), run.DeletedChunks)
	assert.Zero(t, store.chunkCount("gone.md"))
	assert.Equal(t, 1, store.chunkCount("keep.md"))
}

func TestIndex_EmbedFailuresCountedNotFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mixed.md", "# Good\ngood text\n# Bad\nPOISON text\n")

	store := newFakeStore()
	ix := newTestIndexer(t, store, &fakeEmbedder{failWith: "POISON"}, root)

	run, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, run.TotalChunks)
	assert.Equal(t, 1, run.SuccessfulChunks)
	assert.Equal(t, 1, run.FailedChunks)
	assert.Equal(t, 1, store.chunkCount("mixed.md"))
}

func TestIndex_HeadingOnlyDocumentYieldsNoChunks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "toc.md", "# One\n## Two\n")

	store := newFakeStore()
	ix := newTestIndexer(t, store, &fakeEmbedder{}, root)

	run, err := ix.Index(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, run.IndexedFiles)
	assert.Zero(t, run.TotalChunks)
	assert.Zero(t, store.upsertCalls)
}

func TestDocID(t *testing.T) {
	assert.Equal(t, "guides_install.md", DocID("guides/install.md"))
	assert.Equal(t, "a_b_c.md", DocID(`a/b\c.md`))
	assert.Equal(t, "flat.md", DocID("flat.md"))
}
