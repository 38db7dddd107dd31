package ingestor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/fastpath"
	"github.com/mnemo-dev/mnemo/internal/stemmer"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestIngestor(t *testing.T) (*Ingestor, *store.MetadataStore, *store.VectorStore) {
	t.Helper()
	meta, err := store.NewMetadataStore("")
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	vectors, err := store.NewVectorStore(store.VectorConfig{Dimensions: embed.HashDimensions})
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })

	fp := fastpath.New(nil)
	embedder := embed.NewHashEmbedder()

	ing := New(meta, vectors, fp, embedder, nil, nil, stemmer.Conservative, false, nil)
	return ing, meta, vectors
}

func TestIngestFileCreatesMatchingFTSAndVectorChunks(t *testing.T) {
	ing, meta, vectors := newTestIngestor(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("Problem: the cache stampedes\nSolution: add jitter\n"), 0o644))

	ctx := context.Background()
	require.NoError(t, ing.IngestFile(ctx, path, "proj"))

	hits, err := meta.SearchFTS(ctx, "cache stampede", "proj", 10, store.ModeOr)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	require.Greater(t, vectors.Count(), 0)
}

func TestIngestFileFTSAndVectorChunkSetsMatch(t *testing.T) {
	ing, meta, vectors := newTestIngestor(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "big.md")
	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "alpha line %d with enough padding to push the chunker past its budget\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	ctx := context.Background()
	require.NoError(t, ing.IngestFile(ctx, path, "proj"))

	hits, err := meta.SearchFTS(ctx, "alpha", "proj", 1000, store.ModeOr)
	require.NoError(t, err)
	require.Greater(t, len(hits), 1, "the file must span multiple chunks for this to test anything")

	ftsRanges := make(map[string]bool, len(hits))
	for _, h := range hits {
		ftsRanges[fmt.Sprintf("%d-%d", h.StartLine, h.EndLine)] = true
	}

	vecRanges := make(map[string]bool)
	for _, id := range vectors.AllIDs() {
		require.True(t, strings.HasPrefix(id, path+"#"), "unexpected vector id %q", id)
		vecRanges[strings.TrimPrefix(id, path+"#")] = true
	}

	require.Equal(t, ftsRanges, vecRanges, "FTS and Vector Store must hold the same (start_line, end_line) chunk sets")
}

func TestIngestFileReplacesChunksOnReingest(t *testing.T) {
	ing, meta, _ := newTestIngestor(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	ctx := context.Background()

	require.NoError(t, os.WriteFile(path, []byte("first version of the file\n"), 0o644))
	require.NoError(t, ing.IngestFile(ctx, path, "proj"))

	require.NoError(t, os.WriteFile(path, []byte("completely different content now\n"), 0o644))
	require.NoError(t, ing.IngestFile(ctx, path, "proj"))

	hits, err := meta.SearchFTS(ctx, "first version", "proj", 10, store.ModeOr)
	require.NoError(t, err)
	require.Empty(t, hits, "old chunk content must not survive a re-ingest")

	hits, err = meta.SearchFTS(ctx, "completely different", "proj", 10, store.ModeOr)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestIngestFileExtractsEntities(t *testing.T) {
	ing, meta, _ := newTestIngestor(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.md")
	require.NoError(t, os.WriteFile(path, []byte("Decision: use SQLite [2024-01-01 -> ]\n- [ ] write migration\n"), 0o644))

	ctx := context.Background()
	require.NoError(t, ing.IngestFile(ctx, path, "proj"))

	decisions, err := meta.SearchEntities(ctx, "SQLite", "", "proj", 10)
	require.NoError(t, err)
	require.NotEmpty(t, decisions)
}

func TestIngestBatchCollectsErrorsWithoutAbortingRemainingFiles(t *testing.T) {
	ing, meta, _ := newTestIngestor(t)

	dir := t.TempDir()
	goodPath := filepath.Join(dir, "good.md")
	require.NoError(t, os.WriteFile(goodPath, []byte("some searchable content here\n"), 0o644))
	missingPath := filepath.Join(dir, "does-not-exist.md")

	ctx := context.Background()
	errs := ing.IngestBatch(ctx, []string{missingPath, goodPath}, "proj")
	require.Len(t, errs, 1)

	hits, err := meta.SearchFTS(ctx, "searchable content", "proj", 10, store.ModeOr)
	require.NoError(t, err)
	require.NotEmpty(t, hits, "a failing file must not prevent later files in the batch from ingesting")
}

func TestChunkByLinesNeverSplitsALine(t *testing.T) {
	text := ""
	for i := 0; i < 5; i++ {
		text += "this is a line long enough to matter for the char budget test xxxxxxxxxxxxxxxxxxxx\n"
	}
	chunks := chunkByLines(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, c.startLine, c.endLine)
	}
}

func TestScanSkipsNoiseDirectoriesAndUnknownExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "binary.exe"), []byte("x"), 0o644))

	files, err := Scan(dir, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, filepath.Join(dir, "notes.md"), files[0])
}

func TestIsAllowedFileRespectsBlacklist(t *testing.T) {
	require.True(t, IsAllowedFile("/repo/notes.md", nil))
	require.False(t, IsAllowedFile("/repo/PHASE_HANDOFF.md", []string{"PHASE_HANDOFF*"}))
	require.False(t, IsAllowedFile("/repo/node_modules/x.js", nil))
}
