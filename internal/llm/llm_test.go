package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeExpandDefaultTemplates(t *testing.T) {
	f := NewFake()
	out, err := f.Expand(context.Background(), "config loading", 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestFakeHypothesizeDeterministic(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	a, _ := f.Hypothesize(ctx, "retry logic")
	b, _ := f.Hypothesize(ctx, "retry logic")
	require.Equal(t, a, b)
}

func TestFileMemoCachesHypothesize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hyde_cache.json")

	calls := 0
	inner := &Fake{HypothesizeFn: func(query string) string {
		calls++
		return "doc for " + query
	}}
	memo := NewFileMemo(inner, path)

	ctx := context.Background()
	doc1, err := memo.Hypothesize(ctx, "how does ingest work")
	require.NoError(t, err)
	doc2, err := memo.Hypothesize(ctx, "how does ingest work")
	require.NoError(t, err)

	require.Equal(t, doc1, doc2)
	require.Equal(t, 1, calls, "second call should hit the memo, not the inner client")

	_, err = os.Stat(path)
	require.NoError(t, err, "memo should persist to disk")
}

func TestFileMemoReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hyde_cache.json")

	inner := &Fake{HypothesizeFn: func(query string) string { return "v1: " + query }}
	first := NewFileMemo(inner, path)
	_, err := first.Hypothesize(context.Background(), "query one")
	require.NoError(t, err)

	calls := 0
	inner2 := &Fake{HypothesizeFn: func(query string) string {
		calls++
		return "v2: " + query
	}}
	second := NewFileMemo(inner2, path)
	doc, err := second.Hypothesize(context.Background(), "query one")
	require.NoError(t, err)
	require.Equal(t, "v1: query one", doc)
	require.Zero(t, calls, "a reloaded memo should serve the persisted entry without calling inner")
}
