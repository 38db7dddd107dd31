package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/analysis"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/llm"
)

// stubAnalyzer always reports one notification, regardless of input,
// so tests can exercise the suggestion-broadcast path without needing
// a real contradiction-detection setup.
type stubAnalyzer struct{ notification analysis.Notification }

func (s stubAnalyzer) AnalyzeIngest(ctx context.Context, filePaths []string, project string) ([]analysis.Notification, error) {
	return []analysis.Notification{s.notification}, nil
}

func newTestAPI(t *testing.T) (*API, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.Paths.DataDir = filepath.Join(dir, ".mnemo")
	cfg.Analysis.Enabled = false

	e, err := engine.New(cfg, dir, engine.WithLLMClient(llm.NewFake()), engine.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	return New(e), dir
}

func ingestAndWait(t *testing.T, a *API, dir, name, content, project string) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	jobID, err := a.Engine.IngestPath(ctx, path, project, 5)
	require.NoError(t, err)

	a.Engine.StartWorker(ctx)
	t.Cleanup(a.Engine.StopWorker)

	require.Eventually(t, func() bool {
		job, err := a.Engine.Jobs.Get(ctx, jobID)
		return err == nil && job.Status == "completed"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueryRejectsEmptyText(t *testing.T) {
	a, _ := newTestAPI(t)
	_, apiErr := a.Query(context.Background(), QueryRequest{Text: "   "})
	require.NotNil(t, apiErr)
}

func TestQueryReturnsEmptyTypeWhenNothingIndexed(t *testing.T) {
	a, _ := newTestAPI(t)
	resp, apiErr := a.Query(context.Background(), QueryRequest{Text: "does not exist anywhere"})
	require.Nil(t, apiErr)
	require.Equal(t, TypeEmpty, resp.Type)
}

func TestQueryFindsIngestedContent(t *testing.T) {
	a, dir := newTestAPI(t)
	ingestAndWait(t, a, dir, "notes.md", "we decided to use sqlite for storage", "p1")

	resp, apiErr := a.Query(context.Background(), QueryRequest{Text: "sqlite storage decision", Limit: 10})
	require.Nil(t, apiErr)
	require.NotEqual(t, TypeEmpty, resp.Type)
	require.NotEmpty(t, resp.Context)
}

func TestResolveModeInfersFromStackTraceAndShortQueries(t *testing.T) {
	require.Equal(t, "extra", resolveMode(QueryRequest{Text: "something broke", StackTrace: "panic: nil pointer"}))
	require.Equal(t, "light", resolveMode(QueryRequest{Text: "two words"}))
	require.Equal(t, "default", resolveMode(QueryRequest{Text: "a much longer query with more than five words total"}))
	require.Equal(t, "extra", resolveMode(QueryRequest{Text: "x", Mode: "extra"}))
}

func TestStackPathHintsParsesGoAndPythonFrames(t *testing.T) {
	goTrace := "goroutine 1 [running]:\nmain.run()\n\t/home/dev/proj/internal/watcher/watcher.go:88 +0x1a\nmain.main()\n\t/home/dev/proj/cmd/app/main.go:12 +0x2b"
	require.Equal(t, []string{"watcher", "main"}, stackPathHints(goTrace, 3))

	pyTrace := "Traceback (most recent call last):\n  File \"ingest.py\", line 42, in run\n  File \"store.py\", line 7, in open"
	require.Equal(t, []string{"ingest", "store"}, stackPathHints(pyTrace, 3))

	require.Nil(t, stackPathHints("", 3))
}

func TestQueryCursorContextAppearsInComposedContext(t *testing.T) {
	a, dir := newTestAPI(t)
	ingestAndWait(t, a, dir, "notes.md", "we decided to use sqlite for storage", "p1")

	resp, apiErr := a.Query(context.Background(), QueryRequest{
		Text: "sqlite storage decision", CursorContext: "func openStore() { // editing here",
	})
	require.Nil(t, apiErr)
	require.Contains(t, resp.Context, "func openStore()")
	require.Contains(t, resp.Context, ">>> cursor >>>")
}

func TestQueryBudgetModeOverridesGlobalLimit(t *testing.T) {
	a, dir := newTestAPI(t)
	ingestAndWait(t, a, dir, "notes.md", "we decided to use sqlite for storage", "p1")

	resp, apiErr := a.Query(context.Background(), QueryRequest{
		Text: "sqlite storage decision", Mode: "budget", BudgetTokens: 123,
	})
	require.Nil(t, apiErr)
	require.Equal(t, 123, resp.Stats.GlobalLimit)
	require.LessOrEqual(t, resp.Stats.UsedTokens, 123)
}

func TestFetchExactRejectsUnsafePath(t *testing.T) {
	a, _ := newTestAPI(t)
	_, apiErr := a.FetchExact(context.Background(), FetchRequest{FilePath: "/etc/passwd", StartLine: 1, EndLine: 2})
	require.NotNil(t, apiErr)
}

func TestFetchExactRejectsInvalidRange(t *testing.T) {
	a, dir := newTestAPI(t)
	path := filepath.Join(dir, "file.md")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	_, apiErr := a.FetchExact(context.Background(), FetchRequest{FilePath: path, StartLine: 5, EndLine: 1})
	require.NotNil(t, apiErr)
}

func TestFetchExactReturnsRequestedLines(t *testing.T) {
	a, dir := newTestAPI(t)
	path := filepath.Join(dir, "file.md")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\nline three\n"), 0o644))

	resp, apiErr := a.FetchExact(context.Background(), FetchRequest{FilePath: path, StartLine: 1, EndLine: 2})
	require.Nil(t, apiErr)
	require.Equal(t, "line one\nline two", resp.Content)
	require.Empty(t, resp.Warning)
}

func TestFetchExactReportsStalePointerOnHashMismatch(t *testing.T) {
	a, dir := newTestAPI(t)
	path := filepath.Join(dir, "file.md")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	resp, apiErr := a.FetchExact(context.Background(), FetchRequest{
		FilePath: path, StartLine: 1, EndLine: 1, ContentHash: "not-the-real-hash",
	})
	require.Nil(t, apiErr)
	require.Equal(t, "stale_pointer", resp.Warning)
}

func TestJobLifecycleSubmitGetCancel(t *testing.T) {
	a, _ := newTestAPI(t)
	ctx := context.Background()

	submitResp, apiErr := a.SubmitJob(ctx, JobSubmitRequest{Type: "test_job"})
	require.Nil(t, apiErr)
	require.NotEmpty(t, submitResp.ID)
	require.Equal(t, "pending", submitResp.Status)

	job, apiErr := a.GetJob(ctx, submitResp.ID)
	require.Nil(t, apiErr)
	require.Equal(t, submitResp.ID, job.ID)

	cancelResp, apiErr := a.CancelJob(ctx, submitResp.ID)
	require.Nil(t, apiErr)
	require.Equal(t, "cancelled", cancelResp.Status)
}

func TestSubmitJobRejectsEmptyType(t *testing.T) {
	a, _ := newTestAPI(t)
	_, apiErr := a.SubmitJob(context.Background(), JobSubmitRequest{})
	require.NotNil(t, apiErr)
}

func TestGetJobNotFound(t *testing.T) {
	a, _ := newTestAPI(t)
	_, apiErr := a.GetJob(context.Background(), "does-not-exist")
	require.NotNil(t, apiErr)
}

func TestProactiveAnalysisSuggestionReachesBroadcaster(t *testing.T) {
	a, dir := newTestAPI(t)
	a.Engine.Analysis = stubAnalyzer{notification: analysis.Notification{
		Type: "contradiction", FilePath: "notes.md", Explanation: "conflicts with decision X",
		Suggestion: "ratify or supersede",
	}}

	events, unsubscribe := a.Broadcaster.Subscribe()
	defer unsubscribe()

	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("some note"), 0o644))

	ctx := context.Background()
	_, err := a.Engine.Jobs.Submit(ctx, "proactive_analysis", map[string]any{"path": path, "project": ""}, 3)
	require.NoError(t, err)

	a.Engine.StartWorker(ctx)
	t.Cleanup(a.Engine.StopWorker)

	select {
	case ev := <-events:
		require.Equal(t, "suggestion", ev.Name)
		require.Contains(t, ev.Data, "conflicts with decision X")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for suggestion event")
	}
}

func TestHealthSnapshotTracksSuccessAndFailure(t *testing.T) {
	a, _ := newTestAPI(t)
	_, _ = a.Query(context.Background(), QueryRequest{Text: ""})
	_, _ = a.Query(context.Background(), QueryRequest{Text: "anything"})

	snap := a.HealthSnapshot()
	require.Equal(t, int64(1), snap.Failures)
	require.Equal(t, int64(1), snap.Successes)
	require.InDelta(t, 50.0, snap.HealthScore, 0.01)
}
