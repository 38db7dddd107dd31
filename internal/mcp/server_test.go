package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/api"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/llm"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.Paths.DataDir = filepath.Join(dir, ".mnemo")
	cfg.Analysis.Enabled = false

	eng, err := engine.New(cfg, dir, engine.WithLLMClient(llm.NewFake()), engine.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return New(api.New(eng)), dir
}

func TestAskHandler_EmptyTextReturnsError(t *testing.T) {
	// Given: a server with nothing ingested
	srv, _ := newTestServer(t)

	// When: calling ask with empty text
	_, _, err := srv.askHandler(context.Background(), nil, AskInput{Text: ""})

	// Then: the API's validation error surfaces as the handler's error
	require.Error(t, err)
}

func TestFetchExactHandler_UnsafePathReturnsError(t *testing.T) {
	// Given: a server
	srv, _ := newTestServer(t)

	// When: fetching a path outside the project root
	_, _, err := srv.fetchExactHandler(context.Background(), nil, FetchExactInput{
		FilePath: "/etc/passwd", StartLine: 1, EndLine: 1,
	})

	// Then: it's rejected, not silently served
	require.Error(t, err)
}

func TestJobsSubmitThenGetHandler_RoundTrips(t *testing.T) {
	// Given: a server
	srv, dir := newTestServer(t)
	ctx := context.Background()

	notePath := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(notePath, []byte("we decided to use postgres"), 0o644))

	// When: submitting an ingest job via the tool handler
	_, submitResp, err := srv.jobsSubmitHandler(ctx, nil, JobSubmitInput{
		Type:   "ingest",
		Params: map[string]any{"path": notePath, "project": "p1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, submitResp.ID)

	// Then: jobs_get finds the submitted job
	_, getResp, err := srv.jobsGetHandler(ctx, nil, JobIDInput{ID: submitResp.ID})
	require.NoError(t, err)
	require.Equal(t, submitResp.ID, getResp.ID)
}

func TestJobsCancelHandler_UnknownIDReturnsError(t *testing.T) {
	// Given: a server
	srv, _ := newTestServer(t)

	// When: cancelling a job id that was never submitted
	_, _, err := srv.jobsCancelHandler(context.Background(), nil, JobIDInput{ID: "does-not-exist"})

	// Then: it reports an error rather than succeeding silently
	require.Error(t, err)
}
