package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/api"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/llm"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New()
	cfg.Paths.DataDir = filepath.Join(dir, ".mnemo")
	cfg.Analysis.Enabled = false

	eng, err := engine.New(cfg, dir, engine.WithLLMClient(llm.NewFake()), engine.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	return New(api.New(eng))
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	// Given: a server over a freshly wired engine
	srv := newTestServer(t)

	// When: GET /health
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	// Then: 200 with a JSON health snapshot
	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "health_score")
}

func TestHandleQuery_RejectsNonPost(t *testing.T) {
	// Given: a server
	srv := newTestServer(t)

	// When: GET /query instead of POST
	req := httptest.NewRequest("GET", "/query", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	// Then: 405
	require.Equal(t, 405, rec.Code)
}

func TestHandleQuery_EmptyTextReturnsAPIError(t *testing.T) {
	// Given: a server
	srv := newTestServer(t)

	// When: POST /query with an empty query text
	body, _ := json.Marshal(api.QueryRequest{Text: ""})
	req := httptest.NewRequest("POST", "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	// Then: a 4xx with a structured error code, not a 500 or panic
	require.GreaterOrEqual(t, rec.Code, 400)
	require.Less(t, rec.Code, 500)
}

func TestHandleJobsItem_UnknownIDReturns404(t *testing.T) {
	// Given: a server
	srv := newTestServer(t)

	// When: GET /jobs/does-not-exist
	req := httptest.NewRequest("GET", "/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	// Then: 404
	require.Equal(t, 404, rec.Code)
}

func TestParsePort_BarePortDefaultsToLocalhost(t *testing.T) {
	addr, err := ParsePort("8420")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8420", addr)
}

func TestParsePort_HostPortPassesThrough(t *testing.T) {
	addr, err := ParsePort("0.0.0.0:9000")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", addr)
}

func TestParsePort_EmptyIsError(t *testing.T) {
	_, err := ParsePort("")
	require.Error(t, err)
}
