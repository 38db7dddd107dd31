// Package api implements spec.md §6's external interfaces over one
// Engine: the Query API, the Exact-fetch API, the Job API, and an SSE
// event stream. The MCP stdio-RPC shell over the same operations is the
// separate internal/mcp package.
// Grounded on the teacher's internal/mcp package: its jsonschema-tagged
// input/output struct style (tools.go), its Server wrapping one search
// engine (server.go), and its MapError status-code translation
// (errors.go) — generalized here from one search tool to mnemo's four
// external operations.
package api

import "github.com/mnemo-dev/mnemo/internal/types"

// QueryRequest is the Query API's request body (spec.md §6).
type QueryRequest struct {
	Text            string `json:"text" jsonschema:"the natural-language query to answer"`
	Mode            string `json:"mode,omitempty" jsonschema:"light, auto, extra, or budget; default auto"`
	Limit           int    `json:"limit,omitempty" jsonschema:"maximum candidates considered before composing, default 10"`
	CursorContext   string `json:"cursor_context,omitempty" jsonschema:"text surrounding the caller's current cursor position"`
	CurrentFilePath string `json:"current_file_path,omitempty" jsonschema:"path of the file the caller is currently viewing"`
	StackTrace      string `json:"stack_trace,omitempty" jsonschema:"a stack trace or error output driving this query"`
	BudgetTokens    int    `json:"budget_tokens,omitempty" jsonschema:"explicit token budget; only used when mode is budget"`
}

// ResponseType classifies a QueryResponse's content shape.
type ResponseType string

const (
	TypeChunkResponse   ResponseType = "chunk_response"
	TypePointerResponse ResponseType = "pointer_response"
	TypeMixedResponse   ResponseType = "mixed_response"
	TypeEmpty           ResponseType = "empty"
)

// Stats is the Query API response's usage/cost summary.
type Stats struct {
	UsedTokens    int    `json:"used_tokens"`
	GlobalLimit   int    `json:"global_limit"`
	ItemsCount    int    `json:"items_count"`
	UsedLatencyMs int64  `json:"used_latency_ms"`
	SearchMethod  string `json:"search_method"`
}

// QueryResponse is the Query API's response body (spec.md §6).
type QueryResponse struct {
	Query            string            `json:"query"`
	Context          string            `json:"context"`
	Type             ResponseType      `json:"type"`
	Pointers         []types.Pointer   `json:"pointers"`
	Chunks           []types.Candidate `json:"chunks"`
	Entities         []types.Candidate `json:"entities"`
	Message          string            `json:"message,omitempty"`
	TotalFound       int               `json:"total_found"`
	Stats            Stats             `json:"stats"`
	Audit            []string          `json:"audit,omitempty"`
	EfficiencyReport *EfficiencyReport `json:"efficiency_report,omitempty"`
}

// EfficiencyReport mirrors composer.Report at the API boundary.
type EfficiencyReport struct {
	PotentialTokens int     `json:"potential_tokens"`
	CurrentTokens   int     `json:"current_tokens"`
	SavedTokens     int     `json:"saved_tokens"`
	Efficiency      float64 `json:"efficiency"`
	SavedUSD        float64 `json:"saved_usd"`
}

// FetchRequest is the Exact-fetch API's request body (spec.md §6).
type FetchRequest struct {
	FilePath    string `json:"file_path" jsonschema:"absolute or project-relative path to fetch from"`
	StartLine   int    `json:"start_line" jsonschema:"1-based inclusive start line"`
	EndLine     int    `json:"end_line" jsonschema:"1-based inclusive end line"`
	ContentHash string `json:"content_hash,omitempty" jsonschema:"expected content hash; mismatch reports a stale_pointer warning"`
}

// FetchRange echoes back the resolved line range.
type FetchRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FetchResponse is the Exact-fetch API's response body (spec.md §6).
type FetchResponse struct {
	Content string     `json:"content"`
	File    string     `json:"file"`
	Range   FetchRange `json:"range"`
	Warning string     `json:"warning,omitempty"` // "" or "stale_pointer"
}

// JobSubmitRequest is the Job API's POST /jobs request body.
type JobSubmitRequest struct {
	Type     string         `json:"type" jsonschema:"the job type; must have a registered handler"`
	Params   map[string]any `json:"params,omitempty" jsonschema:"job-type-specific parameters"`
	Priority int            `json:"priority,omitempty" jsonschema:"1 (lowest) to 10 (highest), default 5"`
}

// JobSubmitResponse is the Job API's POST /jobs response body.
type JobSubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobRecord is the Job API's GET /jobs/{id} response body.
type JobRecord struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Priority   int            `json:"priority"`
	Params     map[string]any `json:"params,omitempty"`
	Result     string         `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Progress   int            `json:"progress"`
	CreatedAt  string         `json:"created_at"`
	StartedAt  string         `json:"started_at,omitempty"`
	FinishedAt string         `json:"finished_at,omitempty"`
}

// JobCancelResponse is the Job API's DELETE /jobs/{id} response body.
type JobCancelResponse struct {
	Status string `json:"status"`
}

// HealthResponse is served by the health endpoint spec.md §7 calls for.
type HealthResponse struct {
	HealthScore float64 `json:"health_score"`
	Successes   int64   `json:"successes"`
	Failures    int64   `json:"failures"`
}
