// Package mcp implements mnemo's stdio-RPC transport shell: an MCP
// server exposing the Query, Exact-fetch, and Job APIs as tools, one
// per spec.md §6 operation. It is a thin adapter over internal/api —
// every tool handler simply translates its typed input into an
// api.API call and maps the result (or *api.APIError) back.
//
// Grounded on the teacher's internal/mcp/server.go: its
// mcp.NewServer/mcp.AddTool registration style, its
// (input) -> (*mcp.CallToolResult, Output, error) handler signature,
// and its stdio-only Serve method — generalized from one search tool
// to mnemo's four external operations per spec.md's "stdio RPC
// frontends: specified only at the boundary."
package mcp

import (
	"context"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mnemo-dev/mnemo/internal/api"
	"github.com/mnemo-dev/mnemo/pkg/version"
)

// Server wraps one api.API as an MCP server, registering ask,
// fetch_exact, jobs_submit, jobs_get, and jobs_cancel tools.
type Server struct {
	sdk    *sdk.Server
	api    *api.API
	logger *slog.Logger
}

// AskInput is the "ask" tool's input schema, mirroring api.QueryRequest.
type AskInput struct {
	Text            string `json:"text" jsonschema:"the natural-language query to answer"`
	Mode            string `json:"mode,omitempty" jsonschema:"light, auto, extra, or budget; default auto"`
	Limit           int    `json:"limit,omitempty" jsonschema:"maximum candidates considered before composing, default 10"`
	CursorContext   string `json:"cursor_context,omitempty" jsonschema:"text surrounding the caller's current cursor position"`
	CurrentFilePath string `json:"current_file_path,omitempty" jsonschema:"path of the file the caller is currently viewing"`
	StackTrace      string `json:"stack_trace,omitempty" jsonschema:"a stack trace or error output driving this query"`
}

// FetchExactInput is the "fetch_exact" tool's input schema.
type FetchExactInput struct {
	FilePath    string `json:"file_path" jsonschema:"absolute or project-relative path to fetch from"`
	StartLine   int    `json:"start_line" jsonschema:"1-based inclusive start line"`
	EndLine     int    `json:"end_line" jsonschema:"1-based inclusive end line"`
	ContentHash string `json:"content_hash,omitempty" jsonschema:"expected content hash; mismatch reports a stale_pointer warning"`
}

// JobSubmitInput is the "jobs_submit" tool's input schema.
type JobSubmitInput struct {
	Type     string         `json:"type" jsonschema:"the job type; must have a registered handler"`
	Params   map[string]any `json:"params,omitempty" jsonschema:"job-type-specific parameters"`
	Priority int            `json:"priority,omitempty" jsonschema:"1 (lowest) to 10 (highest), default 5"`
}

// JobIDInput is the shared input schema for "jobs_get" and "jobs_cancel".
type JobIDInput struct {
	ID string `json:"id" jsonschema:"the job id returned by jobs_submit"`
}

// New wraps a as an MCP server, registering every tool.
func New(a *api.API) *Server {
	s := &Server{
		api: a,
		sdk: sdk.NewServer(&sdk.Implementation{
			Name:    "mnemo",
			Version: version.Version,
		}, nil),
		logger: slog.Default(),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdk.AddTool(s.sdk, &sdk.Tool{
		Name:        "ask",
		Description: "Answer a natural-language query with a token-budgeted context assembled from exact, keyword, and semantic retrieval over the ingested project.",
	}, s.askHandler)

	sdk.AddTool(s.sdk, &sdk.Tool{
		Name:        "fetch_exact",
		Description: "Fetch the authoritative content for a file and line range, e.g. to dereference a pointer returned by ask.",
	}, s.fetchExactHandler)

	sdk.AddTool(s.sdk, &sdk.Tool{
		Name:        "jobs_submit",
		Description: "Submit a background job (ingest, ingest_batch, or a registered job type) to mnemo's job queue.",
	}, s.jobsSubmitHandler)

	sdk.AddTool(s.sdk, &sdk.Tool{
		Name:        "jobs_get",
		Description: "Fetch the current status, progress, and result of a previously submitted job.",
	}, s.jobsGetHandler)

	sdk.AddTool(s.sdk, &sdk.Tool{
		Name:        "jobs_cancel",
		Description: "Cancel a pending or running job.",
	}, s.jobsCancelHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 5))
}

func (s *Server) askHandler(ctx context.Context, _ *sdk.CallToolRequest, input AskInput) (*sdk.CallToolResult, api.QueryResponse, error) {
	resp, apiErr := s.api.Query(ctx, api.QueryRequest{
		Text: input.Text, Mode: input.Mode, Limit: input.Limit,
		CursorContext: input.CursorContext, CurrentFilePath: input.CurrentFilePath,
		StackTrace: input.StackTrace,
	})
	if apiErr != nil {
		return nil, api.QueryResponse{}, apiErr
	}
	return nil, resp, nil
}

func (s *Server) fetchExactHandler(ctx context.Context, _ *sdk.CallToolRequest, input FetchExactInput) (*sdk.CallToolResult, api.FetchResponse, error) {
	resp, apiErr := s.api.FetchExact(ctx, api.FetchRequest{
		FilePath: input.FilePath, StartLine: input.StartLine, EndLine: input.EndLine, ContentHash: input.ContentHash,
	})
	if apiErr != nil {
		return nil, api.FetchResponse{}, apiErr
	}
	return nil, resp, nil
}

func (s *Server) jobsSubmitHandler(ctx context.Context, _ *sdk.CallToolRequest, input JobSubmitInput) (*sdk.CallToolResult, api.JobSubmitResponse, error) {
	resp, apiErr := s.api.SubmitJob(ctx, api.JobSubmitRequest{Type: input.Type, Params: input.Params, Priority: input.Priority})
	if apiErr != nil {
		return nil, api.JobSubmitResponse{}, apiErr
	}
	return nil, resp, nil
}

func (s *Server) jobsGetHandler(ctx context.Context, _ *sdk.CallToolRequest, input JobIDInput) (*sdk.CallToolResult, api.JobRecord, error) {
	rec, apiErr := s.api.GetJob(ctx, input.ID)
	if apiErr != nil {
		return nil, api.JobRecord{}, apiErr
	}
	return nil, rec, nil
}

func (s *Server) jobsCancelHandler(ctx context.Context, _ *sdk.CallToolRequest, input JobIDInput) (*sdk.CallToolResult, api.JobCancelResponse, error) {
	resp, apiErr := s.api.CancelJob(ctx, input.ID)
	if apiErr != nil {
		return nil, api.JobCancelResponse{}, apiErr
	}
	return nil, resp, nil
}

// Serve runs the MCP server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))
	err := s.sdk.Run(ctx, &sdk.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
