package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mnemo-dev/mnemo/internal/analysis"
	"github.com/mnemo-dev/mnemo/internal/apierrors"
	"github.com/mnemo-dev/mnemo/internal/classifier"
	"github.com/mnemo-dev/mnemo/internal/composer"
	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/retriever"
	"github.com/mnemo-dev/mnemo/internal/types"
	"github.com/mnemo-dev/mnemo/internal/validation"
)

// API wraps one Engine with spec.md §6's four external operations plus
// the health tracker and event broadcaster every handler reports
// through. One API serves one project's Engine; a process hosting
// several projects runs one API per Engine.
type API struct {
	Engine      *engine.Engine
	Broadcaster *Broadcaster
	Health      *HealthTracker
}

// New wraps engine in an API, ready to serve Query/FetchExact/Job/
// Health calls and to broadcast job and suggestion events.
func New(eng *engine.Engine) *API {
	a := &API{Engine: eng, Broadcaster: NewBroadcaster(), Health: &HealthTracker{}}
	eng.SetSuggestionHandler(func(n analysis.Notification) {
		a.Broadcaster.NotifySuggestion(n.Type, n.FilePath, n.Explanation, n.Suggestion)
	})
	return a
}

// resolveMode infers an auto query's effective profile name per
// spec.md §6: extra when a stack trace rode along, light for very
// short queries, the named profile otherwise (default when unset).
func resolveMode(req QueryRequest) string {
	mode := req.Mode
	if mode == "" {
		mode = "auto"
	}
	if mode != "auto" {
		return mode
	}
	if req.StackTrace != "" {
		return "extra"
	}
	if len(strings.Fields(req.Text)) <= 5 {
		return "light"
	}
	return "default"
}

func responseType(result classifier.Result) ResponseType {
	hasChunks := len(result.Chunks) > 0
	hasPointers := len(result.Pointers) > 0
	switch {
	case !hasChunks && !hasPointers && len(result.Entities) == 0:
		return TypeEmpty
	case hasChunks && hasPointers:
		return TypeMixedResponse
	case hasPointers:
		return TypePointerResponse
	default:
		return TypeChunkResponse
	}
}

// Query answers one natural-language query end to end: retrieve,
// classify, compose, and shape the result into spec.md §6's Query API
// response body.
func (a *API) Query(ctx context.Context, req QueryRequest) (QueryResponse, *APIError) {
	start := time.Now()

	if strings.TrimSpace(req.Text) == "" {
		a.Health.RecordFailure()
		return QueryResponse{}, MapError(apierrors.New(apierrors.CodeInvalidInput, "text must not be empty", nil))
	}

	profileName := resolveMode(req)
	profile := a.Engine.ComposerProfile(profileName)
	if profileName == "budget" && req.BudgetTokens > 0 {
		profile.GlobalLimit = req.BudgetTokens
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	opts := retriever.Options{Limit: limit, AllowHyDE: true, AllowExpand: true}
	if req.CurrentFilePath != "" {
		opts.Project = projectOf(req.CurrentFilePath)
	}

	// Frame paths from a stack trace ride along as extra query tokens,
	// biasing the keyword tier toward the files the failure touched.
	retrievalQuery := req.Text
	if hints := stackPathHints(req.StackTrace, maxStackHints); len(hints) > 0 {
		retrievalQuery = req.Text + " " + strings.Join(hints, " ")
	}

	var extra []types.ContextItem
	if req.CursorContext != "" {
		extra = append(extra, types.ContextItem{
			Content:   req.CursorContext,
			Kind:      types.KindCursor,
			Source:    req.CurrentFilePath,
			TokenCost: composer.EstimateTokens(req.CursorContext),
			DedupKey:  composer.DedupKey(req.CursorContext, req.CurrentFilePath),
		})
	}

	ans, err := a.Engine.AnswerQuery(ctx, retrievalQuery, opts, profile, "", extra...)
	if err != nil {
		a.Health.RecordFailure()
		return QueryResponse{}, MapError(err)
	}
	resp := ans.Response

	switch resp.Status {
	case retriever.StatusEmpty:
		a.Health.RecordSuccess()
		return QueryResponse{
			Query: req.Text, Type: TypeEmpty, Message: "no matching context found",
			Stats: Stats{UsedLatencyMs: time.Since(start).Milliseconds(), SearchMethod: string(resp.QueryType)},
		}, nil
	case retriever.StatusAmbiguous:
		a.Health.RecordSuccess()
		return QueryResponse{
			Query: req.Text, Type: TypeEmpty,
			Message:    "query matches multiple projects; specify one of: " + strings.Join(resp.Projects, ", "),
			TotalFound: len(resp.Projects),
			Stats:      Stats{UsedLatencyMs: time.Since(start).Milliseconds(), SearchMethod: string(resp.QueryType)},
		}, nil
	}

	result := ans.Result

	a.Health.RecordSuccess()
	return QueryResponse{
		Query:      req.Text,
		Context:    ans.Text,
		Type:       responseType(result),
		Pointers:   result.Pointers,
		Chunks:     result.Chunks,
		Entities:   result.Entities,
		TotalFound: len(resp.Candidates),
		Stats: Stats{
			UsedTokens:    ans.Report.CurrentTokens,
			GlobalLimit:   profile.GlobalLimit,
			ItemsCount:    len(result.Chunks) + len(result.Pointers) + len(result.Entities),
			UsedLatencyMs: time.Since(start).Milliseconds(),
			SearchMethod:  string(resp.QueryType),
		},
		Audit: ans.Report.Audit,
		EfficiencyReport: &EfficiencyReport{
			PotentialTokens: ans.Report.PotentialTokens,
			CurrentTokens:   ans.Report.CurrentTokens,
			SavedTokens:     ans.Report.SavedTokens,
			Efficiency:      ans.Report.Efficiency,
			SavedUSD:        ans.Report.SavedUSD,
		},
	}, nil
}

const maxStackHints = 3

// stackFramePattern matches frame paths in a stack trace: Go's
// "/pkg/file.go:123", Python's `File "x.py", line 12`, and generic
// "name.ext:NN" frames. The line-number suffix is mandatory so dotted
// function names ("main.run") don't read as files.
var stackFramePattern = regexp.MustCompile(`([\w./\\-]+\.\w{1,4})(?::\d+|", line \d+)`)

// stackPathHints extracts up to max distinct base filenames (extension
// stripped) from the top frames of a stack trace.
func stackPathHints(trace string, max int) []string {
	if trace == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, m := range stackFramePattern.FindAllStringSubmatch(trace, -1) {
		base := filepath.Base(strings.ReplaceAll(m[1], `\`, "/"))
		if i := strings.LastIndexByte(base, '.'); i > 0 {
			base = base[:i]
		}
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, base)
		if len(out) == max {
			break
		}
	}
	return out
}

// projectOf derives a project pronoun from a file path's parent
// directory name, a light-touch default when the caller doesn't pass
// one explicitly.
func projectOf(path string) string {
	clean := strings.TrimRight(path, "/")
	if i := strings.LastIndexByte(clean, '/'); i >= 0 {
		clean = clean[:i]
	}
	if i := strings.LastIndexByte(clean, '/'); i >= 0 {
		return clean[i+1:]
	}
	return clean
}

// FetchExact serves spec.md §6's Exact-fetch API: validate the path
// and line range, take a read lock, read the file, and report
// staleness if the caller's content_hash no longer matches.
func (a *API) FetchExact(ctx context.Context, req FetchRequest) (FetchResponse, *APIError) {
	abs, err := a.Engine.Roots.SafePath(req.FilePath)
	if err != nil {
		a.Health.RecordFailure()
		return FetchResponse{}, MapError(err)
	}
	if err := validation.SafeRange(req.StartLine, req.EndLine); err != nil {
		a.Health.RecordFailure()
		return FetchResponse{}, MapError(err)
	}

	timeout := time.Duration(a.Engine.Config().Paths.FileLockTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	unlock, err := lockForRead(abs, timeout)
	if err != nil {
		a.Health.RecordFailure()
		return FetchResponse{}, MapError(err)
	}
	defer unlock()

	raw, err := os.ReadFile(abs)
	if err != nil {
		a.Health.RecordFailure()
		if os.IsNotExist(err) {
			return FetchResponse{}, MapError(apierrors.New(apierrors.CodeFileNotFound, "file not found", err))
		}
		return FetchResponse{}, MapError(apierrors.New(apierrors.CodePermissionDenied, "file could not be read", err))
	}

	lines := strings.Split(string(raw), "\n")
	start, end := req.StartLine, req.EndLine
	if end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		start = len(lines)
	}
	var slice []string
	if start >= 1 && start <= end {
		slice = lines[start-1 : end]
	}

	warning := ""
	if req.ContentHash != "" && sha256Hex(string(raw)) != req.ContentHash {
		warning = "stale_pointer"
	}

	a.Health.RecordSuccess()
	return FetchResponse{
		Content: strings.Join(slice, "\n"),
		File:    abs,
		Range:   FetchRange{Start: start, End: end},
		Warning: warning,
	}, nil
}

func sha256Hex(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SubmitJob enqueues a new job via the Job API and broadcasts its
// pending status on the event stream.
func (a *API) SubmitJob(ctx context.Context, req JobSubmitRequest) (JobSubmitResponse, *APIError) {
	if req.Type == "" {
		a.Health.RecordFailure()
		return JobSubmitResponse{}, MapError(apierrors.New(apierrors.CodeInvalidInput, "job type must not be empty", nil))
	}
	priority := req.Priority
	if priority <= 0 {
		priority = 5
	}
	id, err := a.Engine.Jobs.Submit(ctx, req.Type, req.Params, priority)
	if err != nil {
		a.Health.RecordFailure()
		return JobSubmitResponse{}, MapError(err)
	}
	a.Health.RecordSuccess()
	a.Broadcaster.NotifyJobUpdate(id, string(types.JobPending), 0, "")
	return JobSubmitResponse{ID: id, Status: string(types.JobPending)}, nil
}

// GetJob serves the Job API's GET /jobs/{id}.
func (a *API) GetJob(ctx context.Context, id string) (JobRecord, *APIError) {
	job, err := a.Engine.Jobs.Get(ctx, id)
	if err != nil {
		a.Health.RecordFailure()
		return JobRecord{}, MapError(err)
	}
	a.Health.RecordSuccess()
	return toJobRecord(job), nil
}

// CancelJob serves the Job API's DELETE /jobs/{id}.
func (a *API) CancelJob(ctx context.Context, id string) (JobCancelResponse, *APIError) {
	if _, err := a.Engine.Jobs.Cancel(ctx, id); err != nil {
		a.Health.RecordFailure()
		return JobCancelResponse{}, MapError(err)
	}
	a.Health.RecordSuccess()
	a.Broadcaster.NotifyJobUpdate(id, string(types.JobCancelled), 0, "")
	return JobCancelResponse{Status: string(types.JobCancelled)}, nil
}

// HealthSnapshot reports the live health metric from spec.md §7.
func (a *API) HealthSnapshot() HealthResponse {
	return a.Health.Snapshot()
}

func toJobRecord(job *types.Job) JobRecord {
	rec := JobRecord{
		ID: job.ID, Type: job.Type, Status: string(job.Status), Priority: job.Priority,
		Params: job.Params, Result: job.Result, Error: job.Error, Progress: job.Progress,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	if job.StartedAt != nil {
		rec.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		rec.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return rec
}
