// Package engine wires every component — stores, retriever, classifier,
// composer, ingestor, job queue, watcher, and the proactive-analysis
// plugin — into a single explicit struct, constructed once at startup.
// This replaces the source's lazily-initialized global singletons
// (spec.md §9's note that the Go port should prefer one struct with
// explicit handles over package-level state) with ordinary dependency
// injection.
//
// Grounded on the teacher's internal/search/engine.go: its Engine
// struct plus EngineOption functional-options constructor, generalized
// here from "wire search-only dependencies" to "wire the whole system".
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mnemo-dev/mnemo/internal/analysis"
	"github.com/mnemo-dev/mnemo/internal/archive"
	"github.com/mnemo-dev/mnemo/internal/classifier"
	"github.com/mnemo-dev/mnemo/internal/composer"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/fastpath"
	"github.com/mnemo-dev/mnemo/internal/ingestor"
	"github.com/mnemo-dev/mnemo/internal/jobqueue"
	"github.com/mnemo-dev/mnemo/internal/llm"
	"github.com/mnemo-dev/mnemo/internal/retriever"
	"github.com/mnemo-dev/mnemo/internal/stemmer"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/types"
	"github.com/mnemo-dev/mnemo/internal/validation"
	"github.com/mnemo-dev/mnemo/internal/watcher"
)

const (
	metadataDBFile = "metadata.db"
	vectorDir      = "store"
	archiveFile    = "archive.jsonl"
	jobsDBFile     = "jobs.db"
	hydeCacheFile  = "cache/hyde_cache.json"

	defaultPollInterval  = time.Second
	warmupSampleSize     = 500
	stuckJobMaxAge       = 30 * time.Minute
	jobTypeIngest        = "ingest"
	jobTypeIngestBatch   = "ingest_batch"
	jobTypeProactiveAnal = "proactive_analysis"
	jobTypeTest          = "test_job"
)

// Engine owns every long-lived component of one project's memory store.
// All fields are safe for concurrent use by multiple goroutines; the
// individual components handle their own internal locking.
type Engine struct {
	cfg     *config.Config
	dataDir string

	Meta     *store.MetadataStore
	Vectors  *store.VectorStore
	FastPath *fastpath.Index
	Archive  *archive.Log
	Embedder embed.Embedder
	LLM      llm.Client
	Roots    *validation.Roots

	Retriever  *retriever.Retriever
	Classifier *classifier.Classifier
	Ingestor   *ingestor.Ingestor
	Analysis   analysis.Analyzer

	Jobs   *jobqueue.Queue
	worker *jobqueue.Worker

	ledger *composer.Ledger

	blacklist    []string
	onSuggestion func(notification analysis.Notification)

	watchers map[string]*watcher.Watcher

	mu       sync.RWMutex
	projects map[string]struct{}

	closeOnce sync.Once
}

// Option configures an Engine during construction, following the
// teacher's EngineOption pattern.
type Option func(*buildState)

// buildState accumulates overrides applied before components are wired
// together; it exists so options can be supplied in any order without
// the constructor needing partially-built components to already exist.
type buildState struct {
	embedder     embed.Embedder
	llmClient    llm.Client
	accel        fastpath.Accelerator
	blacklist    []string
	pollPeriod   time.Duration
	onSuggestion func(analysis.Notification)
}

// WithSuggestionHandler registers a callback invoked with every
// proactive-analysis Notification as it's produced, e.g. so the API
// layer can fan it out over its Broadcaster without engine importing
// the api package.
func WithSuggestionHandler(fn func(analysis.Notification)) Option {
	return func(b *buildState) { b.onSuggestion = fn }
}

// WithEmbedder overrides the default HashEmbedder, e.g. with an
// embed.OpenAIEmbedder for production deployments.
func WithEmbedder(e embed.Embedder) Option {
	return func(b *buildState) { b.embedder = e }
}

// WithLLMClient overrides the default (Fake or env-detected OpenAI)
// client, e.g. to inject a test double.
func WithLLMClient(c llm.Client) Option {
	return func(b *buildState) { b.llmClient = c }
}

// WithAccelerator overrides FastPath's native accelerator. Pass nil
// explicitly to disable acceleration even when purego can load libc.
func WithAccelerator(a fastpath.Accelerator) Option {
	return func(b *buildState) { b.accel = a }
}

// WithBlacklist sets additional filename-glob patterns the Ingestor
// and Watcher should skip, beyond the default noise-directory list.
func WithBlacklist(patterns []string) Option {
	return func(b *buildState) { b.blacklist = patterns }
}

// SetSuggestionHandler registers fn to receive every proactive-analysis
// Notification produced from here on, replacing any handler set via
// WithSuggestionHandler or a prior call. Safe to call after New, since
// the API layer wraps an already-constructed Engine.
func (e *Engine) SetSuggestionHandler(fn func(analysis.Notification)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSuggestion = fn
}

// defaultEmbedder builds the embedder WithEmbedder didn't override,
// honoring cfg.Embedding.Provider. Falls back to the zero-dependency
// HashEmbedder when the provider is "hash" or its API key env var is
// unset, so a misconfigured deployment degrades instead of failing to
// start.
func defaultEmbedder(cfg config.EmbeddingConfig) embed.Embedder {
	if cfg.Provider != "openai" {
		return embed.NewHashEmbedder()
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		slog.Warn("embedding_openai_api_key_missing", slog.String("env_var", cfg.APIKeyEnv))
		return embed.NewHashEmbedder()
	}
	return embed.NewOpenAIEmbedder(apiKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
}

// WithPollInterval overrides the job queue worker's poll period.
func WithPollInterval(d time.Duration) Option {
	return func(b *buildState) { b.pollPeriod = d }
}

// New builds an Engine rooted at projectDir, laying out its data
// directory as spec.md §6 describes it: <data_dir>/metadata.db,
// <data_dir>/store/, <data_dir>/archive.jsonl, <data_dir>/jobs.db, and
// <data_dir>/cache/hyde_cache.json.
func New(cfg *config.Config, projectDir string, opts ...Option) (*Engine, error) {
	b := &buildState{}
	for _, o := range opts {
		o(b)
	}

	absProject, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	dataDir := cfg.Paths.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(absProject, dataDir)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "cache"), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	meta, err := store.NewMetadataStoreWithBackend(filepath.Join(dataDir, metadataDBFile), cfg.Search.BM25Backend)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	embedder := b.embedder
	if embedder == nil {
		embedder = defaultEmbedder(cfg.Embedding)
	}

	vectorPath := filepath.Join(dataDir, vectorDir)
	dims := embedder.Dimensions()
	if onDisk, err := store.ReadVectorStoreDimensions(vectorPath); err == nil && onDisk > 0 {
		dims = onDisk
	}
	vectors, err := store.NewVectorStore(store.VectorConfig{Dimensions: dims})
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	if err := vectors.Load(vectorPath); err != nil {
		slog.Warn("vector_store_load_skipped", slog.String("error", err.Error()))
	}

	archiveLog, err := archive.Open(filepath.Join(dataDir, archiveFile))
	if err != nil {
		meta.Close()
		vectors.Close()
		return nil, fmt.Errorf("open archive log: %w", err)
	}

	accel := b.accel
	if accel == nil {
		accel = fastpath.NewPuregoAccelerator()
	}
	fp := fastpath.New(accel)

	llmClient := b.llmClient
	if llmClient == nil {
		llmClient = defaultLLMClient(filepath.Join(dataDir, hydeCacheFile))
	}

	roots := validation.NewRoots(append([]string{absProject}, cfg.Paths.AllowedRoots...)...)

	jobs, err := jobqueue.Open(filepath.Join(dataDir, jobsDBFile))
	if err != nil {
		meta.Close()
		vectors.Close()
		archiveLog.Close()
		return nil, fmt.Errorf("open job queue: %w", err)
	}
	if n, err := jobs.RecoverStuck(context.Background(), stuckJobMaxAge); err != nil {
		slog.Warn("jobqueue_recover_stuck_failed", slog.String("error", err.Error()))
	} else if n > 0 {
		slog.Info("jobqueue_recovered_stuck_jobs", slog.Int64("count", n))
	}

	e := &Engine{
		cfg:          cfg,
		dataDir:      dataDir,
		Meta:         meta,
		Vectors:      vectors,
		FastPath:     fp,
		Archive:      archiveLog,
		Embedder:     embedder,
		LLM:          llmClient,
		Roots:        roots,
		Jobs:         jobs,
		ledger:       composer.NewLedger(archiveLog),
		blacklist:    b.blacklist,
		onSuggestion: b.onSuggestion,
		watchers:     make(map[string]*watcher.Watcher),
		projects:     make(map[string]struct{}),
	}

	weights := retriever.Weights{
		TemporalBaseWeight: cfg.Retriever.TemporalBaseWeight, TemporalRecencyWeight: cfg.Retriever.TemporalRecencyWeight,
		PathBoostHigh: cfg.Retriever.PathBoostHigh, PathBoostMedium: cfg.Retriever.PathBoostMedium, PathBoostArchive: cfg.Retriever.PathBoostArchive,
		RecencyBoost48h: cfg.Retriever.RecencyBoost48h, RecencyBoostWeek: cfg.Retriever.RecencyBoostWeek,
	}
	e.Retriever = retriever.New(fp, meta, vectors, embedder, llmClient, e.KnownProjects, weights)
	e.Classifier = classifier.New(roots)

	stemMode := stemmer.Aggressive
	if cfg.Stemmer.DefaultMode == string(stemmer.Conservative) {
		stemMode = stemmer.Conservative
	}
	e.Ingestor = ingestor.New(meta, vectors, fp, embedder, archiveLog, jobs, stemMode, cfg.Analysis.Enabled, b.blacklist)
	e.Analysis = analysis.New(e.Retriever, llmClient)

	poll := b.pollPeriod
	if poll <= 0 {
		poll = defaultPollInterval
	}
	e.worker = jobqueue.NewWorker(jobs, poll)
	e.registerHandlers()

	go e.warmup(context.Background())

	return e, nil
}

// defaultLLMClient builds a Fake client unless OPENAI_API_KEY is set,
// in which case it builds an OpenAI-backed client wrapped in a
// file-memoized HyDE cache, per spec.md §4.11's cache/hyde_cache.json.
func defaultLLMClient(cachePath string) llm.Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return llm.NewFake()
	}
	model := os.Getenv("MNEMO_LLM_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	base := llm.NewOpenAIClient(apiKey, os.Getenv("OPENAI_BASE_URL"), model)
	return llm.NewFileMemo(base, cachePath)
}

// warmup runs FastPath.Warmup once in the background so the Engine's
// constructor never blocks startup on a population pass (spec.md §5).
func (e *Engine) warmup(ctx context.Context) {
	if err := fastpath.Warmup(ctx, e.FastPath, e.Meta, warmupSampleSize); err != nil {
		slog.Warn("fastpath_warmup_failed", slog.String("error", err.Error()))
	}
}

// registerHandlers binds every job type the Engine understands to the
// Worker's dispatch table.
func (e *Engine) registerHandlers() {
	e.worker.Register(jobTypeIngest, e.handleIngest)
	e.worker.Register(jobTypeIngestBatch, e.handleIngestBatch)
	e.worker.Register(jobTypeProactiveAnal, e.handleProactiveAnalysis)
	e.worker.Register(jobTypeTest, e.handleTestJob)
}

func (e *Engine) handleIngest(ctx context.Context, job *jobqueue.JobView) (string, error) {
	path, _ := job.Params["path"].(string)
	project, _ := job.Params["project"].(string)
	if path == "" {
		return "", fmt.Errorf("ingest job missing path")
	}
	if err := e.Ingestor.IngestFile(ctx, path, project); err != nil {
		return "", err
	}
	e.RegisterProject(project)
	_ = job.Progress(ctx, 100)
	return fmt.Sprintf("ingested %s", path), nil
}

func (e *Engine) handleIngestBatch(ctx context.Context, job *jobqueue.JobView) (string, error) {
	paths := stringSlice(job.Params["paths"])
	project, _ := job.Params["project"].(string)
	if len(paths) == 0 {
		return "", fmt.Errorf("ingest_batch job missing paths")
	}

	var failed int
	for i, p := range paths {
		if err := e.Ingestor.IngestFile(ctx, p, project); err != nil {
			failed++
			slog.Error("ingest_batch_file_failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		_ = job.Progress(ctx, (i+1)*100/len(paths))
	}
	e.RegisterProject(project)
	return fmt.Sprintf("ingested %d/%d files (%d failed)", len(paths)-failed, len(paths), failed), nil
}

func (e *Engine) handleProactiveAnalysis(ctx context.Context, job *jobqueue.JobView) (string, error) {
	path, _ := job.Params["path"].(string)
	project, _ := job.Params["project"].(string)
	if path == "" {
		return "", fmt.Errorf("proactive_analysis job missing path")
	}

	notes, err := e.Analysis.AnalyzeIngest(ctx, []string{path}, project)
	if err != nil {
		return "", err
	}
	e.mu.RLock()
	onSuggestion := e.onSuggestion
	e.mu.RUnlock()
	for _, n := range notes {
		if e.Archive != nil {
			_ = e.Archive.Append(archive.EventEntitySaved, map[string]any{
				"type": n.Type, "file": n.FilePath, "explanation": n.Explanation, "suggestion": n.Suggestion,
			})
		}
		if onSuggestion != nil {
			onSuggestion(n)
		}
	}
	_ = job.Progress(ctx, 100)
	return fmt.Sprintf("%d notification(s)", len(notes)), nil
}

// handleTestJob exists purely so deployments can verify the queue and
// worker are wired end to end without touching real ingest state.
func (e *Engine) handleTestJob(ctx context.Context, job *jobqueue.JobView) (string, error) {
	_ = job.Progress(ctx, 100)
	return "ok", nil
}

func stringSlice(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// RegisterProject records project as known so ambiguous queries
// (spec.md §4.7's project-pronoun handling) can list real candidates.
// A blank project is a no-op.
func (e *Engine) RegisterProject(project string) {
	if project == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.projects[project] = struct{}{}
}

// KnownProjects returns every project RegisterProject has seen, in no
// particular order. Passed to retriever.New as its ambiguity source.
func (e *Engine) KnownProjects() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.projects))
	for p := range e.projects {
		out = append(out, p)
	}
	return out
}

// Config returns the Engine's configuration, for callers (e.g.
// internal/api) that need settings beyond what Engine's own methods
// expose, such as the file-lock timeout.
func (e *Engine) Config() *config.Config { return e.cfg }

// Ask runs a retrieval query end to end: fan-out retrieval, then
// classification into chunks/pointers/entities.
func (e *Engine) Ask(ctx context.Context, query string, opts retriever.Options) (retriever.Response, classifier.Result) {
	resp := e.Retriever.Ask(ctx, query, opts)
	if resp.Status != retriever.StatusOK {
		return resp, classifier.Result{}
	}
	return resp, e.Classifier.Classify(query, resp.Candidates, resp.IsTemporal)
}

// ComposerProfile resolves a named composer profile from config
// (falling back to "default" when unknown) into the composer's own
// Profile shape, so callers can tweak it (e.g. budget mode overriding
// GlobalLimit) before composing.
func (e *Engine) ComposerProfile(name string) composer.Profile {
	p := e.cfg.Profile(name)
	return composer.Profile{
		GlobalLimit: p.GlobalLimit, BriefingLimit: p.BriefingLimit,
		EntitiesLimit: p.EntitiesLimit, ChunksLimit: p.ChunksLimit,
		RecentChangesLimit: p.RecentChangesLimit, FileMaxChunks: p.FileMaxChunks,
		FileMaxTokens: p.FileMaxTokens, ChunkHardCap: p.ChunkHardCap,
		MinUniqueFiles: p.MinUniqueFiles,
	}
}

// Compose renders items into a token-budgeted context string.
func (e *Engine) Compose(items []types.ContextItem, profile composer.Profile, model string) (string, composer.Report) {
	return composer.Compose(items, profile, model, e.cfg.PricePerMillion)
}

// BuildContextItems converts one Classifier Result into the
// types.ContextItem slice the Composer consumes: chunks render
// verbatim, pointers render through composer.RenderPointer (spec.md
// §4.9 step 4), and entities carry their content directly.
func BuildContextItems(result classifier.Result) []types.ContextItem {
	items := make([]types.ContextItem, 0, len(result.Chunks)+len(result.Pointers)+len(result.Entities))
	for _, c := range result.Chunks {
		content := c.Content
		items = append(items, types.ContextItem{
			Content: content, Kind: types.KindChunk, Source: c.SourcePath,
			UtilityScore: c.UtilityScore, TokenCost: composer.EstimateTokens(content),
			DedupKey: composer.DedupKey(content, c.SourcePath),
		})
	}
	for _, p := range result.Pointers {
		content := composer.RenderPointer(p)
		items = append(items, types.ContextItem{
			Content: content, Kind: types.KindPointer, Source: p.FilePath,
			UtilityScore: p.Confidence, TokenCost: composer.EstimateTokens(content),
			DedupKey: composer.DedupKey(content, p.FilePath),
		})
	}
	for _, e := range result.Entities {
		items = append(items, types.ContextItem{
			Content: e.Content, Kind: types.KindEntity, Source: e.SourcePath,
			UtilityScore: e.UtilityScore, TokenCost: composer.EstimateTokens(e.Content),
			DedupKey: composer.DedupKey(e.Content, e.SourcePath),
		})
	}
	return items
}

// Answer is AnswerQuery's result: the rendered context text, the
// Composer's efficiency report, and the intermediate Retriever and
// Classifier outputs for callers that shape a richer response body.
type Answer struct {
	Text     string
	Report   composer.Report
	Response retriever.Response
	Result   classifier.Result
}

// AnswerQuery runs the full retrieve -> classify -> compose pipeline
// (spec.md §4's end-to-end query path). extra items (e.g. the caller's
// cursor-context snippet) are composed alongside the retrieval results.
func (e *Engine) AnswerQuery(ctx context.Context, query string, opts retriever.Options, profile composer.Profile, model string, extra ...types.ContextItem) (Answer, error) {
	resp, result := e.Ask(ctx, query, opts)
	if resp.Status != retriever.StatusOK {
		return Answer{Response: resp}, nil
	}
	items := append(extra, BuildContextItems(result)...)
	text, report := e.Compose(items, profile, model)
	if err := e.ledger.Record(ctx, query, report); err != nil {
		slog.Warn("ledger_record_failed", slog.String("error", err.Error()))
	}
	return Answer{Text: text, Report: report, Response: resp, Result: result}, nil
}

// IngestPath submits an ingest (single file) or ingest_batch (directory
// scan) job for root, returning the new job's ID. Ingestion itself
// always runs on the Worker's goroutine, never inline on the caller.
func (e *Engine) IngestPath(ctx context.Context, root, project string, priority int) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return e.Jobs.Submit(ctx, jobTypeIngest, map[string]any{"path": root, "project": project}, priority)
	}
	paths, err := ingestor.Scan(root, e.blacklist)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", root, err)
	}
	return e.Jobs.Submit(ctx, jobTypeIngestBatch, map[string]any{"paths": paths, "project": project}, priority)
}

// RebuildFromArchive implements spec.md §8 invariant 8's disaster
// recovery path: wipe the Metadata and Vector stores, then replay
// archive.jsonl, re-ingesting every file_processed path from disk
// (the archive records paths and counts, not full content, so the
// source tree must still be present) and reapplying every
// decision_superseded mutation. Returns the number of archive events
// applied. Never running concurrently with ingestion is the caller's
// responsibility.
func (e *Engine) RebuildFromArchive(ctx context.Context) (int, error) {
	if err := e.Meta.WipeAll(ctx); err != nil {
		return 0, fmt.Errorf("wipe metadata store: %w", err)
	}
	if err := e.Vectors.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clear vector store: %w", err)
	}

	applied := 0
	path := filepath.Join(e.dataDir, archiveFile)
	apply := func(ev archive.Event) error {
		switch ev.Type {
		case archive.EventFileProcessed:
			srcPath, _ := ev.Payload["path"].(string)
			project, _ := ev.Payload["project"].(string)
			if srcPath == "" {
				return nil
			}
			if _, statErr := os.Stat(srcPath); statErr != nil {
				slog.Warn("rebuild_skip_missing_file", slog.String("path", srcPath))
				return nil
			}
			if err := e.Ingestor.IngestFile(ctx, srcPath, project); err != nil {
				return fmt.Errorf("reingest %s: %w", srcPath, err)
			}
		case archive.EventDecisionSuperseded:
			oldID, _ := ev.Payload["old_id"].(string)
			newID, _ := ev.Payload["new_id"].(string)
			newText, _ := ev.Payload["new_text"].(string)
			project, _ := ev.Payload["project"].(string)
			filePath, _ := ev.Payload["file_path"].(string)
			validFromStr, _ := ev.Payload["valid_from"].(string)
			if oldID == "" || newID == "" {
				return nil
			}
			validFrom, parseErr := time.Parse("2006-01-02", validFromStr)
			if parseErr != nil {
				validFrom = ev.Timestamp
			}
			if err := e.Meta.SupersedeDecision(ctx, oldID, newID, newText, project, filePath, validFrom); err != nil {
				return fmt.Errorf("replay supersede %s->%s: %w", oldID, newID, err)
			}
		}
		applied++
		return nil
	}
	// Read the whole archive before applying anything: re-ingesting a
	// file appends a new file_processed event to this same archive.
	var events []archive.Event
	err := archive.Replay(path, func(ev archive.Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return applied, fmt.Errorf("replay archive: %w", err)
	}
	for _, ev := range events {
		if err := apply(ev); err != nil {
			return applied, fmt.Errorf("replay archive: %w", err)
		}
	}
	return applied, nil
}

// StartWorker launches the job queue's poll loop in its own goroutine.
func (e *Engine) StartWorker(ctx context.Context) {
	go e.worker.Run(ctx)
}

// StopWorker signals the poll loop to exit, waiting up to its shutdown
// budget for the in-flight job to finish.
func (e *Engine) StopWorker() {
	e.worker.Stop()
}

// Watch starts a debounced filesystem watcher over root under name
// (typically the project name), submitting ingest_batch jobs through
// the Engine's own queue rather than ingesting inline.
func (e *Engine) Watch(ctx context.Context, name, root, project string) error {
	opts := watcher.Options{
		DebounceWindow: time.Duration(e.cfg.Watcher.DebounceSeconds) * time.Second,
		MaxBatchSize:   e.cfg.Watcher.MaxBatchSize,
		Project:        project,
		Blacklist:      e.blacklist,
	}
	w, err := watcher.New(e.Jobs, opts)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	e.mu.Lock()
	e.watchers[name] = w
	e.mu.Unlock()
	e.RegisterProject(project)

	return w.Start(ctx, root)
}

// StopWatch stops the named watcher started by Watch, if any.
func (e *Engine) StopWatch(name string) {
	e.mu.Lock()
	w, ok := e.watchers[name]
	delete(e.watchers, name)
	e.mu.Unlock()
	if ok {
		w.Stop()
	}
}

// Close releases every underlying resource. Safe to call more than
// once; only the first call does any work.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		for name, w := range e.watchers {
			w.Stop()
			delete(e.watchers, name)
		}
		e.mu.Unlock()

		e.StopWorker()

		if saveErr := e.Vectors.Save(filepath.Join(e.dataDir, vectorDir)); saveErr != nil {
			slog.Warn("vector_store_save_failed", slog.String("error", saveErr.Error()))
		}
		if closeErr := e.Jobs.Close(); closeErr != nil {
			err = closeErr
		}
		if closeErr := e.Archive.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if closeErr := e.Vectors.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if closeErr := e.Meta.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
