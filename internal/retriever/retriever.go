// Package retriever implements the Oracle (spec.md §4.7): the single
// ask(query) entry point that fuses FastPath, FTS, and vector hits into
// a ranked candidate list for the Classifier. Grounded on the teacher's
// internal/search/engine.go — its parallelSearch errgroup fan-out,
// ApplyPathBoost/ApplyTestFilePenalty boost-then-resort pattern, and
// classifyQueryType keyword-set classification — generalized from code
// search to mnemo's hybrid code+notes retrieval.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/fastpath"
	"github.com/mnemo-dev/mnemo/internal/llm"
	"github.com/mnemo-dev/mnemo/internal/stemmer"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/types"
)

// Status reports how an Ask call terminated.
type Status string

const (
	StatusOK        Status = "ok"
	StatusEmpty     Status = "empty"
	StatusAmbiguous Status = "ambiguous"
)

// Response is the Retriever's single return shape.
type Response struct {
	Status     Status
	Candidates []types.Candidate
	IsTemporal bool
	QueryType  types.QueryType
	Advisory   string
	Projects   []string // populated only when Status == StatusAmbiguous
}

// Options configures one Ask call.
type Options struct {
	Project     string
	Limit       int
	AllowHyDE   bool
	AllowExpand bool
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	return o
}

const (
	maxExpansions             = 3
	minCandidatesForWiderPass = 5
	vectorMaxRetries          = 3
)

var (
	aggregationMarkers = []string{"list", "all", "every", "count", "how many", "total", "summary"}
	semanticMarkers    = []string{"explain", "how", "why", "overview", "architecture", "design", "concept", "meaning", "principle"}
	temporalMarkers    = []string{"recent", "latest", "today", "status", "log", "update"}
	projectPronouns    = []string{"this project", "this repo", "this codebase", "our project"}
)

// Weights holds the scoring constants spec.md §4.7 step 7 / §9 specify.
// The zero value is invalid; use DefaultWeights or a config-populated
// Weights whose fields all come from the same spec.md §9 table (§9
// allows the table to be config-driven, but warns not to retune the
// values themselves without measurement, so every caller should set
// these from config rather than hand-picking new numbers).
type Weights struct {
	TemporalBaseWeight, TemporalRecencyWeight        float64
	PathBoostHigh, PathBoostMedium, PathBoostArchive float64
	RecencyBoost48h, RecencyBoostWeek                float64
}

// DefaultWeights reproduces spec.md §4.7 step 7's constants verbatim.
func DefaultWeights() Weights {
	return Weights{
		TemporalBaseWeight: 0.3, TemporalRecencyWeight: 0.7,
		PathBoostHigh: 0.5, PathBoostMedium: 0.2, PathBoostArchive: -0.3,
		RecencyBoost48h: 1.0, RecencyBoostWeek: 0.5,
	}
}

// Retriever is the Oracle. Its Ask calls are serialized behind a single
// global mutex per spec.md §5's "single global mutex around ask()"
// scheduling model; fan-out within one call is still concurrent.
type Retriever struct {
	mu sync.Mutex

	fastpath *fastpath.Index
	meta     *store.MetadataStore
	vectors  *store.VectorStore
	embedder embed.Embedder
	llmc     llm.Client
	weights  Weights

	knownProjects func() []string
}

// New wires a Retriever over its dependencies. knownProjects, when
// non-nil, is consulted for the ambiguity-handling path. A zero
// Weights is replaced with DefaultWeights so existing callers that
// don't pass one keep spec.md's verbatim constants.
func New(fp *fastpath.Index, meta *store.MetadataStore, vectors *store.VectorStore, embedder embed.Embedder, llmc llm.Client, knownProjects func() []string, weights ...Weights) *Retriever {
	w := DefaultWeights()
	if len(weights) > 0 && weights[0] != (Weights{}) {
		w = weights[0]
	}
	return &Retriever{
		fastpath:      fp,
		meta:          meta,
		vectors:       vectors,
		embedder:      embedder,
		llmc:          llmc,
		weights:       w,
		knownProjects: knownProjects,
	}
}

// Ask implements spec.md §4.7's pipeline. It never returns an error to
// the caller — all failure is encoded into Response.Status.
func (r *Retriever) Ask(ctx context.Context, query string, opts Options) Response {
	opts = opts.withDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Tier 0 — FastPath.
	if hit, ok := r.fastpath.Search(query); ok && hit.Confidence >= 0.9 {
		return Response{
			Status:     StatusOK,
			Candidates: []types.Candidate{hit.Candidate},
			QueryType:  types.QueryLookup,
		}
	}

	queryType := classify(query)
	isTemporal := hasTemporalMarker(query)

	variations := []string{query}
	if opts.AllowExpand && queryType == types.QuerySemantic && r.llmc != nil {
		if extra, err := r.llmc.Expand(ctx, query, maxExpansions); err == nil {
			variations = append(variations, extra...)
		} else {
			slog.Warn("query_expand_failed", slog.String("error", err.Error()))
		}
	}

	var all []types.Candidate
	var anyTierSucceeded bool
	for _, q := range variations {
		cands, ok := r.retrieveOne(ctx, q, opts, isTemporal)
		if ok {
			anyTierSucceeded = true
		}
		all = append(all, cands...)
	}

	if len(all) < minCandidatesForWiderPass {
		stemmed := store.StemQuery(query, stemmer.Aggressive)
		if hits, err := r.meta.SearchFTS(ctx, stemmed, opts.Project, opts.Limit*4, store.ModeOr); err == nil {
			anyTierSucceeded = true
			all = append(all, toKeywordCandidates(hits, 0.5)...)
		}
	}

	if !anyTierSucceeded {
		return Response{Status: StatusEmpty, Advisory: "all retrieval tiers failed; try again shortly", QueryType: queryType, IsTemporal: isTemporal}
	}

	scored := r.score(all, isTemporal)
	deduped := dedup(scored)

	if len(deduped) == 0 {
		if containsProjectPronoun(query) && r.knownProjects != nil {
			if projects := r.knownProjects(); len(projects) > 1 {
				return Response{Status: StatusAmbiguous, Projects: projects, QueryType: queryType, IsTemporal: isTemporal}
			}
		}
		return Response{Status: StatusEmpty, Advisory: "no matching content found", QueryType: queryType, IsTemporal: isTemporal}
	}

	sort.Slice(deduped, func(i, j int) bool { return deduped[i].UtilityScore > deduped[j].UtilityScore })

	return Response{Status: StatusOK, Candidates: deduped, QueryType: queryType, IsTemporal: isTemporal}
}

// retrieveOne runs step 5's parallel vector+keyword fan-out for one
// query variation. ok is false only when both tiers failed.
func (r *Retriever) retrieveOne(ctx context.Context, q string, opts Options, isTemporal bool) ([]types.Candidate, bool) {
	var vecCands, kwCands, entCands []types.Candidate
	var vecErr, kwErr, entErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vecCands, vecErr = r.vectorSearch(gctx, q, opts)
		return nil // degrade individually, never fail the group
	})
	g.Go(func() error {
		kwCands, kwErr = r.keywordSearch(gctx, q, opts)
		return nil
	})
	g.Go(func() error {
		entCands, entErr = r.entitySearch(gctx, q, opts)
		return nil
	})
	_ = g.Wait()

	if vecErr != nil {
		slog.Warn("vector_tier_degraded", slog.String("error", vecErr.Error()))
	}
	if kwErr != nil {
		slog.Warn("keyword_tier_degraded", slog.String("error", kwErr.Error()))
	}
	if entErr != nil {
		slog.Warn("entity_tier_degraded", slog.String("error", entErr.Error()))
	}

	out := append(vecCands, kwCands...)
	out = append(out, entCands...)
	return out, vecErr == nil || kwErr == nil || entErr == nil
}

// entitySearch is the LIKE-based substring fallback over the Metadata
// Store's entities table (spec.md §4.4 search_entities); hits are
// tagged types.MethodEntity so the Classifier routes them straight to
// its entities output, unchanged, per spec.md §4.8 rule 1.
func (r *Retriever) entitySearch(ctx context.Context, q string, opts Options) ([]types.Candidate, error) {
	entities, err := r.meta.SearchEntities(ctx, q, "", opts.Project, opts.Limit)
	if err != nil {
		return nil, err
	}
	cands := make([]types.Candidate, 0, len(entities))
	for _, e := range entities {
		cands = append(cands, types.Candidate{
			ID:         e.ID,
			Content:    e.Content,
			SourcePath: e.FilePath,
			BaseScore:  0.9,
			Method:     []types.Method{types.MethodEntity},
		})
	}
	return cands, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, q string, opts Options) ([]types.Candidate, error) {
	if r.embedder == nil || r.vectors == nil {
		return nil, errors.New("embedding unavailable")
	}

	queryText := q
	if opts.AllowHyDE && r.llmc != nil {
		if doc, err := r.llmc.Hypothesize(ctx, q); err == nil {
			queryText = doc
		}
	}

	var vector []float32
	var err error
	backoff := time.Second
	for attempt := 0; attempt < vectorMaxRetries; attempt++ {
		vector, err = r.embedder.Embed(ctx, queryText)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
	if err != nil {
		return nil, err
	}

	results, err := r.vectors.Search(ctx, vector, opts.Limit*4, store.WhereProject(opts.Project))
	if err != nil {
		return nil, err
	}

	cands := make([]types.Candidate, 0, len(results))
	for _, res := range results {
		cands = append(cands, types.Candidate{
			ID:           res.ID,
			Content:      res.Doc,
			SourcePath:   res.Meta.Source,
			StartLine:    res.Meta.StartLine,
			EndLine:      res.Meta.EndLine,
			ContentHash:  res.Meta.ContentHash,
			IndexedAt:    res.Meta.IndexedAt,
			LastModified: res.Meta.IndexedAt,
			BaseScore:    res.Score,
			Method:       []types.Method{types.MethodVector},
		})
	}
	return cands, nil
}

func (r *Retriever) keywordSearch(ctx context.Context, q string, opts Options) ([]types.Candidate, error) {
	stemmed := store.StemQuery(q, stemmer.Aggressive)
	hits, err := r.meta.SearchFTS(ctx, stemmed, opts.Project, opts.Limit*4, store.ModeAnd)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		hits, err = r.meta.SearchFTS(ctx, stemmed, opts.Project, opts.Limit*4, store.ModeOr)
		if err != nil {
			return nil, err
		}
		return toKeywordCandidates(hits, 0.5), nil
	}
	return toKeywordCandidates(hits, 0.7), nil
}

func toKeywordCandidates(hits []store.FTSHit, baseScore float64) []types.Candidate {
	cands := make([]types.Candidate, 0, len(hits))
	for _, h := range hits {
		cands = append(cands, types.Candidate{
			ID:         fmt.Sprintf("%s#%d-%d", h.Path, h.StartLine, h.EndLine),
			Content:    h.Content,
			SourcePath: h.Path,
			StartLine:  h.StartLine,
			EndLine:    h.EndLine,
			BaseScore:  baseScore,
			Method:     []types.Method{types.MethodKeyword},
		})
	}
	return cands
}

func classify(query string) types.QueryType {
	lower := strings.ToLower(query)
	for _, m := range aggregationMarkers {
		if strings.Contains(lower, m) {
			return types.QueryAggregation
		}
	}
	for _, m := range semanticMarkers {
		if strings.Contains(lower, m) {
			return types.QuerySemantic
		}
	}
	return types.QueryLookup
}

func hasTemporalMarker(query string) bool {
	lower := strings.ToLower(query)
	for _, m := range temporalMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	// "v<digit>" version markers, e.g. "v2".
	for i := 0; i+1 < len(lower); i++ {
		if lower[i] == 'v' && lower[i+1] >= '0' && lower[i+1] <= '9' {
			return true
		}
	}
	return false
}

func containsProjectPronoun(query string) bool {
	lower := strings.ToLower(query)
	for _, p := range projectPronouns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

var highPriorityPaths = []string{"current_status", "status", "todo", "development_log", "log.md"}
var medPriorityPaths = []string{"tasks.md", "vision.md", "readme"}
var archiveMarkers = []string{"archive", "old"}

func (r *Retriever) pathBoost(sourcePath string) float64 {
	lower := strings.ToLower(sourcePath)
	for _, p := range highPriorityPaths {
		if strings.Contains(lower, p) {
			return r.weights.PathBoostHigh
		}
	}
	for _, p := range medPriorityPaths {
		if strings.Contains(lower, p) {
			return r.weights.PathBoostMedium
		}
	}
	for _, p := range archiveMarkers {
		if strings.Contains(lower, p) {
			return r.weights.PathBoostArchive
		}
	}
	return 0
}

func (r *Retriever) recencyBoost(lastModified time.Time) float64 {
	age := time.Since(lastModified)
	switch {
	case age < 48*time.Hour:
		return r.weights.RecencyBoost48h
	case age < 7*24*time.Hour:
		return r.weights.RecencyBoostWeek
	default:
		return 0
	}
}

// score computes utility_score in place for every candidate per
// spec.md §4.7 step 7, then returns the slice (re-sort happens in Ask).
func (r *Retriever) score(cands []types.Candidate, isTemporal bool) []types.Candidate {
	for i := range cands {
		c := &cands[i]
		pb := r.pathBoost(c.SourcePath)
		if isTemporal {
			rb := r.recencyBoost(c.LastModified)
			c.UtilityScore = r.weights.TemporalBaseWeight*(c.BaseScore+pb) + r.weights.TemporalRecencyWeight*rb
		} else {
			c.UtilityScore = c.BaseScore + pb
		}
	}
	return cands
}

// dedup merges candidates with identical normalized content, summing
// utility scores and concatenating methods (spec.md §4.7 step 8).
func dedup(cands []types.Candidate) []types.Candidate {
	byKey := make(map[string]*types.Candidate, len(cands))
	order := make([]string, 0, len(cands))

	for i := range cands {
		c := cands[i]
		key := c.DedupKey()
		if key == "" {
			key = c.ID
		}
		if existing, ok := byKey[key]; ok {
			existing.UtilityScore += c.UtilityScore
			existing.Method = append(existing.Method, c.Method...)
			continue
		}
		cp := c
		byKey[key] = &cp
		order = append(order, key)
	}

	out := make([]types.Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}
