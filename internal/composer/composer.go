// Package composer implements the token-budgeted greedy assembly
// described in spec.md §4.9: a two-pass admission algorithm that packs
// high-value items first, truncates oversized chunks, and reports how
// many tokens it saved versus a naive "dump everything" baseline.
// Grounded on the teacher's config-profile-table pattern
// (internal/config) for the Profile table, and on standardbeagle-lci's
// internal/core/file_content_store.go FastHash/ContentHash split (a
// cheap xxhash equality check ahead of a slower full hash) for the
// dedup-key cache in preprocess, adapted here to an MD5 dedup key per
// spec.md's explicit "MD5 of (whitespace-normalized content + source)"
// contract.
package composer

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mnemo-dev/mnemo/internal/types"
)

// Profile is one named token-budget configuration (spec.md §4.9's table).
type Profile struct {
	GlobalLimit        int
	BriefingLimit      int
	EntitiesLimit      int
	ChunksLimit        int
	RecentChangesLimit int
	FileMaxChunks      int
	FileMaxTokens      int
	ChunkHardCap       int
	MinUniqueFiles     int
}

var (
	ProfileDefault = Profile{GlobalLimit: 4000, BriefingLimit: 300, EntitiesLimit: 800, ChunksLimit: 3200, RecentChangesLimit: 250, FileMaxChunks: 3, FileMaxTokens: 900, ChunkHardCap: 600, MinUniqueFiles: 4}
	ProfileLight   = Profile{GlobalLimit: 2000, BriefingLimit: 200, EntitiesLimit: 400, ChunksLimit: 1400, RecentChangesLimit: 250, FileMaxChunks: 2, FileMaxTokens: 600, ChunkHardCap: 600, MinUniqueFiles: 4}
	ProfileExtra   = Profile{GlobalLimit: 8000, BriefingLimit: 500, EntitiesLimit: 1500, ChunksLimit: 5000, RecentChangesLimit: 500, FileMaxChunks: 5, FileMaxTokens: 2000, ChunkHardCap: 600, MinUniqueFiles: 4}
)

const (
	raisedFileMaxChunks = 10
	raisedFileMaxTokens = 3000
	maxTokenCostPerItem = 100000
)

var raisedCapPathMarkers = []string{"docs", "specs", "requirements", "tasks.md"}

// baseUtilityByKind assigns a default utility score when an item's
// UtilityScore is unset (zero), per spec.md §4.9 step 1.
var baseUtilityByKind = map[types.ItemKind]float64{
	types.KindCursor:        10.0,
	types.KindBriefing:      9.0,
	types.KindEntity:        0.8,
	types.KindPointer:       0.7,
	types.KindRecentChanges: 0.6,
}

var passOneKinds = map[types.ItemKind]bool{
	types.KindCursor: true, types.KindBriefing: true, types.KindEntity: true, types.KindPointer: true,
}

// EstimateTokens implements spec.md §4.9's deliberately rough,
// conservative token estimate.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := int(math.Ceil(float64(len(text)) / 4 * 1.2))
	if n < 1 {
		n = 1
	}
	if n > maxTokenCostPerItem {
		n = maxTokenCostPerItem
	}
	return n
}

// DedupKey is MD5 of (whitespace-normalized content + source).
func DedupKey(content, source string) string {
	sum := md5.Sum([]byte(normalizeWhitespace(content) + source))
	return hex.EncodeToString(sum[:])
}

// cachedDedupKey buckets content+source by a 64-bit xxhash before
// computing the MD5 DedupKey, so repeated candidates within one
// Compose call only pay the MD5 cost once per distinct bucket. Like
// the teacher's FastHash equality check, this assumes xxhash64
// collisions between distinct (content, source) pairs don't happen in
// practice at composer item-set sizes.
func cachedDedupKey(bucket map[uint64]string, content, source string) string {
	normalized := normalizeWhitespace(content) + source
	h := xxhash.Sum64String(normalized)
	if key, ok := bucket[h]; ok {
		return key
	}
	key := DedupKey(content, source)
	bucket[h] = key
	return key
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Report is the Composer's efficiency report (spec.md §4.9 step 5),
// plus the admission audit: one line per rejected item naming the
// reason it was left out.
type Report struct {
	PotentialTokens int
	CurrentTokens   int
	SavedTokens     int
	Efficiency      float64
	SavedUSD        float64
	Audit           []string
}

// PriceTable resolves model to a USD/million-token rate; how an unknown
// model is priced is up to the implementation (see DefaultPrices).
type PriceTable func(model string) float64

// Compose runs spec.md §4.9's full algorithm over items and returns the
// rendered text plus an efficiency report.
func Compose(items []types.ContextItem, profile Profile, model string, prices PriceTable) (string, Report) {
	prepped := preprocess(items, profile)

	potential := 0
	for _, it := range prepped {
		potential += it.TokenCost
	}

	pass1, pass2 := split(prepped)
	sortByUtilityDesc(pass1)
	sortByUtilityDesc(pass2)

	admitted, audit := admit(pass1, profile)
	more, audit2 := admit(pass2, profile, admitted...)
	admitted = append(admitted, more...)
	audit = append(audit, audit2...)

	text := render(admitted)

	currentTokens := 0
	for _, it := range admitted {
		currentTokens += it.TokenCost
	}
	saved := potential - currentTokens
	if saved < 0 {
		saved = 0
	}
	efficiency := 0.0
	if potential > 0 {
		efficiency = float64(saved) / float64(potential)
	}
	price := 0.0
	if prices != nil {
		price = prices(model)
	}

	return text, Report{
		PotentialTokens: potential,
		CurrentTokens:   currentTokens,
		SavedTokens:     saved,
		Efficiency:      efficiency,
		SavedUSD:        float64(saved) / 1_000_000 * price,
		Audit:           audit,
	}
}

// preprocess assigns default utility scores and truncates any chunk
// item exceeding the hard cap (spec.md §4.9 step 1).
func preprocess(items []types.ContextItem, profile Profile) []types.ContextItem {
	out := make([]types.ContextItem, len(items))
	copy(out, items)

	// md5ByBucket caches the MD5 dedup key per xxhash(content+source)
	// bucket, so a large item set with repeated candidates (the same
	// chunk often surfaces from both the FTS and vector tiers) pays the
	// xxhash cost once per item but the MD5 cost only once per distinct
	// bucket.
	md5ByBucket := make(map[uint64]string)

	for i := range out {
		it := &out[i]
		if it.UtilityScore == 0 {
			if base, ok := baseUtilityByKind[it.Kind]; ok {
				it.UtilityScore = base
			}
		}
		if it.Kind == types.KindChunk && it.TokenCost > profile.ChunkHardCap {
			maxChars := profile.ChunkHardCap * 4
			content := it.Content
			if len(content) > maxChars {
				content = content[:maxChars]
			}
			it.Content = content + "\n[TRIMMED]"
			it.TokenCost = profile.ChunkHardCap
		}
		if it.DedupKey == "" {
			it.DedupKey = cachedDedupKey(md5ByBucket, it.Content, it.Source)
		}
	}
	return out
}

func split(items []types.ContextItem) (pass1, pass2 []types.ContextItem) {
	for _, it := range items {
		if passOneKinds[it.Kind] {
			pass1 = append(pass1, it)
		} else {
			pass2 = append(pass2, it)
		}
	}
	return pass1, pass2
}

func sortByUtilityDesc(items []types.ContextItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].UtilityScore > items[j].UtilityScore })
}

func hasRaisedCap(source string) bool {
	lower := strings.ToLower(source)
	for _, m := range raisedCapPathMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Rejection reasons recorded in the admission audit.
const (
	reasonDuplicate      = "duplicate"
	reasonGlobalBudget   = "global_budget_exceeded"
	reasonFileChunkCap   = "file_chunk_cap_exceeded"
	reasonFileTokenCap   = "file_token_cap_exceeded"
	reasonChunksBudget   = "chunks_limit_exceeded"
	reasonEntitiesBudget = "entities_limit_exceeded"
)

// admit runs the greedy admission pass (spec.md §4.9 step 3). already,
// if provided, carries state from a prior pass (pass 2 continues pass
// 1's running totals). The second return value is the audit trail: one
// line per rejected item, naming the source and the reason.
func admit(items []types.ContextItem, profile Profile, already ...types.ContextItem) ([]types.ContextItem, []string) {
	seenKeys := make(map[string]bool)
	fileChunks := make(map[string]int)
	fileTokens := make(map[string]int)
	currentTokens := 0
	chunksCategoryTokens := 0
	entitiesCategoryTokens := 0

	for _, it := range already {
		seenKeys[it.DedupKey] = true
		currentTokens += it.TokenCost
		if it.Kind == types.KindChunk || it.Kind == types.KindEvidence || it.Kind == types.KindRecentChanges {
			fileChunks[it.Source]++
			fileTokens[it.Source] += it.TokenCost
		}
		if it.Kind == types.KindChunk {
			chunksCategoryTokens += it.TokenCost
		}
		if it.Kind == types.KindEntity {
			entitiesCategoryTokens += it.TokenCost
		}
	}

	var out []types.ContextItem
	var audit []string
	reject := func(it types.ContextItem, reason string) {
		audit = append(audit, fmt.Sprintf("%s [%s]: %s", it.Source, it.Kind, reason))
	}
	for _, it := range items {
		if seenKeys[it.DedupKey] {
			reject(it, reasonDuplicate)
			continue
		}
		if currentTokens+it.TokenCost > profile.GlobalLimit {
			reject(it, reasonGlobalBudget)
			continue
		}

		isFileScoped := it.Kind == types.KindChunk || it.Kind == types.KindEvidence || it.Kind == types.KindRecentChanges
		if isFileScoped {
			maxChunks, maxTokens := profile.FileMaxChunks, profile.FileMaxTokens
			if hasRaisedCap(it.Source) {
				maxChunks, maxTokens = raisedFileMaxChunks, raisedFileMaxTokens
			}
			if fileChunks[it.Source] >= maxChunks {
				reject(it, reasonFileChunkCap)
				continue
			}
			if fileTokens[it.Source]+it.TokenCost > maxTokens {
				reject(it, reasonFileTokenCap)
				continue
			}
		}

		if it.Kind == types.KindChunk && chunksCategoryTokens+it.TokenCost > profile.ChunksLimit {
			reject(it, reasonChunksBudget)
			continue
		}
		if it.Kind == types.KindEntity && entitiesCategoryTokens+it.TokenCost > profile.EntitiesLimit {
			reject(it, reasonEntitiesBudget)
			continue
		}

		seenKeys[it.DedupKey] = true
		currentTokens += it.TokenCost
		if isFileScoped {
			fileChunks[it.Source]++
			fileTokens[it.Source] += it.TokenCost
		}
		if it.Kind == types.KindChunk {
			chunksCategoryTokens += it.TokenCost
		}
		if it.Kind == types.KindEntity {
			entitiesCategoryTokens += it.TokenCost
		}
		out = append(out, it)
	}
	return out, audit
}

var renderOrder = []types.ItemKind{
	types.KindBriefing, types.KindCursor, types.KindEntity, types.KindRecentChanges,
	types.KindPointer, types.KindChunk, types.KindEvidence,
}

// render produces the final text in spec.md §4.9 step 4's fixed kind
// order, independent of admission order.
func render(items []types.ContextItem) string {
	byKind := make(map[types.ItemKind][]types.ContextItem)
	for _, it := range items {
		byKind[it.Kind] = append(byKind[it.Kind], it)
	}

	var b strings.Builder
	for _, kind := range renderOrder {
		for _, it := range byKind[kind] {
			b.WriteString(renderItem(it))
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderItem(it types.ContextItem) string {
	switch it.Kind {
	case types.KindEntity:
		return fmt.Sprintf("[ENTITY] %s", truncateLine(it.Content, 200))
	case types.KindPointer:
		return it.Content // pre-rendered pointer block (see composer/render.go RenderPointer)
	case types.KindChunk:
		return fmt.Sprintf("--- %s ---\n%s", it.Source, it.Content)
	case types.KindCursor:
		return fmt.Sprintf(">>> cursor >>>\n%s\n<<< cursor <<<", it.Content)
	default:
		return it.Content
	}
}

func truncateLine(s string, max int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
