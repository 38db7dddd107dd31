// Package classifier implements the pointer/chunk decision (spec.md
// §4.8): given the Retriever's ranked candidate list, decide per
// candidate whether to surface the full chunk, degrade it to a compact
// Pointer, or drop it below the noise floor. Grounded on the teacher's
// IsTestFile/IsImplementationPath-style path classification helpers in
// internal/search/options.go, generalized into directory clustering.
package classifier

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/types"
	"github.com/mnemo-dev/mnemo/internal/validation"
)

const (
	chunkThresholdTemporal  = 0.5
	chunkThresholdDefault   = 0.65
	pointerThreshold        = 0.1
	temporalAlwaysChunkTopN = 5
	maxClusteredPointers    = 5
	sectionTitleMaxLen      = 60
	maxQueryKeywords        = 5
	minKeywordLen           = 2
)

var mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

// stopwords is a small, deliberately incomplete set: the spec calls for
// "the target natural language(s)" and this system's target corpus is
// overwhelmingly English identifiers and prose, so only English
// stopwords are carried (mirrors the teacher's stemmer.programmingStopWords
// pattern of a hand-picked, domain-scoped list rather than a full NLP
// stopword corpus).
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "of": true, "to": true, "in": true, "on": true, "for": true,
	"and": true, "or": true, "but": true, "with": true, "what": true, "how": true,
	"does": true, "this": true, "that": true, "it": true, "at": true, "by": true,
}

// Result is the Classifier's output: spec.md §4.8's (chunks, pointers, entities).
type Result struct {
	Chunks   []types.Candidate
	Pointers []types.Pointer
	Entities []types.Candidate
}

// Classifier holds the path roots used to gate Pointer construction
// against path traversal (spec.md §7).
type Classifier struct {
	roots *validation.Roots
}

func New(roots *validation.Roots) *Classifier {
	return &Classifier{roots: roots}
}

// Classify applies spec.md §4.8's per-candidate rule in order, then
// clusters the resulting pointers by directory.
func (c *Classifier) Classify(query string, candidates []types.Candidate, isTemporal bool) Result {
	chunkThreshold := chunkThresholdDefault
	if isTemporal {
		chunkThreshold = chunkThresholdTemporal
	}
	keywords := extractKeywords(query)

	var res Result
	var rawPointers []types.Pointer

	for i, cand := range candidates {
		if hasMethod(cand.Method, types.MethodEntity) {
			res.Entities = append(res.Entities, cand)
			continue
		}

		if cand.UtilityScore >= chunkThreshold || (isTemporal && i < temporalAlwaysChunkTopN) {
			res.Chunks = append(res.Chunks, cand)
			continue
		}

		if cand.UtilityScore >= pointerThreshold {
			if p, ok := c.toPointer(cand, keywords); ok {
				rawPointers = append(rawPointers, p)
			}
		}
		// Below pointer_threshold: silently dropped.
	}

	res.Pointers = clusterPointers(rawPointers)
	return res
}

func hasMethod(methods []types.Method, target types.Method) bool {
	for _, m := range methods {
		if m == target {
			return true
		}
	}
	return false
}

// toPointer converts a candidate to a Pointer, gated by a path-safety
// check. Unsafe candidates are silently dropped per spec.md §4.8.
func (c *Classifier) toPointer(cand types.Candidate, keywords []string) (types.Pointer, bool) {
	safePath := cand.SourcePath
	if c.roots != nil {
		var err error
		safePath, err = c.roots.SafePath(cand.SourcePath)
		if err != nil {
			return types.Pointer{}, false
		}
	}

	start, end := cand.StartLine, cand.EndLine
	if start == 0 && end == 0 {
		start, end = 1, 1
	}

	return types.Pointer{
		FilePath:     safePath,
		SectionTitle: sectionTitle(cand.Content),
		StartLine:    start,
		EndLine:      end,
		Keywords:     keywords,
		Confidence:   cand.UtilityScore,
		ContentHash:  cand.ContentHash,
		LastModified: cand.LastModified,
		IndexedAt:    cand.IndexedAt,
	}, true
}

// sectionTitle derives a pointer's title: the first Markdown heading if
// present, else the first non-empty line truncated to 60 chars.
func sectionTitle(content string) string {
	if m := mdHeading.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > sectionTitleMaxLen {
			return line[:sectionTitleMaxLen]
		}
		return line
	}
	return ""
}

// extractKeywords pulls up to 5 deduplicated, >2-char, non-stopword
// tokens from the query.
func extractKeywords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, ".,!?:;\"'()[]{}")
		if len(f) <= minKeywordLen || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxQueryKeywords {
			break
		}
	}
	return out
}

// clusterPointers groups by directory, keeps only the highest-confidence
// pointer per directory, sorts by confidence desc, and caps at 5
// (spec.md §4.8's "Pointer clustering").
func clusterPointers(pointers []types.Pointer) []types.Pointer {
	best := make(map[string]types.Pointer, len(pointers))
	for _, p := range pointers {
		dir := filepath.Dir(p.FilePath)
		if existing, ok := best[dir]; !ok || p.Confidence > existing.Confidence {
			best[dir] = p
		}
	}

	out := make([]types.Pointer, 0, len(best))
	for _, p := range best {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > maxClusteredPointers {
		out = out[:maxClusteredPointers]
	}
	return out
}
