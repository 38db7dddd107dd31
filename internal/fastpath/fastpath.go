// Package fastpath implements the hot-path exact/prefix index described
// in spec.md §4.6: an exact-match hash map plus a prefix trie, both
// guarded by a single mutex so lookups never block behind ingestion for
// longer than one map operation. Grounded on the dual idMap/keyMap
// lookup-table pattern in the teacher's internal/store/hnsw.go and on
// the teacher's own contract note that implementations may delegate to
// a native accelerator (here, an optional purego-loaded matcher).
package fastpath

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mnemo-dev/mnemo/internal/types"
)

// MatchType identifies which FastPath tier produced a hit.
type MatchType string

const (
	ExactMatch        MatchType = "ExactMatch"
	LiteralEmailMatch MatchType = "LiteralEmailMatch"
	PrefixMatch       MatchType = "PrefixMatch"
)

const (
	minConfidence   = 0.9
	minPrefixChars  = 3
	maxDocsPerNode  = 10
	warmupSampleCap = 2000
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Hit is the result of a FastPath lookup.
type Hit struct {
	Type       MatchType
	Confidence float64
	Candidate  types.Candidate
}

// trieNode is an owned-child prefix-trie node. Depth is bounded by
// practical key length, so recursion is not a concern here (unlike the
// spec's note about an index-based arena for deep recursion).
type trieNode struct {
	children map[byte]*trieNode
	docs     []types.Candidate // up to maxDocsPerNode, most-recent-first
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[byte]*trieNode)}
}

// Index is the FastPath hot-path index (spec.md §4.6).
type Index struct {
	mu        sync.Mutex
	exact     map[string]types.Candidate
	root      *trieNode
	warm      bool
	accel     Accelerator
	sampleLRU *lru.Cache[string, struct{}]
}

// Accelerator is an optional native substring matcher an Index may
// delegate prefix lookups to; the contract is unchanged whether or not
// one is attached (spec.md §4.6's "transparently delegate" clause). See
// internal/fastpath/accel_purego.go for the concrete implementation.
type Accelerator interface {
	// LongestCommonPrefixLen returns how many leading bytes of query
	// match doc, or -1 if unavailable/inapplicable.
	LongestCommonPrefixLen(query, doc string) int
}

// New builds an empty Index. accel may be nil.
func New(accel Accelerator) *Index {
	cache, _ := lru.New[string, struct{}](warmupSampleCap)
	return &Index{
		exact:     make(map[string]types.Candidate),
		root:      newTrieNode(),
		accel:     accel,
		sampleLRU: cache,
	}
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Insert adds or replaces a candidate under its normalized content as
// the exact key, and indexes it into the prefix trie character by
// character. Called by the Ingestor after each ingest and by the
// warmup sampler at startup.
func (idx *Index) Insert(key string, c types.Candidate) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	norm := normalizeKey(key)
	idx.exact[norm] = c
	idx.insertTrieLocked(norm, c)
	if idx.sampleLRU != nil {
		idx.sampleLRU.Add(norm, struct{}{})
	}
}

func (idx *Index) insertTrieLocked(key string, c types.Candidate) {
	node := idx.root
	for i := 0; i < len(key); i++ {
		b := key[i]
		child, ok := node.children[b]
		if !ok {
			child = newTrieNode()
			node.children[b] = child
		}
		node = child
	}
	node.docs = append([]types.Candidate{c}, node.docs...)
	if len(node.docs) > maxDocsPerNode {
		node.docs = node.docs[:maxDocsPerNode]
	}
}

// Delete removes key from both structures. Interior trie nodes are left
// in place (they may serve other keys); only the terminal node's docs
// are cleared, since every doc stored there was inserted under exactly
// this key.
func (idx *Index) Delete(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	norm := normalizeKey(key)
	delete(idx.exact, norm)

	node := idx.root
	for i := 0; i < len(norm); i++ {
		child, ok := node.children[norm[i]]
		if !ok {
			return
		}
		node = child
	}
	node.docs = nil
}

// MarkWarm records that the background warmup populate has completed.
// Queries issued before this is set simply miss at tier 0, per spec.md
// §5's "pre-warmup simply miss" note — Search works regardless.
func (idx *Index) MarkWarm() {
	idx.mu.Lock()
	idx.warm = true
	idx.mu.Unlock()
}

func (idx *Index) Warm() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.warm
}

// Search implements the spec.md §4.6 contract: search(query) ->
// Option<{type, confidence, candidate}>, returning a hit only at
// confidence >= 0.9.
func (idx *Index) Search(query string) (Hit, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	norm := normalizeKey(query)
	if norm == "" {
		return Hit{}, false
	}

	if c, ok := idx.exact[norm]; ok {
		return Hit{Type: ExactMatch, Confidence: 1.0, Candidate: c}, true
	}

	if email := emailRe.FindString(query); email != "" {
		if c, ok := idx.exact[normalizeKey(email)]; ok {
			return Hit{Type: LiteralEmailMatch, Confidence: 1.0, Candidate: c}, true
		}
	}

	if len(norm) >= minPrefixChars {
		if hit, ok := idx.searchPrefixLocked(norm); ok {
			return hit, true
		}
	}

	return Hit{}, false
}

func (idx *Index) searchPrefixLocked(norm string) (Hit, bool) {
	// The whole query must lie on a trie path: a partial descent would
	// return a document the query is not actually a prefix of.
	node := idx.root
	for i := 0; i < len(norm); i++ {
		child, ok := node.children[norm[i]]
		if !ok {
			return Hit{}, false
		}
		node = child
	}
	// Docs live at each key's terminal node, so a query that is a proper
	// prefix of a longer key lands on an interior node; the stored
	// documents are in the subtree below it.
	top, ok := firstDocInSubtree(node)
	if !ok {
		return Hit{}, false
	}
	topNorm := normalizeKey(top.Content)
	verified := false
	if idx.accel != nil {
		if accelLen := idx.accel.LongestCommonPrefixLen(norm, topNorm); accelLen >= 0 {
			if accelLen < len(norm) {
				return Hit{}, false
			}
			verified = true
		}
	}
	if !verified && !strings.HasPrefix(topNorm, norm) {
		return Hit{}, false
	}
	return Hit{Type: PrefixMatch, Confidence: minConfidence, Candidate: top}, true
}

// firstDocInSubtree descends children in byte order, not map order, so
// a proper-prefix query matching several longer keys returns the same
// candidate on every run.
func firstDocInSubtree(node *trieNode) (types.Candidate, bool) {
	if len(node.docs) > 0 {
		return node.docs[0], true
	}
	keys := make([]int, 0, len(node.children))
	for b := range node.children {
		keys = append(keys, int(b))
	}
	sort.Ints(keys)
	for _, b := range keys {
		if c, ok := firstDocInSubtree(node.children[byte(b)]); ok {
			return c, true
		}
	}
	return types.Candidate{}, false
}

// Contains reports whether key is currently present in the exact map,
// used by the property test validating spec.md §8 invariant 7 (a
// FastPath hit's normalized query must equal the stored key, or be a
// genuine prefix of the returned content).
func (idx *Index) Contains(key string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.exact[normalizeKey(key)]
	return ok
}

// Len returns the number of entries in the exact map.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.exact)
}
