// Package llm provides the query-expansion and HyDE (hypothetical
// document expansion) oracle the Retriever calls when allow_expand or
// allow_hyde is set (spec.md §4.7 step 4, §9's Glossary "HyDE" entry).
// Grounded on spec.md §9's explicit note that the LLM dependency should
// be injected behind a narrow interface so tests can substitute a
// deterministic fake; the concrete implementation is modeled on
// github.com/sashabaranov/go-openai's chat-completion request shape.
package llm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Client is the narrow LLM contract the Retriever depends on.
type Client interface {
	// Expand returns up to n rephrasings of query, not including the
	// original (the caller prepends it per spec.md §4.7 step 4).
	Expand(ctx context.Context, query string, n int) ([]string, error)
	// Hypothesize returns a pseudo-answer document used as the vector
	// query in HyDE mode (spec.md Glossary "HyDE").
	Hypothesize(ctx context.Context, query string) (string, error)
	Available(ctx context.Context) bool
}

// memoKey is MD5(query), matching spec.md §4.11's
// cache/hyde_cache.json key scheme.
func memoKey(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])
}

// FileMemo is a JSON-file-backed memoization layer in front of any
// Client, implementing spec.md's cache/hyde_cache.json contract. It
// wraps Hypothesize only — Expand results are cheap enough not to need
// persistence across process restarts.
type FileMemo struct {
	mu     sync.Mutex
	inner  Client
	path   string
	cached map[string]string
}

// NewFileMemo loads any existing cache at path (best-effort; a missing
// or corrupt file just starts empty) and wraps inner.
func NewFileMemo(inner Client, path string) *FileMemo {
	m := &FileMemo{inner: inner, path: path, cached: make(map[string]string)}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &m.cached)
	}
	return m
}

func (m *FileMemo) Expand(ctx context.Context, query string, n int) ([]string, error) {
	return m.inner.Expand(ctx, query, n)
}

func (m *FileMemo) Hypothesize(ctx context.Context, query string) (string, error) {
	key := memoKey(query)

	m.mu.Lock()
	if doc, ok := m.cached[key]; ok {
		m.mu.Unlock()
		return doc, nil
	}
	m.mu.Unlock()

	doc, err := m.inner.Hypothesize(ctx, query)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.cached[key] = doc
	snapshot := make(map[string]string, len(m.cached))
	for k, v := range m.cached {
		snapshot[k] = v
	}
	m.mu.Unlock()

	m.persist(snapshot)
	return doc, nil
}

func (m *FileMemo) persist(snapshot map[string]string) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	_ = os.WriteFile(m.path, data, 0o644)
}

func (m *FileMemo) Available(ctx context.Context) bool {
	return m.inner.Available(ctx)
}

var _ Client = (*FileMemo)(nil)

// splitNonEmptyLines is a small shared helper used by both the fake and
// real clients to turn a newline-delimited LLM response into variations.
func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ErrUnavailable is returned by the concrete client when the underlying
// provider cannot be reached; the Retriever maps this to its
// LLMUnavailable degradation (spec.md §7).
var ErrUnavailable = fmt.Errorf("llm: provider unavailable")
