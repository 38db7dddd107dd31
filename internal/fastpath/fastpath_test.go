package fastpath

import (
	"testing"

	"github.com/mnemo-dev/mnemo/internal/types"
	"github.com/stretchr/testify/require"
)

func TestSearchExactMatch(t *testing.T) {
	idx := New(nil)
	idx.Insert("foo@example.com", types.Candidate{ID: "1", Content: "foo@example.com"})

	hit, ok := idx.Search("Foo@Example.com")
	require.True(t, ok)
	require.Equal(t, ExactMatch, hit.Type)
	require.Equal(t, 1.0, hit.Confidence)
}

func TestSearchEmailMatch(t *testing.T) {
	idx := New(nil)
	idx.Insert("foo@example.com", types.Candidate{ID: "1", Content: "foo@example.com"})

	hit, ok := idx.Search("contact foo@example.com for details")
	require.True(t, ok)
	require.Equal(t, LiteralEmailMatch, hit.Type)
}

func TestSearchPrefixMatch(t *testing.T) {
	idx := New(nil)
	idx.Insert("project-alpha-readme", types.Candidate{ID: "1", Content: "project-alpha-readme full body"})

	hit, ok := idx.Search("project-al")
	require.True(t, ok)
	require.Equal(t, PrefixMatch, hit.Type)
	require.GreaterOrEqual(t, hit.Confidence, 0.9)
}

func TestSearchPrefixTooShortMisses(t *testing.T) {
	idx := New(nil)
	idx.Insert("project-alpha-readme", types.Candidate{ID: "1", Content: "project-alpha-readme"})

	_, ok := idx.Search("pr")
	require.False(t, ok, "a 2-char prefix is below the minimum 3-char confidence threshold")
}

func TestSearchMissReturnsFalse(t *testing.T) {
	idx := New(nil)
	_, ok := idx.Search("nonexistent query string")
	require.False(t, ok)
}

func TestDeleteRemovesExactMatch(t *testing.T) {
	idx := New(nil)
	idx.Insert("key1", types.Candidate{ID: "1", Content: "key1"})
	idx.Delete("key1")

	_, ok := idx.Search("key1")
	require.False(t, ok)
	require.False(t, idx.Contains("key1"))
}

func TestWarmFlag(t *testing.T) {
	idx := New(nil)
	require.False(t, idx.Warm())
	idx.MarkWarm()
	require.True(t, idx.Warm())
}

func TestTerminalNodeCapsAtTenDocs(t *testing.T) {
	idx := New(nil)
	for i := 0; i < 15; i++ {
		idx.Insert("shared-prefix-key", types.Candidate{ID: string(rune('a' + i)), Content: "shared-prefix-key"})
	}
	// Only the exact map keeps the latest; the trie terminal node keeps
	// at most maxDocsPerNode of the 15 inserted candidates.
	hit, ok := idx.Search("shared-prefix-key")
	require.True(t, ok)
	require.Equal(t, ExactMatch, hit.Type)

	node := idx.root
	for i := 0; i < len("shared-prefix-key"); i++ {
		node = node.children["shared-prefix-key"[i]]
		require.NotNil(t, node)
	}
	require.Len(t, node.docs, maxDocsPerNode)
}
