package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupKeyNormalizesWhitespace(t *testing.T) {
	a := Candidate{Content: "hello   world\n\tfoo"}
	b := Candidate{Content: "hello world foo"}
	require.Equal(t, a.DedupKey(), b.DedupKey())
}

func TestDedupKeyTrimsTrailingWhitespace(t *testing.T) {
	c := Candidate{Content: "trailing spaces   \n\t "}
	require.Equal(t, "trailing spaces", c.DedupKey())
}

func TestDedupKeyDistinguishesDifferentContent(t *testing.T) {
	a := Candidate{Content: "alpha"}
	b := Candidate{Content: "beta"}
	require.NotEqual(t, a.DedupKey(), b.DedupKey())
}
