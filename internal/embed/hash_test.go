package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "func ParseConfig(path string) error")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "func ParseConfig(path string) error")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e := NewHashEmbedder()
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, v, HashDimensions)
	for _, x := range v {
		require.Zero(t, x)
	}
}

func TestHashEmbedderBatchMatchesIndividual(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()
	texts := []string{"alpha beta", "gamma delta", "epsilon"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		require.Equal(t, single, batch[i])
	}
}

func TestHashEmbedderClosedRejects(t *testing.T) {
	e := NewHashEmbedder()
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
	require.False(t, e.Available(context.Background()))
}

func TestHashEmbedderDistinguishesDifferentText(t *testing.T) {
	e := NewHashEmbedder()
	ctx := context.Background()
	v1, _ := e.Embed(ctx, "completely different content one")
	v2, _ := e.Embed(ctx, "something else entirely here too")
	require.NotEqual(t, v1, v2)
}
