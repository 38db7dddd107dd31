package store

import (
	"context"
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/types"
	"github.com/stretchr/testify/require"
)

func TestMetadataStoreUpsertAndSearchFTS(t *testing.T) {
	ms, err := NewMetadataStore("")
	require.NoError(t, err)
	defer ms.Close()

	ctx := context.Background()
	require.NoError(t, ms.UpsertFile(ctx, types.File{
		Path: "a.go", Project: "p1", LastModTime: time.Now(), ContentHash: "h1", ProcessedAt: time.Now(),
	}))
	require.NoError(t, ms.InsertFTS(ctx, "a.go", "func handleError returns", "funkc handl error return", "p1", 1, 10))

	hits, err := ms.SearchFTS(ctx, "handl error", "p1", 10, ModeAnd)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "a.go", hits[0].Path)
}

func TestMetadataStoreSearchFTSAndYieldsNoneFallsBackToOrAtCaller(t *testing.T) {
	ms, err := NewMetadataStore("")
	require.NoError(t, err)
	defer ms.Close()

	ctx := context.Background()
	require.NoError(t, ms.InsertFTS(ctx, "a.go", "alpha beta", "alpha beta", "p1", 1, 2))

	hits, err := ms.SearchFTS(ctx, "alpha gamma", "p1", 10, ModeAnd)
	require.NoError(t, err)
	require.Empty(t, hits, "AND mode with a missing term should yield zero rows")

	hits, err = ms.SearchFTS(ctx, "alpha gamma", "p1", 10, ModeOr)
	require.NoError(t, err)
	require.Len(t, hits, 1, "OR mode should still find the row containing one matching term")
}

func TestMetadataStoreSupersedeDecision(t *testing.T) {
	ms, err := NewMetadataStore("")
	require.NoError(t, err)
	defer ms.Close()

	ctx := context.Background()
	old := types.Entity{ID: "d1", Type: types.EntityDecision, Content: "use postgres", Project: "p1", FilePath: "notes.md", CreatedAt: time.Now()}
	require.NoError(t, ms.UpsertEntity(ctx, old))

	require.NoError(t, ms.SupersedeDecision(ctx, "d1", "d2", "use sqlite instead", "p1", "notes.md", time.Now()))

	history, err := ms.GetDecisionHistory(ctx, "d2")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "d1", history[0].ID)
	require.Equal(t, "d2", history[1].ID)
	require.NotNil(t, history[0].SupersededBy)
	require.Equal(t, "d2", *history[0].SupersededBy)
}

func TestMetadataStoreRatifyDecisionUpdatesOnlyGivenFields(t *testing.T) {
	ms, err := NewMetadataStore("")
	require.NoError(t, err)
	defer ms.Close()

	ctx := context.Background()
	created := time.Now()
	d := types.Entity{ID: "d1", Type: types.EntityDecision, Content: "use postgres", Project: "p1", FilePath: "notes.md", CreatedAt: created}
	require.NoError(t, ms.UpsertEntity(ctx, d))

	newValidTo := created.Add(24 * time.Hour)
	require.NoError(t, ms.RatifyDecision(ctx, "d1", nil, &newValidTo, nil))

	history, err := ms.GetDecisionHistory(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ValidTo)
	require.WithinDuration(t, newValidTo, *history[0].ValidTo, time.Second)
	require.Nil(t, history[0].ValidFrom)
}

func TestMetadataStoreRatifyDecisionUnknownIDFails(t *testing.T) {
	ms, err := NewMetadataStore("")
	require.NoError(t, err)
	defer ms.Close()

	err = ms.RatifyDecision(context.Background(), "does-not-exist", nil, nil, nil)
	require.Error(t, err)
}

func TestMetadataStoreGetActiveDecisions(t *testing.T) {
	ms, err := NewMetadataStore("")
	require.NoError(t, err)
	defer ms.Close()

	ctx := context.Background()
	past := time.Now().Add(-48 * time.Hour)
	future := time.Now().Add(48 * time.Hour)
	require.NoError(t, ms.UpsertEntity(ctx, types.Entity{
		ID: "d1", Type: types.EntityDecision, Content: "active", Project: "p1",
		ValidFrom: &past, ValidTo: &future, CreatedAt: time.Now(),
	}))
	expired := past.Add(-time.Hour)
	require.NoError(t, ms.UpsertEntity(ctx, types.Entity{
		ID: "d2", Type: types.EntityDecision, Content: "expired", Project: "p1",
		ValidFrom: &expired, ValidTo: &past, CreatedAt: time.Now(),
	}))

	active, err := ms.GetActiveDecisions(ctx, time.Now(), "p1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "d1", active[0].ID)
}

func TestVectorStoreAddSearchDelete(t *testing.T) {
	vs, err := NewVectorStore(VectorConfig{Dimensions: 3})
	require.NoError(t, err)
	defer vs.Close()

	ctx := context.Background()
	require.NoError(t, vs.Add(ctx, []string{"a.go#1-10", "b.go#1-5"}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}, []string{"alpha chunk", "beta chunk"}, []VectorMeta{
		{Source: "a.go", Project: "p1", Type: "chunk"},
		{Source: "b.go", Project: "p1", Type: "chunk"},
	}))
	require.Equal(t, 2, vs.Count())

	results, err := vs.Search(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a.go#1-10", results[0].ID)
	require.Equal(t, "alpha chunk", results[0].Doc)
	require.Equal(t, "a.go", results[0].Meta.Source)

	require.NoError(t, vs.Delete(ctx, []string{"a.go#1-10"}))
	require.False(t, vs.Contains("a.go#1-10"))
	require.Equal(t, 1, vs.Count())
}

func TestVectorStoreDimensionMismatch(t *testing.T) {
	vs, err := NewVectorStore(VectorConfig{Dimensions: 4})
	require.NoError(t, err)
	defer vs.Close()

	err = vs.Add(context.Background(), []string{"a"}, [][]float32{{1, 2, 3}}, nil, nil)
	require.Error(t, err)
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 4, mismatch.Expected)
	require.Equal(t, 3, mismatch.Got)
}

func TestVectorStoreDeletePrefix(t *testing.T) {
	vs, err := NewVectorStore(VectorConfig{Dimensions: 2})
	require.NoError(t, err)
	defer vs.Close()

	ctx := context.Background()
	require.NoError(t, vs.Add(ctx, []string{"a.go#1-5", "a.go#6-10", "b.go#1-5"}, [][]float32{
		{1, 0}, {0.9, 0.1}, {0, 1},
	}, nil, nil))
	require.NoError(t, vs.DeletePrefix(ctx, "a.go"))
	require.Equal(t, 1, vs.Count())
	require.True(t, vs.Contains("b.go#1-5"))
}
