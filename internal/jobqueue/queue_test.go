package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/types"
	"github.com/stretchr/testify/require"
)

func TestQueueSubmitNextStartComplete(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	id, err := q.Submit(ctx, "ingest", map[string]any{"path": "a.go"}, 7)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, types.JobPending, job.Status)
	require.Equal(t, 7, job.Priority)

	ok, err := q.Start(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// A second Start attempt must lose the race.
	ok2, err := q.Start(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, ok2)

	require.NoError(t, q.UpdateProgress(ctx, job.ID, 50, ""))
	require.NoError(t, q.Complete(ctx, job.ID, `{"chunks":3}`))

	got, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.JobCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
}

func TestQueuePriorityOrdering(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	_, err = q.Submit(ctx, "ingest", nil, 3)
	require.NoError(t, err)
	highID, err := q.Submit(ctx, "ingest", nil, 9)
	require.NoError(t, err)

	job, err := q.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, highID, job.ID, "Next must return the highest-priority pending job")
}

func TestQueueCancelOnlyPendingOrRunning(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	id, err := q.Submit(ctx, "ingest", nil, 5)
	require.NoError(t, err)

	ok, err := q.Cancel(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = q.Cancel(ctx, id)
	require.Error(t, err, "cancelling an already-cancelled job must fail")
}

func TestQueueStatsSuccessRate(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	okID, err := q.Submit(ctx, "ingest", nil, 5)
	require.NoError(t, err)
	_, _ = q.Start(ctx, okID)
	require.NoError(t, q.Complete(ctx, okID, "done"))

	badID, err := q.Submit(ctx, "ingest", nil, 5)
	require.NoError(t, err)
	_, _ = q.Start(ctx, badID)
	require.NoError(t, q.Fail(ctx, badID, "boom"))

	stats, err := q.StatsSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.InDelta(t, 50.0, stats.SuccessRate, 0.001)
}

func TestQueueRecoverStuck(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	id, err := q.Submit(ctx, "ingest", nil, 5)
	require.NoError(t, err)
	ok, err := q.Start(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := q.RecoverStuck(ctx, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.JobPending, job.Status)
	require.Nil(t, job.StartedAt)
}

func TestQueueRecoverStuckRespectsMaxAge(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx := context.Background()
	id, err := q.Submit(ctx, "ingest", nil, 5)
	require.NoError(t, err)
	ok, err := q.Start(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := q.RecoverStuck(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n, "a running job younger than max-age must not be swept")

	job, err := q.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.JobRunning, job.Status)
}
