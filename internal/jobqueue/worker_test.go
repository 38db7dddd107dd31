package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerDispatchesToRegisteredHandler(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := q.Submit(ctx, "ingest", map[string]any{"path": "a.go"}, 5)
	require.NoError(t, err)

	w := NewWorker(q, 20*time.Millisecond)
	handled := make(chan string, 1)
	w.Register("ingest", func(ctx context.Context, job *JobView) (string, error) {
		_ = job.Progress(ctx, 50)
		handled <- job.ID
		return "ok", nil
	})

	go w.Run(ctx)
	defer w.Stop()

	select {
	case gotID := <-handled:
		require.Equal(t, id, gotID)
	case <-ctx.Done():
		t.Fatal("handler never ran")
	}

	// Poll until the status flips to completed; the handler returning
	// doesn't synchronize with the Complete() write.
	require.Eventually(t, func() bool {
		job, err := q.Get(context.Background(), id)
		return err == nil && job.Status == "completed"
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerFailsJobOnHandlerError(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := q.Submit(ctx, "ingest", nil, 5)
	require.NoError(t, err)

	w := NewWorker(q, 20*time.Millisecond)
	w.Register("ingest", func(ctx context.Context, job *JobView) (string, error) {
		return "", errors.New("boom")
	})

	go w.Run(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool {
		job, err := q.Get(context.Background(), id)
		return err == nil && job.Status == "failed" && job.Error == "boom"
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerFailsUnknownJobType(t *testing.T) {
	q, err := Open("")
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := q.Submit(ctx, "mystery", nil, 5)
	require.NoError(t, err)

	w := NewWorker(q, 20*time.Millisecond)
	go w.Run(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool {
		job, err := q.Get(context.Background(), id)
		return err == nil && job.Status == "failed"
	}, time.Second, 10*time.Millisecond)
}
