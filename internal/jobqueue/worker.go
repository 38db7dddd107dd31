package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnemo-dev/mnemo/internal/types"
)

// Handler processes one job's params and returns a JSON-ish result
// string, or an error. A handler reports progress through its
// JobView's Progress callback, which writes to the queue the Worker
// polls.
type Handler func(ctx context.Context, job *JobView) (string, error)

// JobView is the subset of a Job a Handler needs, plus a progress
// callback bound to this job's ID.
type JobView struct {
	ID       string
	Type     string
	Params   map[string]any
	Progress func(ctx context.Context, pct int) error
}

// Worker runs a single poll loop in its own goroutine: poll Next()
// every PollInterval (a fixed interval, 1s by default; no jitter), and
// on a claimed job, dispatch to the type-keyed handler.
type Worker struct {
	q            *Queue
	handlers     map[string]Handler
	pollInterval time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWorker builds a Worker over queue q. PollInterval defaults to 1s
// when zero.
func NewWorker(q *Queue, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		q:            q,
		handlers:     make(map[string]Handler),
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Register binds a Handler to a job type. Unknown types fail
// immediately at dispatch time (spec.md §4.11).
func (w *Worker) Register(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Run starts the poll loop. It blocks until ctx is cancelled or Stop
// is called; callers typically invoke it in its own goroutine.
func (w *Worker) Run(ctx context.Context) {
	w.started.Store(true)
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(w.pollInterval):
		}

		job, err := w.q.Next(ctx)
		if err != nil {
			slog.Error("jobqueue_poll_failed", slog.String("error", err.Error()))
			continue
		}
		if job == nil {
			continue
		}

		ok, err := w.q.Start(ctx, job.ID)
		if err != nil {
			slog.Error("jobqueue_start_failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue // another consumer claimed it first
		}

		w.dispatch(ctx, job)
	}
}

func (w *Worker) dispatch(ctx context.Context, job *types.Job) {
	handler, ok := w.handlers[job.Type]
	if !ok {
		_ = w.q.Fail(ctx, job.ID, fmt.Sprintf("no handler registered for job type %q", job.Type))
		return
	}

	_ = w.q.UpdateProgress(ctx, job.ID, 0, "")

	view := &JobView{
		ID:     job.ID,
		Type:   job.Type,
		Params: job.Params,
		Progress: func(ctx context.Context, pct int) error {
			return w.q.UpdateProgress(ctx, job.ID, pct, "")
		},
	}

	result, err := w.runHandlerSafely(ctx, handler, view)
	if err != nil {
		_ = w.q.Fail(ctx, job.ID, err.Error())
		return
	}
	_ = w.q.Complete(ctx, job.ID, result)
}

// runHandlerSafely recovers a panicking handler into a failed job
// instead of crashing the worker loop, mirroring the source's
// exception-plus-traceback capture in fail_job.
func (w *Worker) runHandlerSafely(ctx context.Context, h Handler, job *JobView) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, job)
}

// Stop signals the poll loop to exit and waits up to 5 seconds for the
// current iteration to finish (spec.md §4.11's graceful-shutdown
// budget). Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	if !w.started.Load() {
		return
	}
	select {
	case <-w.doneCh:
	case <-time.After(5 * time.Second):
		slog.Warn("jobqueue_worker_stop_timeout")
	}
}
