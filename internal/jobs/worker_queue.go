package jobs

import (
	"context"

	"github.com/vytor/gazetest/internal/finalize"
	"github.com/vytor/gazetest/internal/session"
	"github.com/vytor/gazetest/internal/worker"
)

// WorkerQueue implements JobQueue using a worker pool
type WorkerQueue struct {
	pool      *worker.Pool
	finalizer worker.Finalizer
	onDone    func(rec session.Record, report *finalize.Report, err error)
}

// NewWorkerQueue creates a new WorkerQueue implementation. onDone, when set,
// observes every finished finalization.
func NewWorkerQueue(pool *worker.Pool, finalizer worker.Finalizer, onDone func(session.Record, *finalize.Report, error)) *WorkerQueue {
	return &WorkerQueue{
		pool:      pool,
		finalizer: finalizer,
		onDone:    onDone,
	}
}

// SetOnDone replaces the completion observer. Call before jobs are queued.
func (q *WorkerQueue) SetOnDone(fn func(session.Record, *finalize.Report, error)) {
	q.onDone = fn
}

func (q *WorkerQueue) EnqueueFinalize(ctx context.Context, rec session.Record) error {
	job := &worker.FinalizeJob{
		Finalizer: q.finalizer,
		Ctx:       ctx,
		Record:    rec,
	}
	if q.onDone != nil {
		onDone := q.onDone
		job.OnDone = func(report *finalize.Report, err error) { onDone(rec, report, err) }
	}
	return q.pool.Submit(job)
}

func (q *WorkerQueue) QueueSize() int {
	return q.pool.QueueSize()
}
