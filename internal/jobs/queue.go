package jobs

import (
	"context"

	"github.com/vytor/gazetest/internal/session"
)

// JobQueue provides an abstraction for enqueueing background jobs
type JobQueue interface {
	// EnqueueFinalize stores rec in the background. ctx is the session context;
	// cancelling it aborts pending writes.
	EnqueueFinalize(ctx context.Context, rec session.Record) error
	QueueSize() int
}
