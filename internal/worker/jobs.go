package worker

import (
	"context"

	"github.com/vytor/gazetest/internal/finalize"
	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/session"
)

type Finalizer interface {
	Finalize(ctx context.Context, rec session.Record) (*finalize.Report, error)
}

// FinalizeJob stores a finished session. It runs under the session context
// as well as the pool's, so cancelling either aborts pending writes.
type FinalizeJob struct {
	Finalizer Finalizer
	Ctx       context.Context
	Record    session.Record
	OnDone    func(*finalize.Report, error)
}

func (j *FinalizeJob) Name() string { return "finalize_session" }

func (j *FinalizeJob) Run(ctx context.Context) error {
	parent := j.Ctx
	if parent == nil {
		parent = context.Background()
	}
	runCtx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	log := logger.FromContext(ctx).WithField("session_id", j.Record.SessionID)
	runCtx = logger.NewContext(runCtx, log)

	report, err := j.Finalizer.Finalize(runCtx, j.Record)
	if j.OnDone != nil {
		j.OnDone(report, err)
	}
	return err
}
