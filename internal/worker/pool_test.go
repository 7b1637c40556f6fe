package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vytor/gazetest/internal/finalize"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/session"
)

type funcJob struct {
	name string
	run  func(context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func TestPool_RunsQueuedJobsBeforeStopping(t *testing.T) {
	p := NewPool(2, 8)
	p.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		require.NoError(t, p.Submit(funcJob{name: "count", run: func(context.Context) error {
			ran.Add(1)
			return nil
		}}))
	}
	p.Stop()

	assert.Equal(t, int32(8), ran.Load())
	assert.ErrorIs(t, p.Submit(funcJob{name: "late", run: func(context.Context) error { return nil }}), ErrPoolStopped)
	p.Stop()
}

func TestPool_RejectsWhenFull(t *testing.T) {
	// Not started, so nothing drains the queue.
	p := NewPool(1, 1)
	noop := funcJob{name: "noop", run: func(context.Context) error { return nil }}

	require.NoError(t, p.Submit(noop))
	assert.Equal(t, 1, p.QueueSize())
	assert.ErrorIs(t, p.Submit(noop), ErrQueueFull)
}

func TestPool_JobErrorDoesNotStopWorker(t *testing.T) {
	p := NewPool(1, 4)
	p.Start(context.Background())

	var ran atomic.Int32
	require.NoError(t, p.Submit(funcJob{name: "fail", run: func(context.Context) error {
		ran.Add(1)
		return errors.New("boom")
	}}))
	require.NoError(t, p.Submit(funcJob{name: "ok", run: func(context.Context) error {
		ran.Add(1)
		return nil
	}}))
	p.Stop()

	assert.Equal(t, int32(2), ran.Load())
}

type stubFinalizer struct {
	mu   sync.Mutex
	seen []string
	err  error
	wait bool
}

func (f *stubFinalizer) Finalize(ctx context.Context, rec session.Record) (*finalize.Report, error) {
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f.mu.Lock()
	f.seen = append(f.seen, rec.SessionID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &finalize.Report{SessionID: rec.SessionID, Summary: models.SessionSummary{SessionID: rec.SessionID}}, nil
}

func TestFinalizeJob_ReportsOutcome(t *testing.T) {
	fin := &stubFinalizer{}
	var (
		report *finalize.Report
		gotErr error
	)
	job := &FinalizeJob{
		Finalizer: fin,
		Record:    session.Record{SessionID: "s1"},
		OnDone: func(r *finalize.Report, err error) {
			report, gotErr = r, err
		},
	}

	require.NoError(t, job.Run(context.Background()))
	require.NotNil(t, report)
	assert.Equal(t, "s1", report.SessionID)
	assert.NoError(t, gotErr)
	assert.Equal(t, []string{"s1"}, fin.seen)
	assert.Equal(t, "finalize_session", job.Name())
}

func TestFinalizeJob_CancelledBySessionContext(t *testing.T) {
	sessCtx, cancel := context.WithCancel(context.Background())
	fin := &stubFinalizer{wait: true}
	done := make(chan error, 1)
	job := &FinalizeJob{Finalizer: fin, Ctx: sessCtx, Record: session.Record{SessionID: "s2"}}

	go func() { done <- job.Run(context.Background()) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("finalize job ignored the session context")
	}
}

func TestFinalizeJob_CancelledByPoolContext(t *testing.T) {
	poolCtx, cancel := context.WithCancel(context.Background())
	fin := &stubFinalizer{wait: true}
	done := make(chan error, 1)
	job := &FinalizeJob{Finalizer: fin, Ctx: context.Background(), Record: session.Record{SessionID: "s3"}}

	go func() { done <- job.Run(poolCtx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("finalize job ignored the pool context")
	}
}
