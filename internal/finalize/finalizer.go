// Package finalize turns a finished session record into durable artifacts:
// per-round sample CSVs, the reaction log, the summary row, and finally the
// completed status.
package finalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/repository"
	"github.com/vytor/gazetest/internal/samples"
	"github.com/vytor/gazetest/internal/session"
	"github.com/vytor/gazetest/internal/storage"
)

const (
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultConcurrency = 4
)

var ErrStorageWriteFailed = errors.New("storage write failed")

// RoundFailure is a per-round artifact that could not be stored after retries.
type RoundFailure struct {
	Round   int    `json:"round"`
	Message string `json:"error"`
	err     error
}

func (f RoundFailure) Err() error { return f.err }

type Report struct {
	SessionID    string                `json:"session_id"`
	Summary      models.SessionSummary `json:"summary"`
	ReactionLog  string                `json:"reaction_log"`
	Rounds       []models.RoundData    `json:"rounds"`
	FailedRounds []RoundFailure        `json:"failed_rounds,omitempty"`
}

// Degraded reports whether some replay artifacts were lost. The session is
// still complete.
func (r *Report) Degraded() bool {
	return len(r.FailedRounds) > 0
}

type Finalizer struct {
	blobs       storage.BlobStore
	results     repository.ResultRepository
	sessions    repository.SessionRepository
	bucket      string
	maxRetries  uint64
	baseDelay   time.Duration
	concurrency int
	now         func() time.Time
}

type Option func(*Finalizer)

func WithMaxRetries(n int) Option {
	return func(f *Finalizer) {
		if n >= 0 {
			f.maxRetries = uint64(n)
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(f *Finalizer) {
		if d > 0 {
			f.baseDelay = d
		}
	}
}

// WithConcurrency bounds parallel round uploads.
func WithConcurrency(n int) Option {
	return func(f *Finalizer) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

func WithBucket(b string) Option {
	return func(f *Finalizer) {
		if b != "" {
			f.bucket = b
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(f *Finalizer) {
		f.now = now
	}
}

func New(blobs storage.BlobStore, results repository.ResultRepository, sessions repository.SessionRepository, opts ...Option) *Finalizer {
	f := &Finalizer{
		blobs:       blobs,
		results:     results,
		sessions:    sessions,
		bucket:      storage.EyeTrackingBucket,
		maxRetries:  DefaultMaxRetries,
		baseDelay:   DefaultBaseDelay,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RoundPath is where the raw samples of round n (1-based) are stored.
func RoundPath(sessionID string, n int) string {
	return fmt.Sprintf("%s/round_%d.csv", sessionID, n)
}

// Finalize stores every artifact of rec. Per-round failures degrade the report;
// a reaction log, summary or status failure returns ErrStorageWriteFailed and
// leaves the session incomplete. The session is marked completed only after
// its summary is stored.
func (f *Finalizer) Finalize(ctx context.Context, rec session.Record) (*Report, error) {
	log := logger.FromContext(ctx).WithPrefix("finalize").WithField("session_id", rec.SessionID)
	log.Info("finalizing session: rounds=%d results=%d", len(rec.Rounds), len(rec.Results))

	if len(rec.Results) > len(rec.Rounds) {
		return nil, fmt.Errorf("finalize %s: %d results for %d rounds", rec.SessionID, len(rec.Results), len(rec.Rounds))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{SessionID: rec.SessionID}
	if err := f.storeRounds(ctx, rec, report); err != nil {
		log.Warn("finalization aborted during round uploads: %v", err)
		return nil, err
	}

	reactionLog, err := ReactionLogCSV(rec.Results)
	if err != nil {
		return nil, err
	}
	report.ReactionLog = reactionLog
	err = f.withRetry(ctx, "reaction log", func(ctx context.Context) error {
		return f.results.UpsertReactionLog(ctx, models.ReactionLog{
			SessionID: rec.SessionID,
			CSV:       reactionLog,
			Rounds:    len(rec.Results),
		})
	})
	if err != nil {
		return nil, f.writeFailed(ctx, "reaction log", err)
	}

	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = f.now()
	}
	summary := Summarize(rec.SessionID, rec.Results, rec.StartedAt, finishedAt)
	report.Summary = summary
	if err := f.withRetry(ctx, "summary", func(ctx context.Context) error {
		return f.results.UpsertSummary(ctx, summary)
	}); err != nil {
		return nil, f.writeFailed(ctx, "summary", err)
	}

	if err := f.withRetry(ctx, "completion", func(ctx context.Context) error {
		return f.sessions.UpdateStatus(ctx, rec.SessionID, models.SessionCompleted, finishedAt)
	}); err != nil {
		return nil, f.writeFailed(ctx, "completion", err)
	}

	if report.Degraded() {
		log.Warn("session completed with %d lost round artifacts", len(report.FailedRounds))
	} else {
		log.Info("session completed: correct=%d errors=%d duration=%.0fs", summary.CorrectCount, summary.ErrorCount, summary.DurationSec)
	}
	return report, nil
}

// storeRounds uploads each round's CSV and upserts its round_data row. Only a
// cancelled context is returned; exhausted retries land in report.FailedRounds.
func (f *Finalizer) storeRounds(ctx context.Context, rec session.Record, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	var mu sync.Mutex
	for i := range rec.Rounds {
		round := rec.Rounds[i]
		batch := rec.Samples[i]
		n := i + 1
		g.Go(func() error {
			rd, err := f.storeRound(gctx, rec.SessionID, n, round, batch)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				report.FailedRounds = append(report.FailedRounds, RoundFailure{Round: n, Message: err.Error(), err: err})
				mu.Unlock()
				return nil
			}
			mu.Lock()
			report.Rounds = append(report.Rounds, *rd)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sort.Slice(report.Rounds, func(i, j int) bool { return report.Rounds[i].RoundNumber < report.Rounds[j].RoundNumber })
	sort.Slice(report.FailedRounds, func(i, j int) bool { return report.FailedRounds[i].Round < report.FailedRounds[j].Round })
	return nil
}

func (f *Finalizer) storeRound(ctx context.Context, sessionID string, n int, round models.Round, batch []models.Sample) (*models.RoundData, error) {
	var buf bytes.Buffer
	if err := samples.EncodeCSV(&buf, batch); err != nil {
		return nil, err
	}
	path := RoundPath(sessionID, n)
	if err := f.withRetry(ctx, fmt.Sprintf("round %d upload", n), func(ctx context.Context) error {
		return f.blobs.Put(ctx, f.bucket, path, buf.Bytes())
	}); err != nil {
		return nil, fmt.Errorf("%w: round %d upload: %w", ErrStorageWriteFailed, n, err)
	}

	rd := models.RoundData{
		SessionID:   sessionID,
		RoundNumber: n,
		Placements:  round.Placements,
		CSVPath:     path,
		SampleCount: len(batch),
	}
	if err := f.withRetry(ctx, fmt.Sprintf("round %d row", n), func(ctx context.Context) error {
		return f.results.UpsertRoundData(ctx, rd)
	}); err != nil {
		return nil, fmt.Errorf("%w: round %d row: %w", ErrStorageWriteFailed, n, err)
	}
	return &rd, nil
}

// withRetry retries fn with exponential backoff. Context errors and invalid
// paths are not retried.
func (f *Finalizer) withRetry(ctx context.Context, what string, fn func(context.Context) error) error {
	log := logger.FromContext(ctx).WithPrefix("finalize")
	b := retry.WithMaxRetries(f.maxRetries, retry.NewExponential(f.baseDelay))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, storage.ErrInvalidPath) {
			return err
		}
		log.Warn("%s failed (attempt %d): %v", what, attempt, err)
		return retry.RetryableError(err)
	})
}

func (f *Finalizer) writeFailed(ctx context.Context, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	logger.FromContext(ctx).WithPrefix("finalize").Error("%s write failed after retries: %v", what, err)
	return fmt.Errorf("%w: %s: %w", ErrStorageWriteFailed, what, err)
}
