package services

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/errors"
	"github.com/vytor/gazetest/internal/finalize"
	"github.com/vytor/gazetest/internal/jobs"
	"github.com/vytor/gazetest/internal/layout"
	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/repository"
	"github.com/vytor/gazetest/internal/roundset"
	"github.com/vytor/gazetest/internal/samples"
	"github.com/vytor/gazetest/internal/session"
)

// CreateSessionRequest carries either explicit rounds or the parameters to
// build them from the stimulus catalog.
type CreateSessionRequest struct {
	PatientRef string                   `json:"patient_ref"`
	Name       string                   `json:"name"`
	Kind       string                   `json:"kind"`
	Rounds     []models.RoundDefinition `json:"rounds,omitempty"`
	Build      *roundset.Params         `json:"build,omitempty"`
}

// AbsoluteSample is a gaze or pointer observation in viewport pixels with a
// Unix millisecond timestamp from the client's clock. Batches are rebased onto
// the server clock on ingest.
type AbsoluteSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t"`
}

// SessionService runs tests: stored sessions plus the live state machines of
// the ones currently in progress.
type SessionService interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	StartSession(ctx context.Context, id string, container *coords.Rect) (*session.Snapshot, error)
	SetContainer(ctx context.Context, id string, rect coords.Rect) error
	Skip(ctx context.Context, id string) (*session.Snapshot, error)
	IngestSamples(ctx context.Context, id string, batch []AbsoluteSample) (int, error)
	// Respond returns nil when the response was ignored (no round active).
	Respond(ctx context.Context, id, stimulusID string) (*models.RoundResult, error)
	CancelSession(ctx context.Context, id string) error
	State(ctx context.Context, id string) (*session.Snapshot, error)
	Summary(ctx context.Context, id string) (*models.SessionSummary, error)
	FinalizationDone(rec session.Record, report *finalize.Report, err error)
	LiveCount() int
	Shutdown()
}

// RuntimeConfig tunes the state machines the service creates.
type RuntimeConfig struct {
	Preview           time.Duration
	SampleMinGap      time.Duration
	LayoutMaxAttempts int
	Clock             session.Clock
	Scheduler         session.Scheduler
	// NewSource, when set, seeds each session's random source.
	NewSource func(sessionID string) layout.Source
}

type sessionService struct {
	sessions repository.SessionRepository
	results  repository.ResultRepository
	queue    jobs.JobQueue
	catalog  *roundset.Catalog
	runtime  RuntimeConfig

	mu   sync.Mutex
	live map[string]*session.Session
}

// NewSessionService creates a new SessionService. catalog may be nil, in which
// case sessions must be created with explicit rounds.
func NewSessionService(sessions repository.SessionRepository, results repository.ResultRepository, queue jobs.JobQueue, catalog *roundset.Catalog, runtime RuntimeConfig) SessionService {
	if runtime.Clock == nil {
		runtime.Clock = session.SystemClock
	}
	if runtime.Scheduler == nil {
		runtime.Scheduler = session.SystemScheduler
	}
	return &sessionService{
		sessions: sessions,
		results:  results,
		queue:    queue,
		catalog:  catalog,
		runtime:  runtime,
		live:     make(map[string]*session.Session),
	}
}

func (s *sessionService) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	log := logger.FromContext(ctx)
	log.Debug("creating session: patient=%s kind=%s", req.PatientRef, req.Kind)

	if strings.TrimSpace(req.PatientRef) == "" {
		return nil, errors.NewValidationError("patient_ref", "cannot be empty")
	}

	defs := req.Rounds
	if len(defs) == 0 {
		if req.Build == nil {
			return nil, errors.NewValidationError("rounds", "provide rounds or build parameters")
		}
		if s.catalog == nil {
			return nil, errors.NewValidationError("build", "no stimulus catalog configured")
		}
		built, err := roundset.Build(s.catalog, *req.Build, s.buildSource())
		if err != nil {
			return nil, errors.NewValidationError("build", err.Error())
		}
		defs = built
	}
	if err := session.ValidateRounds(defs); err != nil {
		return nil, errors.NewValidationError("rounds", err.Error())
	}

	kind := req.Kind
	if kind == "" {
		kind = "caras"
	}
	sess := models.Session{
		ID:         uuid.NewString(),
		PatientRef: req.PatientRef,
		Name:       req.Name,
		Kind:       kind,
		Status:     models.SessionPending,
		Rounds:     defs,
		CreatedAt:  s.runtime.Clock.Now().UTC(),
	}
	if err := s.sessions.Insert(ctx, sess); err != nil {
		log.Error("failed to insert session: %v", err)
		return nil, errors.NewInternalError(err)
	}

	log.Info("session created: id=%s rounds=%d", sess.ID, len(defs))
	return &sess, nil
}

func (s *sessionService) buildSource() layout.Source {
	if s.runtime.NewSource != nil {
		return s.runtime.NewSource("")
	}
	return layout.NewSource(uint64(s.runtime.Clock.Now().UnixNano()))
}

func (s *sessionService) ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	log := logger.FromContext(ctx)
	log.Debug("listing sessions: status=%s patient=%s", filter.Status, filter.PatientRef)

	list, err := s.sessions.List(ctx, filter)
	if err != nil {
		log.Error("failed to list sessions: %v", err)
		return nil, 0, errors.NewInternalError(err)
	}
	total, err := s.sessions.Count(ctx, filter)
	if err != nil {
		log.Error("failed to count sessions: %v", err)
		return nil, 0, errors.NewInternalError(err)
	}
	return list, total, nil
}

func (s *sessionService) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("session", id)
		}
		logger.FromContext(ctx).Error("failed to get session: %v", err)
		return nil, errors.NewInternalError(err)
	}
	return sess, nil
}

func (s *sessionService) StartSession(ctx context.Context, id string, container *coords.Rect) (*session.Snapshot, error) {
	log := logger.FromContext(ctx).WithField("session_id", id)

	if container != nil && container.Empty() {
		return nil, errors.NewValidationError("container", coords.ErrEmptyRect.Error())
	}
	stored, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	switch stored.Status {
	case models.SessionPending:
	case models.SessionAborted:
		return nil, errors.NewSessionAbortedError(id)
	default:
		return nil, errors.NewConflictError("session already started", session.ErrAlreadyStarted)
	}

	opts := []session.Option{
		session.WithClock(s.runtime.Clock),
		session.WithScheduler(s.runtime.Scheduler),
		session.WithPreview(s.runtime.Preview),
		session.WithLogger(logger.Default().WithPrefix("session")),
		session.WithSampleOptions(samples.WithMinGap(s.runtime.SampleMinGap)),
		session.OnFinished(s.onFinished),
	}
	if s.runtime.LayoutMaxAttempts > 0 {
		opts = append(opts, session.WithLayoutOptions(layout.WithMaxAttempts(s.runtime.LayoutMaxAttempts)))
	}
	if s.runtime.NewSource != nil {
		opts = append(opts, session.WithSource(s.runtime.NewSource(id)))
	}
	if container != nil {
		opts = append(opts, session.WithContainer(*container))
	}

	s.mu.Lock()
	if _, ok := s.live[id]; ok {
		s.mu.Unlock()
		return nil, errors.NewConflictError("session already running", session.ErrAlreadyStarted)
	}
	// The runtime outlives the request that starts it.
	sess := session.New(id, opts...)
	s.live[id] = sess
	s.mu.Unlock()

	if err := s.sessions.MarkStarted(ctx, id, s.runtime.Clock.Now().UTC()); err != nil {
		s.drop(id)
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewConflictError("session is no longer pending", err)
		}
		log.Error("failed to mark session started: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if err := sess.Start(stored.Rounds); err != nil {
		s.drop(id)
		s.markAborted(ctx, id)
		return nil, mapSessionError(id, err)
	}

	log.Info("session running: rounds=%d", len(stored.Rounds))
	snap := sess.Snapshot()
	return &snap, nil
}

func (s *sessionService) onFinished(ctx context.Context, rec session.Record) {
	log := logger.FromContext(ctx).WithField("session_id", rec.SessionID)
	if err := s.queue.EnqueueFinalize(ctx, rec); err != nil {
		// The summary is never written, so the session stays incomplete.
		log.Error("failed to queue finalization: %v", err)
		s.drop(rec.SessionID)
		return
	}
	log.Debug("finalization queued: pending=%d", s.queue.QueueSize())
}

func (s *sessionService) FinalizationDone(rec session.Record, report *finalize.Report, err error) {
	log := logger.Default().WithField("session_id", rec.SessionID)
	switch {
	case err != nil:
		log.Error("finalization failed, session left incomplete: %v", err)
	case report.Degraded():
		log.Warn("finalization degraded: failed_rounds=%d", len(report.FailedRounds))
	default:
		log.Info("finalization complete")
	}
	s.drop(rec.SessionID)
}

func (s *sessionService) running(id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live[id]
	if !ok {
		return nil, errors.NewNotFoundError("running session", id)
	}
	return sess, nil
}

// drop removes a session from the live set and releases its context.
func (s *sessionService) drop(id string) {
	s.mu.Lock()
	sess, ok := s.live[id]
	delete(s.live, id)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
}

func (s *sessionService) markAborted(ctx context.Context, id string) {
	if err := s.sessions.UpdateStatus(ctx, id, models.SessionAborted, s.runtime.Clock.Now().UTC()); err != nil {
		logger.FromContext(ctx).Error("failed to mark session aborted: id=%s err=%v", id, err)
	}
}

func (s *sessionService) SetContainer(ctx context.Context, id string, rect coords.Rect) error {
	sess, err := s.running(id)
	if err != nil {
		return err
	}
	if err := sess.SetContainer(rect); err != nil {
		return mapSessionError(id, err)
	}
	logger.FromContext(ctx).Debug("container set: id=%s rect=%.0fx%.0f@%.0f,%.0f", id, rect.Width, rect.Height, rect.Left, rect.Top)
	return nil
}

func (s *sessionService) Skip(ctx context.Context, id string) (*session.Snapshot, error) {
	sess, err := s.running(id)
	if err != nil {
		return nil, err
	}
	if err := sess.Skip(); err != nil {
		logger.FromContext(ctx).Warn("skip rejected: id=%s err=%v", id, err)
		return nil, mapSessionError(id, err)
	}
	snap := sess.Snapshot()
	return &snap, nil
}

func (s *sessionService) IngestSamples(ctx context.Context, id string, batch []AbsoluteSample) (int, error) {
	sess, err := s.running(id)
	if err != nil {
		return 0, err
	}
	stamped := make([]session.ClientSample, len(batch))
	for i, smp := range batch {
		stamped[i] = session.ClientSample{P: coords.Point{X: smp.X, Y: smp.Y}, T: time.UnixMilli(smp.T)}
	}
	accepted := sess.IngestClient(stamped)
	logger.FromContext(ctx).Debug("samples ingested: id=%s received=%d accepted=%d", id, len(batch), accepted)
	return accepted, nil
}

func (s *sessionService) Respond(ctx context.Context, id, stimulusID string) (*models.RoundResult, error) {
	if stimulusID == "" {
		return nil, errors.NewValidationError("stimulus_id", "cannot be empty")
	}
	sess, err := s.running(id)
	if err != nil {
		return nil, err
	}
	result, err := sess.Respond(stimulusID)
	if err != nil {
		return nil, mapSessionError(id, err)
	}
	return result, nil
}

func (s *sessionService) CancelSession(ctx context.Context, id string) error {
	log := logger.FromContext(ctx).WithField("session_id", id)

	s.mu.Lock()
	sess, ok := s.live[id]
	s.mu.Unlock()

	if ok {
		if err := sess.Cancel(); err != nil {
			return mapSessionError(id, err)
		}
		s.drop(id)
		s.markAborted(ctx, id)
		log.Info("session cancelled")
		return nil
	}

	stored, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	switch stored.Status {
	case models.SessionAborted:
		return nil
	case models.SessionCompleted:
		return errors.NewConflictError("session already finished", session.ErrSessionFinished)
	}
	s.markAborted(ctx, id)
	log.Info("session cancelled before running: status=%s", stored.Status)
	return nil
}

func (s *sessionService) State(ctx context.Context, id string) (*session.Snapshot, error) {
	s.mu.Lock()
	sess, ok := s.live[id]
	s.mu.Unlock()
	if ok {
		snap := sess.Snapshot()
		return &snap, nil
	}

	stored, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := &session.Snapshot{
		SessionID:   id,
		TotalRounds: len(stored.Rounds),
		Results:     []models.RoundResult{},
		StartedAt:   stored.StartedAt,
	}
	switch stored.Status {
	case models.SessionPending:
		snap.Phase, snap.Outcome = models.PhaseAwaitingStart, session.Running.String()
	case models.SessionAborted:
		snap.Phase, snap.Outcome = models.PhaseAborted, session.Aborted.String()
	case models.SessionCompleted:
		snap.Phase, snap.Outcome = models.PhaseFinished, session.Finished.String()
	default:
		// in_progress without a runtime: interrupted before a summary was stored.
		snap.Phase, snap.Outcome = models.PhaseAborted, session.Aborted.String()
		snap.LastError = "session is not running and has no summary"
	}
	return snap, nil
}

func (s *sessionService) Summary(ctx context.Context, id string) (*models.SessionSummary, error) {
	summary, err := s.results.GetSummary(ctx, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("summary", id)
		}
		logger.FromContext(ctx).Error("failed to get summary: %v", err)
		return nil, errors.NewInternalError(err)
	}
	return summary, nil
}

func (s *sessionService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown cancels every running session. Finished sessions waiting for their
// finalization are left alone.
func (s *sessionService) Shutdown() {
	s.mu.Lock()
	running := make([]*session.Session, 0, len(s.live))
	for _, sess := range s.live {
		running = append(running, sess)
	}
	s.mu.Unlock()

	for _, sess := range running {
		if sess.Outcome() == session.Running {
			_ = sess.Cancel()
			s.markAborted(context.Background(), sess.ID())
			s.drop(sess.ID())
		}
	}
}

// mapSessionError converts engine errors into AppErrors.
func mapSessionError(id string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, session.ErrSessionAborted):
		return errors.NewSessionAbortedError(id)
	case stderrors.Is(err, session.ErrSessionFinished),
		stderrors.Is(err, session.ErrAlreadyStarted),
		stderrors.Is(err, session.ErrWrongPhase):
		return errors.NewConflictError(err.Error(), err)
	case stderrors.Is(err, layout.ErrLayoutUnsatisfiable):
		return errors.NewLayoutUnsatisfiableError(err)
	case stderrors.Is(err, session.ErrUnknownStimulus):
		return errors.NewValidationError("stimulus_id", err.Error())
	case stderrors.Is(err, session.ErrInvalidRounds):
		return errors.NewValidationError("rounds", err.Error())
	case stderrors.Is(err, coords.ErrEmptyRect):
		return errors.NewValidationError("container", err.Error())
	case stderrors.Is(err, finalize.ErrStorageWriteFailed):
		return errors.NewStorageWriteFailedError(err)
	default:
		return errors.NewInternalError(err)
	}
}
