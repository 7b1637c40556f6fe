// Package session drives one visual-search test through its rounds:
// Preview -> Active -> Scored, then Finished or Aborted.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/layout"
	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/samples"
)

const (
	DefaultPreview = 5 * time.Second

	// maxPendingRaw bounds absolute samples held while no container is known.
	maxPendingRaw = 10000

	// clockResync is how far a batch may lag the session's client clock offset
	// before the offset is re-estimated from that batch.
	clockResync = time.Second
)

// DefaultContainer is the layout area used until the client reports its own.
var DefaultContainer = layout.Size{W: 750, H: 550}

// DefaultItemSize matches the 10% x 25% image tiles of the test page.
var DefaultItemSize = layout.Percent(10, 25)

// Outcome is how a session ended.
type Outcome int

const (
	Running Outcome = iota
	Finished
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	default:
		return "running"
	}
}

// Record is everything the finalizer needs once the last round is scored.
type Record struct {
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Rounds     []models.Round
	Results    []models.RoundResult
	// Samples is keyed by 0-based round index.
	Samples map[int][]models.Sample
}

type rawSample struct {
	p coords.Point
	t time.Time
}

// ClientSample is a viewport sample stamped by the capturing client's clock.
type ClientSample struct {
	P coords.Point
	T time.Time
}

type Session struct {
	mu sync.Mutex

	id         string
	clock      Clock
	sched      Scheduler
	src        layout.Source
	gen        *layout.Generator
	agg        *samples.Aggregator
	log        *logger.Logger
	preview    time.Duration
	itemSize   layout.Dimension
	onFinished func(ctx context.Context, rec Record)

	genOpts []layout.Option
	aggOpts []samples.Option
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc

	container    coords.Rect
	hasContainer bool
	pendingRaw   []rawSample
	idleSamples  uint64
	clientOffset time.Duration
	hasOffset    bool

	phase       models.Phase
	outcome     Outcome
	rounds      []models.Round
	current     int
	results     []models.RoundResult
	flushed     map[int][]models.Sample
	timer       Timer
	previewEnds time.Time
	startedAt   time.Time
	finishedAt  time.Time
	lastErr     error
	done        chan struct{}
}

type Option func(*Session)

func WithClock(c Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

func WithScheduler(sc Scheduler) Option {
	return func(s *Session) {
		s.sched = sc
	}
}

// WithSource injects the random source used for layouts and stimulus order.
func WithSource(src layout.Source) Option {
	return func(s *Session) {
		s.src = src
	}
}

// WithPreview sets the countdown before each round. Zero means rounds only
// activate through Skip.
func WithPreview(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.preview = d
		}
	}
}

func WithItemSize(d layout.Dimension) Option {
	return func(s *Session) {
		s.itemSize = d
	}
}

func WithLayoutOptions(opts ...layout.Option) Option {
	return func(s *Session) {
		s.genOpts = append(s.genOpts, opts...)
	}
}

func WithSampleOptions(opts ...samples.Option) Option {
	return func(s *Session) {
		s.aggOpts = append(s.aggOpts, opts...)
	}
}

func WithContainer(rect coords.Rect) Option {
	return func(s *Session) {
		if !rect.Empty() {
			s.container = rect
			s.hasContainer = true
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithContext sets the parent of the session context.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		s.parent = ctx
	}
}

// OnFinished registers the hook that receives the Record after the last round.
// It runs on the goroutine that scored the round, outside the session lock.
func OnFinished(fn func(ctx context.Context, rec Record)) Option {
	return func(s *Session) {
		s.onFinished = fn
	}
}

func New(id string, opts ...Option) *Session {
	s := &Session{
		id:       id,
		clock:    SystemClock,
		sched:    SystemScheduler,
		preview:  DefaultPreview,
		itemSize: DefaultItemSize,
		parent:   context.Background(),
		phase:    models.PhaseAwaitingStart,
		flushed:  make(map[int][]models.Sample),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.src == nil {
		s.src = layout.NewSource(uint64(s.clock.Now().UnixNano()))
	}
	if s.log == nil {
		s.log = logger.Default()
	}
	s.log = s.log.WithField("session_id", id)
	s.gen = layout.NewGenerator(s.src, s.genOpts...)
	s.agg = samples.NewAggregator(append([]samples.Option{samples.WithClock(s.clock.Now)}, s.aggOpts...)...)
	s.ctx, s.cancel = context.WithCancel(s.parent)
	return s
}

func (s *Session) ID() string { return s.id }

// Context is cancelled by Cancel and Close.
func (s *Session) Context() context.Context { return s.ctx }

// Done is closed when the session reaches Finished or Aborted.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Start validates the round list and enters the preview of the first round.
func (s *Session) Start(defs []models.RoundDefinition) error {
	rounds, err := buildRounds(defs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.terminalErr(); err != nil {
		return err
	}
	if s.phase != models.PhaseAwaitingStart {
		return ErrAlreadyStarted
	}
	s.rounds = rounds
	s.startedAt = s.clock.Now()
	s.log.Info("session started: rounds=%d preview=%s", len(rounds), s.preview)
	s.enterPreview(0)
	return nil
}

// ValidateRounds reports whether defs would be accepted by Start.
func ValidateRounds(defs []models.RoundDefinition) error {
	_, err := buildRounds(defs)
	return err
}

// buildRounds checks that every definition names exactly one target among its
// stimuli and copies it into a Round.
func buildRounds(defs []models.RoundDefinition) ([]models.Round, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no rounds", ErrInvalidRounds)
	}
	rounds := make([]models.Round, len(defs))
	for i, def := range defs {
		if len(def.Stimuli) == 0 {
			return nil, fmt.Errorf("%w: round %d has no stimuli", ErrInvalidRounds, i+1)
		}
		target := def.TargetID
		seen := make(map[string]bool, len(def.Stimuli))
		flagged := 0
		for _, st := range def.Stimuli {
			if st.ID == "" {
				return nil, fmt.Errorf("%w: round %d has a stimulus without id", ErrInvalidRounds, i+1)
			}
			if seen[st.ID] {
				return nil, fmt.Errorf("%w: round %d repeats stimulus %q", ErrInvalidRounds, i+1, st.ID)
			}
			seen[st.ID] = true
			if st.IsTarget {
				flagged++
				if target == "" {
					target = st.ID
				} else if target != st.ID {
					return nil, fmt.Errorf("%w: round %d flags %q but targets %q", ErrInvalidRounds, i+1, st.ID, target)
				}
			}
		}
		if flagged > 1 {
			return nil, fmt.Errorf("%w: round %d has %d targets", ErrInvalidRounds, i+1, flagged)
		}
		if target == "" || !seen[target] {
			return nil, fmt.Errorf("%w: round %d target %q is not among its stimuli", ErrInvalidRounds, i+1, target)
		}

		stimuli := make([]models.Stimulus, len(def.Stimuli))
		copy(stimuli, def.Stimuli)
		for j := range stimuli {
			stimuli[j].IsTarget = stimuli[j].ID == target
		}
		rounds[i] = models.Round{Index: i, Stimuli: stimuli, TargetID: target}
	}
	return rounds, nil
}

// enterPreview must be called with s.mu held.
func (s *Session) enterPreview(i int) {
	s.current = i
	r := &s.rounds[i]
	layout.Shuffle(s.src, len(r.Stimuli), func(a, b int) {
		r.Stimuli[a], r.Stimuli[b] = r.Stimuli[b], r.Stimuli[a]
	})
	r.Phase = models.PhasePreview
	s.phase = models.PhasePreview
	s.lastErr = nil

	now := s.clock.Now()
	s.previewEnds = now.Add(s.preview)
	if s.preview > 0 {
		s.timer = s.sched.AfterFunc(s.preview, func() { s.previewExpired(i) })
	}
	s.log.Debug("round %d preview: target=%s", i+1, r.TargetID)
}

func (s *Session) previewExpired(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhasePreview || s.current != i {
		return
	}
	s.timer = nil
	if err := s.activate(); err != nil {
		s.log.Warn("round %d could not start: %v", i+1, err)
	}
}

// Skip ends the current preview early.
func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.terminalErr(); err != nil {
		return err
	}
	if s.phase != models.PhasePreview {
		return fmt.Errorf("%w: skip in %s", ErrWrongPhase, s.phase)
	}
	s.stopTimer()
	return s.activate()
}

// activate lays out the current round and opens it for responses. On layout
// failure the round stays in Preview. Must be called with s.mu held.
func (s *Session) activate() error {
	r := &s.rounds[s.current]

	size := DefaultContainer
	if s.hasContainer {
		size = layout.Size{W: s.container.Width, H: s.container.Height}
	}
	slots, err := s.gen.Generate(len(r.Stimuli), size, s.itemSize)
	if err != nil {
		s.lastErr = fmt.Errorf("round %d: %w", s.current+1, err)
		return s.lastErr
	}

	placements := make([]models.Placement, len(slots))
	for i, slot := range slots {
		placements[i] = models.Placement{
			StimulusID: r.Stimuli[i].ID,
			Top:        slot.Top,
			Left:       slot.Left,
			Width:      slot.Width,
			Height:     slot.Height,
		}
	}

	now := s.clock.Now()
	r.Placements = placements
	r.StartedAt = now
	r.Phase = models.PhaseActive
	s.phase = models.PhaseActive
	s.lastErr = nil
	s.agg.MarkRound(s.current, now)
	s.log.Debug("round %d active: stimuli=%d", s.current+1, len(r.Stimuli))
	return nil
}

// Respond scores the active round. Responses outside Active are ignored and
// return nil, nil; only the first response of a round counts.
func (s *Session) Respond(stimulusID string) (*models.RoundResult, error) {
	s.mu.Lock()
	result, finish, err := s.respond(stimulusID)
	s.mu.Unlock()

	if finish != nil {
		finish()
	}
	return result, err
}

func (s *Session) respond(stimulusID string) (*models.RoundResult, func(), error) {
	if s.phase != models.PhaseActive {
		s.log.Debug("response ignored in %s: stimulus=%s", s.phase, stimulusID)
		return nil, nil, nil
	}
	r := &s.rounds[s.current]
	if !hasStimulus(r.Stimuli, stimulusID) {
		return nil, nil, fmt.Errorf("%w: %q in round %d", ErrUnknownStimulus, stimulusID, s.current+1)
	}

	now := s.clock.Now()
	outcome := models.OutcomeIncorrect
	if stimulusID == r.TargetID {
		outcome = models.OutcomeCorrect
	}
	batch := s.agg.FlushRound(s.current)
	s.flushed[s.current] = batch

	result := models.RoundResult{
		Round:          s.current + 1,
		ReactionTimeMs: now.Sub(r.StartedAt).Milliseconds(),
		Outcome:        outcome,
		RawSampleCount: len(batch),
		StimulusID:     stimulusID,
	}
	s.results = append(s.results, result)
	r.Phase = models.PhaseScored
	s.phase = models.PhaseScored
	s.log.Info("round %d scored: result=%s reaction_ms=%d samples=%d", result.Round, outcome, result.ReactionTimeMs, len(batch))

	s.agg.Reset()
	if s.current+1 < len(s.rounds) {
		s.enterPreview(s.current + 1)
		return &result, nil, nil
	}

	s.phase = models.PhaseFinished
	s.outcome = Finished
	s.finishedAt = now
	close(s.done)
	s.log.Info("session finished: correct=%d rounds=%d", countCorrect(s.results), len(s.results))

	rec := s.record()
	var finish func()
	if s.onFinished != nil {
		hook, ctx := s.onFinished, s.ctx
		finish = func() { hook(ctx, rec) }
	}
	return &result, finish, nil
}

func hasStimulus(stimuli []models.Stimulus, id string) bool {
	for _, st := range stimuli {
		if st.ID == id {
			return true
		}
	}
	return false
}

func countCorrect(results []models.RoundResult) int {
	n := 0
	for _, r := range results {
		if r.Correct() {
			n++
		}
	}
	return n
}

// record must be called with s.mu held.
func (s *Session) record() Record {
	rounds := make([]models.Round, len(s.rounds))
	copy(rounds, s.rounds)
	results := make([]models.RoundResult, len(s.results))
	copy(results, s.results)
	batches := make(map[int][]models.Sample, len(s.flushed))
	for i, b := range s.flushed {
		batches[i] = b
	}
	return Record{
		SessionID:  s.id,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
		Rounds:     rounds,
		Results:    results,
		Samples:    batches,
	}
}

// Record returns the finished session's record.
func (s *Session) Record() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.outcome {
	case Finished:
		return s.record(), nil
	case Aborted:
		return Record{}, ErrSessionAborted
	default:
		return Record{}, fmt.Errorf("%w: record in %s", ErrWrongPhase, s.phase)
	}
}

// accepting reports whether samples can belong to a round right now. Samples
// arriving outside the Active phase are counted and dropped.
func (s *Session) accepting(n int) bool {
	if s.outcome != Running {
		return false
	}
	if s.phase != models.PhaseActive {
		s.idleSamples += uint64(n)
		return false
	}
	return true
}

// Ingest buffers a container-relative sample stamped by the session clock.
func (s *Session) Ingest(sample models.Sample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting(1) {
		return false
	}
	return s.agg.Ingest(sample)
}

// IngestAbsolute buffers a viewport sample stamped by the session clock. Until
// the container rect is known it is held raw and normalized by SetContainer.
func (s *Session) IngestAbsolute(p coords.Point, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting(1) {
		return false
	}
	return s.holdOrIngest(p, t)
}

// IngestClient rebases a batch stamped by the client's clock onto the session
// clock and buffers it, returning how many samples were accepted.
//
// The newest sample of a batch is taken to be no later than its arrival. The
// offset only shrinks across batches so rebased stamps never land in the
// future, unless a batch lags it by more than clockResync, in which case the
// offset is re-estimated.
func (s *Session) IngestClient(batch []ClientSample) int {
	if len(batch) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accepting(len(batch)) {
		return 0
	}

	newest := batch[0].T
	for _, c := range batch[1:] {
		if c.T.After(newest) {
			newest = c.T
		}
	}
	est := s.clock.Now().Sub(newest)
	if !s.hasOffset || est < s.clientOffset || est-s.clientOffset > clockResync {
		if s.hasOffset && est-s.clientOffset > clockResync {
			s.log.Debug("client clock resync: offset %s -> %s", s.clientOffset, est)
		}
		s.clientOffset = est
		s.hasOffset = true
	}

	accepted := 0
	for _, c := range batch {
		if s.holdOrIngest(c.P, c.T.Add(s.clientOffset)) {
			accepted++
		}
	}
	return accepted
}

func (s *Session) holdOrIngest(p coords.Point, t time.Time) bool {
	if !s.hasContainer {
		if len(s.pendingRaw) >= maxPendingRaw {
			return false
		}
		s.pendingRaw = append(s.pendingRaw, rawSample{p: p, t: t})
		return true
	}
	return s.ingestAbsolute(p, t)
}

func (s *Session) ingestAbsolute(p coords.Point, t time.Time) bool {
	rel, err := coords.ToRelative(p, s.container)
	if err != nil {
		return false
	}
	return s.agg.Ingest(models.Sample{X: rel.X, Y: rel.Y, T: t})
}

// SetContainer records the container rect in viewport pixels and normalizes
// any samples held while it was unknown. A resize applies to later samples and
// layouts; placements already generated are fractional and stay valid.
func (s *Session) SetContainer(rect coords.Rect) error {
	if rect.Empty() {
		return coords.ErrEmptyRect
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.terminalErr(); err != nil {
		return err
	}
	s.container = rect
	s.hasContainer = true
	if n := len(s.pendingRaw); n > 0 {
		for _, raw := range s.pendingRaw {
			s.ingestAbsolute(raw.p, raw.t)
		}
		s.pendingRaw = nil
		s.log.Debug("normalized %d held samples", n)
	}
	return nil
}

// SetItemSize changes the stimulus size used by the next layout.
func (s *Session) SetItemSize(d layout.Dimension) error {
	if d.W <= 0 || d.H <= 0 {
		return fmt.Errorf("%w: item size %.2fx%.2f", ErrInvalidRounds, d.W, d.H)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.terminalErr(); err != nil {
		return err
	}
	s.itemSize = d
	return nil
}

// Cancel aborts the session without finalizing. Cancelling an aborted session
// is a no-op; a finished one returns ErrSessionFinished.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.outcome {
	case Aborted:
		return nil
	case Finished:
		return ErrSessionFinished
	}
	s.stopTimer()
	s.cancel()
	s.agg.Reset()
	s.pendingRaw = nil
	s.flushed = make(map[int][]models.Sample)
	if s.current < len(s.rounds) {
		s.rounds[s.current].Phase = models.PhaseAborted
	}
	s.phase = models.PhaseAborted
	s.outcome = Aborted
	s.finishedAt = s.clock.Now()
	close(s.done)
	s.log.Info("session aborted: rounds_scored=%d", len(s.results))
	return nil
}

// Close releases the session context once the caller is done with it.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimer()
	s.cancel()
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) terminalErr() error {
	switch s.outcome {
	case Finished:
		return ErrSessionFinished
	case Aborted:
		return ErrSessionAborted
	}
	return nil
}
