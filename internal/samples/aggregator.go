// Package samples buffers gaze/pointer samples per round and turns them into
// density maps and CSV payloads.
package samples

import (
	"sort"
	"sync"
	"time"

	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/models"
)

const (
	DefaultMinGap = 100 * time.Millisecond
	// DefaultMaxAhead bounds how far past the aggregator clock a sample may be
	// stamped before it is rejected.
	DefaultMaxAhead = time.Second
)

type Stats struct {
	Accepted    uint64 `json:"accepted"`
	OutOfBounds uint64 `json:"out_of_bounds"`
	Throttled   uint64 `json:"throttled"`
	Future      uint64 `json:"future"`
	Buffered    int    `json:"buffered"`
}

// Aggregator is safe for concurrent use: the sample source and the round state
// machine deliver independently.
type Aggregator struct {
	mu       sync.Mutex
	minGap   time.Duration
	maxAhead time.Duration
	now      func() time.Time
	buf      []models.Sample
	last     time.Time
	hasLast  bool
	bounds   map[int]time.Time
	stats    Stats
}

type Option func(*Aggregator)

// WithMinGap sets the throttle between accepted samples. Zero disables it.
func WithMinGap(d time.Duration) Option {
	return func(a *Aggregator) {
		if d >= 0 {
			a.minGap = d
		}
	}
}

// WithMaxAhead sets the tolerance for samples stamped after the aggregator
// clock.
func WithMaxAhead(d time.Duration) Option {
	return func(a *Aggregator) {
		if d >= 0 {
			a.maxAhead = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		minGap:   DefaultMinGap,
		maxAhead: DefaultMaxAhead,
		now:      time.Now,
		bounds:   make(map[int]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest buffers s unless it falls outside the container, is stamped beyond the
// clock tolerance, or arrives within the throttle gap of the last accepted
// sample. Rejected samples never move the throttle anchor.
func (a *Aggregator) Ingest(s models.Sample) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !coords.InUnitSquare(coords.Point{X: s.X, Y: s.Y}) {
		a.stats.OutOfBounds++
		return false
	}
	if s.T.After(a.now().Add(a.maxAhead)) {
		a.stats.Future++
		return false
	}
	if a.hasLast && s.T.Sub(a.last) < a.minGap {
		a.stats.Throttled++
		return false
	}
	a.buf = append(a.buf, s)
	a.last = s.T
	a.hasLast = true
	a.stats.Accepted++
	return true
}

// MarkRound records when round i became active and restarts the throttle.
func (a *Aggregator) MarkRound(i int, start time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bounds[i] = start
	a.hasLast = false
}

// FlushRound removes and returns the samples of round i: start_i <= t and, when
// round i+1 has started, t < start_{i+1}; otherwise t <= now. Calling it again
// returns an empty slice.
func (a *Aggregator) FlushRound(i int) []models.Sample {
	a.mu.Lock()
	defer a.mu.Unlock()

	start, ok := a.bounds[i]
	if !ok {
		return []models.Sample{}
	}
	end, hasNext := a.bounds[i+1]
	now := a.now()

	out := make([]models.Sample, 0)
	kept := a.buf[:0]
	for _, s := range a.buf {
		inRound := !s.T.Before(start)
		if hasNext {
			inRound = inRound && s.T.Before(end)
		} else {
			inRound = inRound && !s.T.After(now)
		}
		if inRound {
			out = append(out, s)
		} else {
			kept = append(kept, s)
		}
	}
	a.buf = kept

	sort.SliceStable(out, func(x, y int) bool { return out[x].T.Before(out[y].T) })
	return out
}

// Reset drops every buffered sample and the throttle anchor. Round boundaries
// and counters survive.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = nil
	a.last = time.Time{}
	a.hasLast = false
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stats
	st.Buffered = len(a.buf)
	return st
}
