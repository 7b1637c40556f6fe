package session

import (
	"time"

	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/samples"
)

// Snapshot is the live view a client renders: the target during Preview, the
// placements during Active and the results so far.
type Snapshot struct {
	SessionID          string               `json:"session_id"`
	Phase              models.Phase         `json:"phase"`
	Outcome            string               `json:"outcome"`
	Round              int                  `json:"round"`
	TotalRounds        int                  `json:"total_rounds"`
	PreviewRemainingMs int64                `json:"preview_remaining_ms"`
	Target             *models.Stimulus     `json:"target,omitempty"`
	Placements         []models.Placement   `json:"placements,omitempty"`
	Stimuli            []models.Stimulus    `json:"stimuli,omitempty"`
	Results            []models.RoundResult `json:"results"`
	Samples            samples.Stats        `json:"samples"`
	PendingRawSamples  int                  `json:"pending_raw_samples"`
	IdleSamples        uint64               `json:"idle_samples"`
	HasContainer       bool                 `json:"has_container"`
	LastError          string               `json:"last_error,omitempty"`
	StartedAt          *time.Time           `json:"started_at,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:         s.id,
		Phase:             s.phase,
		Outcome:           s.outcome.String(),
		TotalRounds:       len(s.rounds),
		Results:           make([]models.RoundResult, len(s.results)),
		Samples:           s.agg.Stats(),
		PendingRawSamples: len(s.pendingRaw),
		IdleSamples:       s.idleSamples,
		HasContainer:      s.hasContainer,
	}
	copy(snap.Results, s.results)
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		snap.StartedAt = &started
	}
	if len(s.rounds) == 0 {
		return snap
	}

	snap.Round = s.current + 1
	r := s.rounds[s.current]
	switch s.phase {
	case models.PhasePreview:
		if s.preview > 0 {
			if remaining := s.previewEnds.Sub(s.clock.Now()); remaining > 0 {
				snap.PreviewRemainingMs = remaining.Milliseconds()
			}
		}
		for _, st := range r.Stimuli {
			if st.ID == r.TargetID {
				target := st
				snap.Target = &target
				break
			}
		}
	case models.PhaseActive:
		snap.Stimuli = make([]models.Stimulus, len(r.Stimuli))
		for i, st := range r.Stimuli {
			st.IsTarget = false
			snap.Stimuli[i] = st
		}
		snap.Placements = make([]models.Placement, len(r.Placements))
		copy(snap.Placements, r.Placements)
	}
	return snap
}
