package models

import "time"

type Stimulus struct {
	ID       string `json:"id" yaml:"id"`
	Folder   string `json:"folder" yaml:"folder"`
	File     string `json:"file" yaml:"file"`
	URL      string `json:"url" yaml:"url"`
	IsTarget bool   `json:"is_target,omitempty" yaml:"-"`
}

// RoundDefinition is what callers hand to the state machine: the stimuli of one
// round and which of them is the target.
type RoundDefinition struct {
	Stimuli  []Stimulus `json:"images"`
	TargetID string     `json:"target_id"`
	Folder   string     `json:"target_folder,omitempty"`
}

// Placement is a stimulus rectangle expressed in fractions (0-1) of the
// container box.
type Placement struct {
	StimulusID string  `json:"stimulus_id"`
	Top        float64 `json:"top"`
	Left       float64 `json:"left"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

type Phase string

const (
	PhaseAwaitingStart Phase = "awaiting_start"
	PhasePreview       Phase = "preview"
	PhaseActive        Phase = "active"
	PhaseScored        Phase = "scored"
	PhaseFinished      Phase = "finished"
	PhaseAborted       Phase = "aborted"
)

type Round struct {
	Index      int         `json:"index"`
	Stimuli    []Stimulus  `json:"stimuli"`
	TargetID   string      `json:"target_id"`
	Placements []Placement `json:"placements"`
	StartedAt  time.Time   `json:"started_at"`
	Phase      Phase       `json:"phase"`
}

type Outcome string

const (
	OutcomeCorrect   Outcome = "acertado"
	OutcomeIncorrect Outcome = "fallado"
)

// RoundResult is append-only. Round is 1-based.
type RoundResult struct {
	Round          int     `json:"round"`
	ReactionTimeMs int64   `json:"reaction_time_ms"`
	Outcome        Outcome `json:"result"`
	RawSampleCount int     `json:"raw_sample_count"`
	StimulusID     string  `json:"stimulus_id"`
}

func (r RoundResult) Correct() bool {
	return r.Outcome == OutcomeCorrect
}
