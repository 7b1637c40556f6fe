package models

import "time"

// Session statuses. A session without a summary row is never treated as
// complete, whatever its status says.
const (
	SessionPending    = "pending"
	SessionInProgress = "in_progress"
	SessionCompleted  = "completed"
	SessionAborted    = "aborted"
)

type Session struct {
	ID          string            `json:"id"`
	PatientRef  string            `json:"patient_ref"`
	Name        string            `json:"name"`
	Kind        string            `json:"kind"` // "caras", "letras"
	Status      string            `json:"status"`
	Rounds      []RoundDefinition `json:"rounds"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at"`
}

type SessionFilter struct {
	Status     string
	PatientRef string
	Limit      int
	Offset     int
}

// SessionSummary is derived once, at finalization.
// CorrectCount + ErrorCount always equals the number of round results.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	DurationSec  float64   `json:"duration"`
	CorrectCount int       `json:"correct_count"`
	ErrorCount   int       `json:"error_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoundData is the stored per-round record pointing at the raw sample CSV.
type RoundData struct {
	SessionID   string      `json:"session_id"`
	RoundNumber int         `json:"round_number"`
	Placements  []Placement `json:"positions"`
	CSVPath     string      `json:"eye_csv_path"`
	SampleCount int         `json:"sample_count"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ReactionLog is the "round,reactionTime,result" CSV of a finished session.
type ReactionLog struct {
	SessionID string    `json:"session_id"`
	CSV       string    `json:"csv"`
	Rounds    int       `json:"rounds"`
	CreatedAt time.Time `json:"created_at"`
}
