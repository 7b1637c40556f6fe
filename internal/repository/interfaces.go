package repository

import (
	"context"
	"time"

	"github.com/vytor/gazetest/internal/models"
)

// SessionRepository handles test session rows. Get returns sql.ErrNoRows for
// unknown ids.
type SessionRepository interface {
	Insert(ctx context.Context, session models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	Count(ctx context.Context, filter models.SessionFilter) (int, error)
	MarkStarted(ctx context.Context, id string, at time.Time) error
	// UpdateStatus moves a session to a terminal status and stamps completed_at.
	UpdateStatus(ctx context.Context, id string, status string, at time.Time) error
}

// ResultRepository stores finalization artifacts. Every write is an upsert
// keyed by session (and round), so a retried write never duplicates a row.
type ResultRepository interface {
	UpsertRoundData(ctx context.Context, rd models.RoundData) error
	GetRoundData(ctx context.Context, sessionID string, roundNumber int) (*models.RoundData, error)
	ListRoundData(ctx context.Context, sessionID string) ([]models.RoundData, error)
	UpsertReactionLog(ctx context.Context, log models.ReactionLog) error
	GetReactionLog(ctx context.Context, sessionID string) (*models.ReactionLog, error)
	UpsertSummary(ctx context.Context, summary models.SessionSummary) error
	GetSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}
