package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/repository"
)

type resultRepository struct {
	db *sql.DB
}

// NewResultRepository creates a new ResultRepository implementation
func NewResultRepository(db *sql.DB) repository.ResultRepository {
	return &resultRepository{db: db}
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func (r *resultRepository) UpsertRoundData(ctx context.Context, rd models.RoundData) error {
	log := logger.FromContext(ctx).WithPrefix("result_repo")
	log.Debug("upserting round data: session_id=%s, round=%d", rd.SessionID, rd.RoundNumber)

	positions, err := json.Marshal(rd.Placements)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO round_data (session_id, round_number, positions_json, eye_csv_path, sample_count, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, round_number) DO UPDATE SET
    positions_json = excluded.positions_json,
    eye_csv_path = excluded.eye_csv_path,
    sample_count = excluded.sample_count
`, rd.SessionID, rd.RoundNumber, string(positions), rd.CSVPath, rd.SampleCount, nowIfZero(rd.CreatedAt))
	if err != nil {
		log.Error("failed to upsert round data: %v", err)
	}
	return err
}

func (r *resultRepository) GetRoundData(ctx context.Context, sessionID string, roundNumber int) (*models.RoundData, error) {
	log := logger.FromContext(ctx).WithPrefix("result_repo")
	log.Debug("getting round data: session_id=%s, round=%d", sessionID, roundNumber)

	rd, err := scanRoundData(r.db.QueryRowContext(ctx, `
SELECT session_id, round_number, positions_json, eye_csv_path, sample_count, created_at
FROM round_data
WHERE session_id = ? AND round_number = ?
`, sessionID, roundNumber))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Error("failed to get round data: %v", err)
		}
		return nil, err
	}
	return rd, nil
}

func (r *resultRepository) ListRoundData(ctx context.Context, sessionID string) ([]models.RoundData, error) {
	log := logger.FromContext(ctx).WithPrefix("result_repo")

	rows, err := r.db.QueryContext(ctx, `
SELECT session_id, round_number, positions_json, eye_csv_path, sample_count, created_at
FROM round_data
WHERE session_id = ?
ORDER BY round_number
`, sessionID)
	if err != nil {
		log.Error("failed to list round data: %v", err)
		return nil, err
	}
	defer rows.Close()

	out := []models.RoundData{}
	for rows.Next() {
		rd, err := scanRoundData(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rd)
	}
	return out, rows.Err()
}

func scanRoundData(row rowScanner) (*models.RoundData, error) {
	var (
		rd        models.RoundData
		positions string
	)
	if err := row.Scan(&rd.SessionID, &rd.RoundNumber, &positions, &rd.CSVPath, &rd.SampleCount, &rd.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(positions), &rd.Placements); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return &rd, nil
}

func (r *resultRepository) UpsertReactionLog(ctx context.Context, l models.ReactionLog) error {
	log := logger.FromContext(ctx).WithPrefix("result_repo")
	log.Debug("upserting reaction log: session_id=%s, rounds=%d", l.SessionID, l.Rounds)

	_, err := r.db.ExecContext(ctx, `
INSERT INTO reaction_logs (session_id, csv, rounds, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    csv = excluded.csv,
    rounds = excluded.rounds
`, l.SessionID, l.CSV, l.Rounds, nowIfZero(l.CreatedAt))
	if err != nil {
		log.Error("failed to upsert reaction log: %v", err)
	}
	return err
}

func (r *resultRepository) GetReactionLog(ctx context.Context, sessionID string) (*models.ReactionLog, error) {
	var l models.ReactionLog
	err := r.db.QueryRowContext(ctx, `
SELECT session_id, csv, rounds, created_at FROM reaction_logs WHERE session_id = ?
`, sessionID).Scan(&l.SessionID, &l.CSV, &l.Rounds, &l.CreatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.FromContext(ctx).WithPrefix("result_repo").Error("failed to get reaction log: %v", err)
		}
		return nil, err
	}
	return &l, nil
}

func (r *resultRepository) UpsertSummary(ctx context.Context, s models.SessionSummary) error {
	log := logger.FromContext(ctx).WithPrefix("result_repo")
	log.Debug("upserting summary: session_id=%s, correct=%d, errors=%d", s.SessionID, s.CorrectCount, s.ErrorCount)

	_, err := r.db.ExecContext(ctx, `
INSERT INTO session_summaries (session_id, duration, correct_count, error_count, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    duration = excluded.duration,
    correct_count = excluded.correct_count,
    error_count = excluded.error_count
`, s.SessionID, s.DurationSec, s.CorrectCount, s.ErrorCount, nowIfZero(s.CreatedAt))
	if err != nil {
		log.Error("failed to upsert summary: %v", err)
	}
	return err
}

func (r *resultRepository) GetSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var s models.SessionSummary
	err := r.db.QueryRowContext(ctx, `
SELECT session_id, duration, correct_count, error_count, created_at
FROM session_summaries
WHERE session_id = ?
`, sessionID).Scan(&s.SessionID, &s.DurationSec, &s.CorrectCount, &s.ErrorCount, &s.CreatedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.FromContext(ctx).WithPrefix("result_repo").Error("failed to get summary: %v", err)
		}
		return nil, err
	}
	return &s, nil
}
