package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/repository"
)

var sqlBuilder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

var sessionColumns = []string{
	"id", "patient_ref", "name", "kind", "status", "rounds_json", "created_at", "started_at", "completed_at",
}

type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository implementation
func NewSessionRepository(db *sql.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Insert(ctx context.Context, s models.Session) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("inserting session: id=%s, patient=%s, rounds=%d", s.ID, s.PatientRef, len(s.Rounds))

	rounds, err := json.Marshal(s.Rounds)
	if err != nil {
		return fmt.Errorf("encode rounds: %w", err)
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := s.Status
	if status == "" {
		status = models.SessionPending
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO sessions (id, patient_ref, name, kind, status, rounds_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, s.ID, s.PatientRef, s.Name, s.Kind, status, string(rounds), createdAt)
	if err != nil {
		log.Error("failed to insert session: %v", err)
		return err
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("getting session: id=%s", id)

	query, args, err := sqlBuilder.Select(sessionColumns...).From("sessions").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return nil, err
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("session not found: id=%s", id)
		} else {
			log.Error("failed to get session: %v", err)
		}
		return nil, err
	}
	return s, nil
}

func applySessionFilter(q squirrel.SelectBuilder, filter models.SessionFilter) squirrel.SelectBuilder {
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.PatientRef != "" {
		q = q.Where(squirrel.Eq{"patient_ref": filter.PatientRef})
	}
	return q
}

func (r *sessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("listing sessions: status=%s, patient=%s", filter.Status, filter.PatientRef)

	query := applySessionFilter(sqlBuilder.Select(sessionColumns...).From("sessions"), filter).
		OrderBy("created_at DESC", "id")

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query = query.Limit(uint64(limit)).Offset(uint64(offset))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		log.Error("failed to list sessions: %v", err)
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			log.Error("failed to scan session row: %v", err)
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	log.Debug("found %d sessions", len(sessions))
	return sessions, rows.Err()
}

func (r *sessionRepository) Count(ctx context.Context, filter models.SessionFilter) (int, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")

	sqlStr, args, err := applySessionFilter(sqlBuilder.Select("COUNT(*)").From("sessions"), filter).ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return 0, err
	}
	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		log.Error("failed to count sessions: %v", err)
		return 0, err
	}
	return count, nil
}

// MarkStarted only moves pending sessions; a second start matches no row.
func (r *sessionRepository) MarkStarted(ctx context.Context, id string, at time.Time) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("marking session started: id=%s", id)

	sqlStr, args, err := sqlBuilder.Update("sessions").
		Set("status", models.SessionInProgress).
		Set("started_at", at).
		Where(squirrel.Eq{"id": id, "status": models.SessionPending}).
		ToSql()
	if err != nil {
		return err
	}
	return r.execOne(ctx, sqlStr, args...)
}

func (r *sessionRepository) UpdateStatus(ctx context.Context, id string, status string, at time.Time) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("updating session status: id=%s, status=%s", id, status)

	sqlStr, args, err := sqlBuilder.Update("sessions").
		Set("status", status).
		Set("completed_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	return r.execOne(ctx, sqlStr, args...)
}

// execOne runs an update and reports sql.ErrNoRows when nothing matched.
func (r *sessionRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).WithPrefix("session_repo").Error("failed to update session: %v", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s           models.Session
		rounds      string
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.PatientRef, &s.Name, &s.Kind, &s.Status, &rounds, &s.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rounds), &s.Rounds); err != nil {
		return nil, fmt.Errorf("decode rounds of session %s: %w", s.ID, err)
	}
	if startedAt.Valid {
		s.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}
	return &s, nil
}
