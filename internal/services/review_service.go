package services

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/errors"
	"github.com/vytor/gazetest/internal/logger"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/repository"
	"github.com/vytor/gazetest/internal/samples"
	"github.com/vytor/gazetest/internal/storage"
)

const (
	DefaultGridCols = 20
	DefaultGridRows = 15
)

// Heatmap is the replay of one stored round.
type Heatmap struct {
	SessionID   string                `json:"session_id"`
	Round       int                   `json:"round"`
	CSVURL      string                `json:"csv_url"`
	SampleCount int                   `json:"sample_count"`
	Placements  []models.Placement    `json:"positions"`
	Points      []models.DensityPoint `json:"points"`
	Grid        *samples.Grid         `json:"grid"`
}

type HeatmapRequest struct {
	// Container, when set, re-projects points into its pixel box. Otherwise
	// points stay fractional.
	Container *coords.Rect
	Cols      int
	Rows      int
}

// ReviewService replays finished sessions from their stored artifacts.
type ReviewService interface {
	Heatmap(ctx context.Context, sessionID string, round int, req HeatmapRequest) (*Heatmap, error)
	ReactionLog(ctx context.Context, sessionID string) (*models.ReactionLog, error)
}

type reviewService struct {
	results repository.ResultRepository
	blobs   storage.BlobStore
	bucket  string
	ttl     time.Duration
}

// NewReviewService creates a new ReviewService. Signed CSV links live for ttl.
func NewReviewService(results repository.ResultRepository, blobs storage.BlobStore, ttl time.Duration) ReviewService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &reviewService{
		results: results,
		blobs:   blobs,
		bucket:  storage.EyeTrackingBucket,
		ttl:     ttl,
	}
}

func (s *reviewService) Heatmap(ctx context.Context, sessionID string, round int, req HeatmapRequest) (*Heatmap, error) {
	log := logger.FromContext(ctx).WithField("session_id", sessionID)
	log.Debug("building heatmap: round=%d", round)

	if round < 1 {
		return nil, errors.NewValidationError("round", "must be at least 1")
	}
	if req.Container != nil && req.Container.Empty() {
		return nil, errors.NewValidationError("container", coords.ErrEmptyRect.Error())
	}
	if req.Cols > samples.MaxGridDim {
		return nil, errors.NewValidationError("cols", fmt.Sprintf("must be at most %d", samples.MaxGridDim))
	}
	if req.Rows > samples.MaxGridDim {
		return nil, errors.NewValidationError("rows", fmt.Sprintf("must be at most %d", samples.MaxGridDim))
	}

	rd, err := s.results.GetRoundData(ctx, sessionID, round)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("round", round)
		}
		log.Error("failed to get round data: %v", err)
		return nil, errors.NewInternalError(err)
	}

	raw, err := s.blobs.Get(ctx, s.bucket, rd.CSVPath)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFoundError("round samples", rd.CSVPath)
		}
		log.Error("failed to read round samples: %v", err)
		return nil, errors.NewInternalError(err)
	}
	batch, err := samples.DecodeCSV(bytes.NewReader(raw))
	if err != nil {
		log.Error("stored samples are unreadable: path=%s err=%v", rd.CSVPath, err)
		return nil, errors.NewInternalError(err)
	}

	var points []models.DensityPoint
	if req.Container != nil {
		points, err = samples.ProjectDensityPoints(batch, *req.Container)
		if err != nil {
			return nil, errors.NewValidationError("container", err.Error())
		}
	} else {
		points = samples.ToDensityPoints(batch)
	}

	cols, rows := req.Cols, req.Rows
	if cols <= 0 {
		cols = DefaultGridCols
	}
	if rows <= 0 {
		rows = DefaultGridRows
	}

	url, err := s.blobs.SignedURL(s.bucket, rd.CSVPath, s.ttl)
	if err != nil {
		log.Warn("failed to sign csv url: %v", err)
	}

	return &Heatmap{
		SessionID:   sessionID,
		Round:       round,
		CSVURL:      url,
		SampleCount: len(batch),
		Placements:  rd.Placements,
		Points:      points,
		Grid:        samples.NewGrid(batch, cols, rows),
	}, nil
}

func (s *reviewService) ReactionLog(ctx context.Context, sessionID string) (*models.ReactionLog, error) {
	rl, err := s.results.GetReactionLog(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("reaction log", sessionID)
		}
		logger.FromContext(ctx).Error("failed to get reaction log: %v", err)
		return nil, errors.NewInternalError(err)
	}
	return rl, nil
}
