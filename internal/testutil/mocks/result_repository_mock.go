package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vytor/gazetest/internal/models"
)

// MockResultRepository is a mock implementation of repository.ResultRepository
type MockResultRepository struct {
	mock.Mock
}

func (m *MockResultRepository) UpsertRoundData(ctx context.Context, rd models.RoundData) error {
	args := m.Called(ctx, rd)
	return args.Error(0)
}

func (m *MockResultRepository) GetRoundData(ctx context.Context, sessionID string, roundNumber int) (*models.RoundData, error) {
	args := m.Called(ctx, sessionID, roundNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoundData), args.Error(1)
}

func (m *MockResultRepository) ListRoundData(ctx context.Context, sessionID string) ([]models.RoundData, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoundData), args.Error(1)
}

func (m *MockResultRepository) UpsertReactionLog(ctx context.Context, log models.ReactionLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockResultRepository) GetReactionLog(ctx context.Context, sessionID string) (*models.ReactionLog, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReactionLog), args.Error(1)
}

func (m *MockResultRepository) UpsertSummary(ctx context.Context, summary models.SessionSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockResultRepository) GetSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionSummary), args.Error(1)
}
