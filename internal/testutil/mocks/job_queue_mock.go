package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vytor/gazetest/internal/session"
)

// MockJobQueue is a mock implementation of jobs.JobQueue
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) EnqueueFinalize(ctx context.Context, rec session.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockJobQueue) QueueSize() int {
	args := m.Called()
	return args.Int(0)
}
