package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock implementation of storage.BlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, bucket, path string, content []byte) error {
	args := m.Called(ctx, bucket, path, content)
	return args.Error(0)
}

func (m *MockBlobStore) Get(ctx context.Context, bucket, path string) ([]byte, error) {
	args := m.Called(ctx, bucket, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStore) SignedURL(bucket, path string, ttl time.Duration) (string, error) {
	args := m.Called(bucket, path, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Verify(bucket, path string, expires int64, signature string) error {
	args := m.Called(bucket, path, expires, signature)
	return args.Error(0)
}
