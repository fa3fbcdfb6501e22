package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"poem-annotator/internal/poem"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateBatch(ctx context.Context, total int) (Batch, error) {
	args := m.Called(ctx, total)
	return args.Get(0).(Batch), args.Error(1)
}

func (m *MockStore) GetBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Batch), args.Error(1)
}

func (m *MockStore) UpdateBatchStatus(ctx context.Context, id uuid.UUID, status BatchStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockStore) SaveResults(ctx context.Context, batchID uuid.UUID, results []poem.Result) error {
	args := m.Called(ctx, batchID, results)
	return args.Error(0)
}

func (m *MockStore) ListResults(ctx context.Context, batchID uuid.UUID) ([]poem.Result, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]poem.Result), args.Error(1)
}

func (m *MockStore) GetAnnotation(ctx context.Context, title, author string) (Annotation, error) {
	args := m.Called(ctx, title, author)
	return args.Get(0).(Annotation), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
