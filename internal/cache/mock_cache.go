package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"poem-annotator/internal/poem"
)

// MockCache is a mock implementation of the Cache interface for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (*poem.Annotation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*poem.Annotation), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, a poem.Annotation, ttl time.Duration) error {
	args := m.Called(ctx, key, a, ttl)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
