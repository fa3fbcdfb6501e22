package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of Backend using testify/mock.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) Probe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockRuntime is a mock implementation of Runtime using testify/mock.
type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) Encode(ctx context.Context, text string) ([]int, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockRuntime) Generate(ctx context.Context, tokens []int, s Sampling) ([]int, error) {
	args := m.Called(ctx, tokens, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockRuntime) Decode(ctx context.Context, tokens []int) (string, error) {
	args := m.Called(ctx, tokens)
	return args.String(0), args.Error(1)
}

func (m *MockRuntime) Close() error {
	args := m.Called()
	return args.Error(0)
}
