// Package storagemock has mocks for the storage repositories.
package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/FlyAIBox/tripflow/internal/model"
)

// MockRepository is a mock of the storage repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateTask(ctx context.Context, task model.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockRepository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*model.Task)
	return t, args.Error(1)
}

func (m *MockRepository) ListTasks(ctx context.Context) ([]model.Task, error) {
	args := m.Called(ctx)
	ts, _ := args.Get(0).([]model.Task)
	return ts, args.Error(1)
}

func (m *MockRepository) UpdateTask(ctx context.Context, task model.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockRepository) DeleteTask(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
