package storage

import (
	"context"

	"github.com/FlyAIBox/tripflow/internal/model"
)

// Repository is the interface for planning task persistence.
type Repository interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	// ListTasks returns all tasks ordered by creation time, newest first.
	ListTasks(ctx context.Context) ([]model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) error
	DeleteTask(ctx context.Context, id string) error
}
