package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/FlyAIBox/tripflow/internal/log"
	"github.com/FlyAIBox/tripflow/internal/model"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	tasks  map[string]model.Task
	mu     sync.RWMutex
	logger log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:  make(map[string]model.Task),
		logger: cfg.Logger,
	}, nil
}

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task with id %s: %w", t.ID, model.ErrAlreadyExists)
	}

	r.tasks[t.ID] = t
	r.logger.Debugf("Created task in repository: %s", t.ID)

	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	// Return a copy.
	taskCopy := task
	return &taskCopy, nil
}

// ListTasks returns all tasks, newest first.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]model.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		// ULIDs sort by creation time, break same-timestamp ties with them.
		return tasks[i].ID > tasks[j].ID
	})

	return tasks, nil
}

// UpdateTask updates an existing task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; !ok {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}

	r.tasks[t.ID] = t
	r.logger.Debugf("Updated task in repository: %s", t.ID)

	return nil
}

// DeleteTask deletes a task.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	delete(r.tasks, id)
	r.logger.Debugf("Deleted task from repository: %s", id)

	return nil
}
