package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FlyAIBox/tripflow/internal/log"
	"github.com/FlyAIBox/tripflow/internal/model"
	"github.com/FlyAIBox/tripflow/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

const taskColumns = `
	id, status, pipeline, produced_by, request,
	progress, current_stage, message,
	result, error, report_file,
	created_at, started_at, finished_at
`

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	request, result, err := marshalPayloads(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.Status,
		t.Pipeline,
		t.ProducedBy,
		request,
		t.Progress,
		t.CurrentStage,
		t.Message,
		result,
		t.Error,
		t.ReportFile,
		t.CreatedAt.Unix(),
		unixOrNil(t.StartedAt),
		unixOrNil(t.FinishedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: tasks.") {
			return fmt.Errorf("task already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	task, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return &task, nil
}

// ListTasks returns all tasks, newest first.
func (r *Repository) ListTasks(ctx context.Context) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// UpdateTask updates an existing task.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task) error {
	request, result, err := marshalPayloads(t)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET
			status = ?,
			pipeline = ?,
			produced_by = ?,
			request = ?,
			progress = ?,
			current_stage = ?,
			message = ?,
			result = ?,
			error = ?,
			report_file = ?,
			started_at = ?,
			finished_at = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(
		ctx,
		query,
		t.Status,
		t.Pipeline,
		t.ProducedBy,
		request,
		t.Progress,
		t.CurrentStage,
		t.Message,
		result,
		t.Error,
		t.ReportFile,
		unixOrNil(t.StartedAt),
		unixOrNil(t.FinishedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", t.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated task in repository: %s", t.ID)
	return nil
}

// DeleteTask deletes a task.
func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted task from repository: %s", id)
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRow(s scanner) (model.Task, error) {
	var task model.Task
	var request string
	var result sql.NullString
	var createdAt, startedAt, finishedAt sql.NullInt64

	err := s.Scan(
		&task.ID,
		&task.Status,
		&task.Pipeline,
		&task.ProducedBy,
		&request,
		&task.Progress,
		&task.CurrentStage,
		&task.Message,
		&result,
		&task.Error,
		&task.ReportFile,
		&createdAt,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	if err := json.Unmarshal([]byte(request), &task.Request); err != nil {
		return model.Task{}, fmt.Errorf("could not unmarshal request: %w", err)
	}

	if result.Valid {
		task.Result = &model.Plan{}
		if err := json.Unmarshal([]byte(result.String), task.Result); err != nil {
			return model.Task{}, fmt.Errorf("could not unmarshal result: %w", err)
		}
	}

	if !createdAt.Valid {
		return model.Task{}, fmt.Errorf("created_at is required")
	}
	task.CreatedAt = time.Unix(createdAt.Int64, 0).UTC()
	if startedAt.Valid {
		u := time.Unix(startedAt.Int64, 0).UTC()
		task.StartedAt = &u
	}
	if finishedAt.Valid {
		u := time.Unix(finishedAt.Int64, 0).UTC()
		task.FinishedAt = &u
	}

	return task, nil
}

func marshalPayloads(t model.Task) (request string, result *string, err error) {
	reqData, err := json.Marshal(t.Request)
	if err != nil {
		return "", nil, fmt.Errorf("could not marshal request: %w", err)
	}

	if t.Result != nil {
		resData, err := json.Marshal(t.Result)
		if err != nil {
			return "", nil, fmt.Errorf("could not marshal result: %w", err)
		}
		s := string(resData)
		result = &s
	}

	return string(reqData), result, nil
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}
