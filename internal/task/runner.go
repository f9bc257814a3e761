// Package task implements the bounded background runner that executes
// planning pipelines off the request handling path.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/FlyAIBox/tripflow/internal/agent"
	"github.com/FlyAIBox/tripflow/internal/log"
	"github.com/FlyAIBox/tripflow/internal/model"
	"github.com/FlyAIBox/tripflow/internal/report"
	"github.com/FlyAIBox/tripflow/internal/storage"
)

// ErrQueueFull is returned by Submit when the pending queue is at capacity.
var ErrQueueFull = errors.New("task queue is full")

// Default runner settings.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
	DefaultTimeout   = 5 * time.Minute
)

// RunnerConfig is the configuration for the task runner.
type RunnerConfig struct {
	Repository storage.Repository
	Reports    *report.Writer
	// Fallback, when set, is the cheaper pipeline re-attempted once after
	// a primary pipeline failure or timeout.
	Fallback agent.Planner
	// Workers bounds the pipelines in flight, QueueSize the accepted but
	// unstarted tasks.
	Workers   int
	QueueSize int
	// Timeout is the per-attempt pipeline budget.
	Timeout time.Duration
	Logger  log.Logger
}

func (c *RunnerConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Reports == nil {
		return fmt.Errorf("report writer is required")
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.Runner"})
	return nil
}

type job struct {
	taskID  string
	request model.PlanRequest
	planner agent.Planner
}

// Runner accepts planning requests, executes their pipeline in a bounded
// worker pool and records task state in the repository. Each task is
// written by exactly one worker at a time; readers poll through the
// repository.
type Runner struct {
	repo     storage.Repository
	reports  *report.Writer
	fallback agent.Planner
	timeout  time.Duration
	logger   log.Logger

	jobs     chan job
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRunner creates a task runner and starts its workers.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Runner{
		repo:     cfg.Repository,
		reports:  cfg.Reports,
		fallback: cfg.Fallback,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		jobs:     make(chan job, cfg.QueueSize),
	}

	r.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.worker()
	}

	cfg.Logger.Debugf("Task runner started with %d workers (timeout %s)", cfg.Workers, cfg.Timeout)

	return r, nil
}

// Submit validates and registers a planning request and queues it for
// execution. It returns the new task ID without waiting for the pipeline.
func (r *Runner) Submit(ctx context.Context, req model.PlanRequest, planner agent.Planner) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid request: %w", err)
	}

	taskID := ulid.Make().String()
	t := model.Task{
		ID:        taskID,
		Status:    model.TaskStatusPending,
		Pipeline:  planner.Kind(),
		Request:   req,
		Message:   "Task accepted, waiting for a planner worker.",
		CreatedAt: time.Now().UTC(),
	}

	if err := r.repo.CreateTask(ctx, t); err != nil {
		return "", fmt.Errorf("could not create task: %w", err)
	}

	select {
	case r.jobs <- job{taskID: taskID, request: req, planner: planner}:
	default:
		t.Status = model.TaskStatusFailed
		t.Error = ErrQueueFull.Error()
		t.Message = "Task rejected: planner queue is full."
		now := time.Now().UTC()
		t.FinishedAt = &now
		if err := r.repo.UpdateTask(ctx, t); err != nil {
			r.logger.Errorf("Could not mark rejected task %s as failed: %s", taskID, err)
		}
		return "", ErrQueueFull
	}

	r.logger.Infof("Submitted task %s (%s, %s)", taskID, req.Destination, planner.Kind())

	return taskID, nil
}

// Stop stops accepting work and waits for in-flight tasks to finish.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.jobs) })
	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for j := range r.jobs {
		r.execute(j)
	}
}

// execute runs a task's pipeline, falling back once on failure or timeout.
func (r *Runner) execute(j job) {
	ctx := context.Background()
	logger := r.logger.WithValues(log.Kv{"task-id": j.taskID})

	t, err := r.repo.GetTask(ctx, j.taskID)
	if err != nil {
		logger.Errorf("Could not load task: %s", err)
		return
	}

	now := time.Now().UTC()
	t.Status = model.TaskStatusRunning
	t.StartedAt = &now
	t.Message = "Planning started."
	t.CurrentStage = string(agent.StageCoordinator)
	if err := r.repo.UpdateTask(ctx, *t); err != nil {
		logger.Errorf("Could not mark task as running: %s", err)
		return
	}

	plan, runErr := r.attempt(ctx, *t, j.planner, logger)
	producedBy := j.planner.Kind()

	if runErr != nil && r.fallback != nil && r.fallback.Kind() != j.planner.Kind() {
		logger.Warningf("Primary pipeline failed (%s), trying fallback", runErr)

		t.Message = fmt.Sprintf("Primary pipeline failed (%s), retrying with the %s pipeline.", runErr, r.fallback.Kind())
		t.Progress = 0
		if err := r.repo.UpdateTask(ctx, *t); err != nil {
			logger.Errorf("Could not record fallback attempt: %s", err)
		}

		plan, runErr = r.attempt(ctx, *t, r.fallback, logger)
		producedBy = r.fallback.Kind()
	}

	finished := time.Now().UTC()
	t, err = r.repo.GetTask(ctx, j.taskID)
	if err != nil {
		logger.Errorf("Could not reload task: %s", err)
		return
	}
	t.FinishedAt = &finished
	t.CurrentStage = ""

	if runErr != nil {
		t.Status = model.TaskStatusFailed
		t.Error = runErr.Error()
		t.Message = "Planning failed."
		if err := r.repo.UpdateTask(ctx, *t); err != nil {
			logger.Errorf("Could not mark task as failed: %s", err)
		}
		logger.Errorf("Task failed: %s", runErr)
		return
	}

	t.Status = model.TaskStatusCompleted
	t.Progress = 100
	t.Result = plan
	t.ProducedBy = producedBy
	t.Message = "Planning completed."

	reportFile, err := r.reports.Write(j.taskID, plan)
	if err != nil {
		// The result is still served from the task record.
		logger.Errorf("Could not write report: %s", err)
	} else {
		t.ReportFile = reportFile
	}

	if err := r.repo.UpdateTask(ctx, *t); err != nil {
		logger.Errorf("Could not mark task as completed: %s", err)
		return
	}

	logger.Infof("Task completed by %s pipeline in %s", producedBy, finished.Sub(*t.StartedAt))
}

// attempt runs one pipeline under the timeout budget. The pipeline runs in
// its own goroutine: cancellation is cooperative through the context, and a
// pipeline that ignores it is abandoned rather than waited on.
func (r *Runner) attempt(ctx context.Context, t model.Task, planner agent.Planner, logger log.Logger) (*model.Plan, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Progress is persisted by this goroutine only, draining the channel
	// below. Once attempt returns nothing can write the task anymore, so
	// an abandoned pipeline cannot revive a task already marked failed.
	type progress struct {
		stage   agent.Stage
		percent int
	}
	progressCh := make(chan progress, 16)
	onProgress := func(stage agent.Stage, percent int) {
		select {
		case progressCh <- progress{stage: stage, percent: percent}:
		default:
			// Dropped: the attempt already returned or is behind.
		}
	}

	type result struct {
		plan *model.Plan
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{err: fmt.Errorf("pipeline panicked: %v", rec)}
			}
		}()
		plan, err := planner.Plan(runCtx, t.Request, onProgress)
		ch <- result{plan: plan, err: err}
	}()

	for {
		select {
		case p := <-progressCh:
			t.CurrentStage = string(p.stage)
			t.Progress = p.percent
			t.Message = fmt.Sprintf("Running stage %s.", p.stage)
			if err := r.repo.UpdateTask(ctx, t); err != nil {
				logger.Debugf("Could not update task progress: %s", err)
			}
		case res := <-ch:
			if res.err != nil {
				return nil, res.err
			}
			return res.plan, nil
		case <-runCtx.Done():
			return nil, fmt.Errorf("pipeline exceeded the %s budget: %w", r.timeout, runCtx.Err())
		}
	}
}
