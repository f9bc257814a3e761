package task_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlyAIBox/tripflow/internal/agent"
	"github.com/FlyAIBox/tripflow/internal/model"
	"github.com/FlyAIBox/tripflow/internal/report"
	"github.com/FlyAIBox/tripflow/internal/storage"
	"github.com/FlyAIBox/tripflow/internal/storage/memory"
	"github.com/FlyAIBox/tripflow/internal/task"
)

// fakePlanner is a scriptable planner for runner tests.
type fakePlanner struct {
	kind  model.Pipeline
	plan  *model.Plan
	err   error
	delay time.Duration
	// hang ignores the context and never returns until the test ends.
	hang  chan struct{}
	calls atomic.Int32
}

func (p *fakePlanner) Kind() model.Pipeline { return p.kind }

func (p *fakePlanner) Plan(ctx context.Context, req model.PlanRequest, onProgress agent.ProgressFunc) (*model.Plan, error) {
	p.calls.Add(1)

	if p.hang != nil {
		<-p.hang
		return nil, fmt.Errorf("aborted")
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if onProgress != nil {
		onProgress(agent.StageItineraryPlanner, 95)
	}

	if p.err != nil {
		return nil, p.err
	}
	return p.plan, nil
}

func testRequest() model.PlanRequest {
	return model.PlanRequest{
		Destination: "Beijing",
		StartDate:   "2026-09-10",
		EndDate:     "2026-09-14",
		BudgetRange: model.BudgetMid,
		GroupSize:   2,
		Interests:   []string{"history", "food"},
	}
}

func testPlan(method string) *model.Plan {
	return &model.Plan{
		Destination:    "Beijing",
		Duration:       5,
		TravelDates:    "2026-09-10 to 2026-09-14",
		BudgetRange:    model.BudgetMid,
		GroupSize:      2,
		PlanningMethod: method,
		Summary:        "A 5 day trip to Beijing.",
		Content:        "# Travel plan",
		GeneratedAt:    time.Now().UTC(),
	}
}

func newTestRunner(t *testing.T, cfg task.RunnerConfig) (*task.Runner, *memory.Repository) {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	cfg.Repository = repo

	if cfg.Reports == nil {
		reports, err := report.NewWriter(report.WriterConfig{ResultsDir: t.TempDir()})
		require.NoError(t, err)
		cfg.Reports = reports
	}

	runner, err := task.NewRunner(cfg)
	require.NoError(t, err)
	t.Cleanup(runner.Stop)

	return runner, repo
}

func waitForTerminal(t *testing.T, repo *memory.Repository, taskID string) model.Task {
	t.Helper()

	var got model.Task
	require.Eventually(t, func() bool {
		tk, err := repo.GetTask(context.Background(), taskID)
		if err != nil {
			return false
		}
		got = *tk
		return tk.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	return got
}

func TestRunnerSubmitValidation(t *testing.T) {
	runner, _ := newTestRunner(t, task.RunnerConfig{})

	req := testRequest()
	req.Destination = ""

	_, err := runner.Submit(context.Background(), req, &fakePlanner{kind: model.PipelineMock})
	assert.ErrorIs(t, err, model.ErrNotValid)
}

func TestRunnerCompletesTask(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	planner := &fakePlanner{
		kind: model.PipelineMultiAgent,
		plan: testPlan(string(model.PipelineMultiAgent)),
	}
	runner, repo := newTestRunner(t, task.RunnerConfig{})

	taskID, err := runner.Submit(context.Background(), testRequest(), planner)
	require.NoError(err)
	require.NotEmpty(taskID)

	got := waitForTerminal(t, repo, taskID)

	assert.Equal(model.TaskStatusCompleted, got.Status)
	assert.Equal(100, got.Progress)
	assert.Equal(model.PipelineMultiAgent, got.ProducedBy)
	assert.NotNil(got.Result)
	assert.NotEmpty(got.ReportFile)
	assert.NotNil(got.StartedAt)
	assert.NotNil(got.FinishedAt)
	assert.Empty(got.Error)
}

func TestRunnerDistinctTaskIDs(t *testing.T) {
	require := require.New(t)

	planner := &fakePlanner{kind: model.PipelineMock, plan: testPlan(string(model.PipelineMock))}
	runner, _ := newTestRunner(t, task.RunnerConfig{Workers: 2})

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		id, err := runner.Submit(context.Background(), testRequest(), planner)
		require.NoError(err)
		require.False(seen[id], "task ID %q repeated", id)
		seen[id] = true
	}
}

func TestRunnerFallbackOnFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	primary := &fakePlanner{kind: model.PipelineMultiAgent, err: fmt.Errorf("model unavailable")}
	fallback := &fakePlanner{kind: model.PipelineSimple, plan: testPlan(string(model.PipelineSimple))}

	runner, repo := newTestRunner(t, task.RunnerConfig{Fallback: fallback})

	taskID, err := runner.Submit(context.Background(), testRequest(), primary)
	require.NoError(err)

	got := waitForTerminal(t, repo, taskID)

	assert.Equal(model.TaskStatusCompleted, got.Status)
	assert.Equal(model.PipelineMultiAgent, got.Pipeline)
	assert.Equal(model.PipelineSimple, got.ProducedBy)
	assert.Equal(int32(1), primary.calls.Load())
	assert.Equal(int32(1), fallback.calls.Load())
}

func TestRunnerFallbackRunsAtMostOnce(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	primary := &fakePlanner{kind: model.PipelineMultiAgent, err: fmt.Errorf("model unavailable")}
	fallback := &fakePlanner{kind: model.PipelineSimple, err: fmt.Errorf("model unavailable")}

	runner, repo := newTestRunner(t, task.RunnerConfig{Fallback: fallback})

	taskID, err := runner.Submit(context.Background(), testRequest(), primary)
	require.NoError(err)

	got := waitForTerminal(t, repo, taskID)

	assert.Equal(model.TaskStatusFailed, got.Status)
	assert.NotEmpty(got.Error)
	assert.Equal(int32(1), primary.calls.Load())
	assert.Equal(int32(1), fallback.calls.Load())
}

func TestRunnerNoFallbackForSamePipeline(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	fallback := &fakePlanner{kind: model.PipelineSimple, err: fmt.Errorf("model unavailable")}
	runner, repo := newTestRunner(t, task.RunnerConfig{Fallback: fallback})

	taskID, err := runner.Submit(context.Background(), testRequest(), fallback)
	require.NoError(err)

	got := waitForTerminal(t, repo, taskID)

	assert.Equal(model.TaskStatusFailed, got.Status)
	assert.Equal(int32(1), fallback.calls.Load())
}

func TestRunnerAbandonsHangingPipeline(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	hang := make(chan struct{})
	defer close(hang)

	primary := &fakePlanner{kind: model.PipelineMultiAgent, hang: hang}
	runner, repo := newTestRunner(t, task.RunnerConfig{Timeout: 50 * time.Millisecond})

	taskID, err := runner.Submit(context.Background(), testRequest(), primary)
	require.NoError(err)

	got := waitForTerminal(t, repo, taskID)

	assert.Equal(model.TaskStatusFailed, got.Status)
	assert.Contains(got.Error, "budget")
	assert.Nil(got.Result)
}

func TestRunnerTimeoutFallsBack(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	primary := &fakePlanner{kind: model.PipelineMultiAgent, delay: time.Second}
	fallback := &fakePlanner{kind: model.PipelineSimple, plan: testPlan(string(model.PipelineSimple))}

	runner, repo := newTestRunner(t, task.RunnerConfig{
		Fallback: fallback,
		Timeout:  50 * time.Millisecond,
	})

	taskID, err := runner.Submit(context.Background(), testRequest(), primary)
	require.NoError(err)

	got := waitForTerminal(t, repo, taskID)

	assert.Equal(model.TaskStatusCompleted, got.Status)
	assert.Equal(model.PipelineSimple, got.ProducedBy)
}

func TestRunnerQueueFull(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	hang := make(chan struct{})
	defer close(hang)

	planner := &fakePlanner{kind: model.PipelineMultiAgent, hang: hang}
	runner, repo := newTestRunner(t, task.RunnerConfig{
		Workers:   1,
		QueueSize: 1,
		Timeout:   5 * time.Second,
	})

	// First submit occupies the worker, second fills the queue. The worker
	// may drain the queue slot before the filler lands, so submit until the
	// queue rejects.
	var rejectedID string
	require.Eventually(func() bool {
		id, err := runner.Submit(context.Background(), testRequest(), planner)
		if err == nil {
			return false
		}
		assert.ErrorIs(err, task.ErrQueueFull)
		rejectedID = id
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(rejectedID)

	// Rejected tasks are recorded as failed.
	tasks, err := repo.ListTasks(context.Background())
	require.NoError(err)
	var failed int
	for _, tk := range tasks {
		if tk.Status == model.TaskStatusFailed {
			failed++
		}
	}
	assert.GreaterOrEqual(failed, 1)
}

func TestRunnerResultHiddenUntilCompleted(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	planner := &fakePlanner{
		kind:  model.PipelineMultiAgent,
		plan:  testPlan(string(model.PipelineMultiAgent)),
		delay: 100 * time.Millisecond,
	}
	runner, repo := newTestRunner(t, task.RunnerConfig{})

	taskID, err := runner.Submit(context.Background(), testRequest(), planner)
	require.NoError(err)

	tk, err := repo.GetTask(context.Background(), taskID)
	require.NoError(err)
	assert.Nil(tk.Result)
	assert.False(tk.Status.Terminal())

	got := waitForTerminal(t, repo, taskID)
	assert.NotNil(got.Result)
}

// laggyRepository delays running progress writes, so they land around the
// attempt timeout.
type laggyRepository struct {
	storage.Repository
	delay time.Duration
}

func (r *laggyRepository) UpdateTask(ctx context.Context, t model.Task) error {
	if t.Status == model.TaskStatusRunning && t.Progress > 0 {
		time.Sleep(r.delay)
	}
	return r.Repository.UpdateTask(ctx, t)
}

// progressThenHangPlanner reports progress once and then ignores the
// context, never returning until the test ends.
type progressThenHangPlanner struct {
	done chan struct{}
}

func (p *progressThenHangPlanner) Kind() model.Pipeline { return model.PipelineMultiAgent }

func (p *progressThenHangPlanner) Plan(ctx context.Context, req model.PlanRequest, onProgress agent.ProgressFunc) (*model.Plan, error) {
	onProgress(agent.StageTravelAdvisor, 20)
	<-p.done
	return nil, fmt.Errorf("aborted")
}

func TestRunnerLateProgressDoesNotReviveTask(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)

	reports, err := report.NewWriter(report.WriterConfig{ResultsDir: t.TempDir()})
	require.NoError(err)

	runner, err := task.NewRunner(task.RunnerConfig{
		Repository: &laggyRepository{Repository: repo, delay: 100 * time.Millisecond},
		Reports:    reports,
		Workers:    1,
		Timeout:    20 * time.Millisecond,
	})
	require.NoError(err)
	t.Cleanup(runner.Stop)

	done := make(chan struct{})
	defer close(done)

	taskID, err := runner.Submit(context.Background(), testRequest(), &progressThenHangPlanner{done: done})
	require.NoError(err)

	got := waitForTerminal(t, repo, taskID)
	require.Equal(model.TaskStatusFailed, got.Status)

	// The delayed progress write must not bring the task back to running.
	time.Sleep(200 * time.Millisecond)

	tk, err := repo.GetTask(context.Background(), taskID)
	require.NoError(err)
	assert.Equal(model.TaskStatusFailed, tk.Status)
	assert.Contains(tk.Error, "budget")
}
