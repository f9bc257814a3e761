package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FlyAIBox/tripflow/internal/agent"
	"github.com/FlyAIBox/tripflow/internal/model"
	"github.com/FlyAIBox/tripflow/internal/report"
	"github.com/FlyAIBox/tripflow/internal/server"
	"github.com/FlyAIBox/tripflow/internal/storage/memory"
	"github.com/FlyAIBox/tripflow/internal/storage/storagemock"
	"github.com/FlyAIBox/tripflow/internal/task"
)

// stubPlanner returns a fixed plan or error under a given pipeline kind.
type stubPlanner struct {
	kind model.Pipeline
	err  error
}

func (p *stubPlanner) Kind() model.Pipeline { return p.kind }

func (p *stubPlanner) Plan(ctx context.Context, req model.PlanRequest, onProgress agent.ProgressFunc) (*model.Plan, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &model.Plan{
		Destination:    req.Destination,
		Duration:       req.Duration(),
		TravelDates:    req.TravelDates(),
		BudgetRange:    req.BudgetRange,
		GroupSize:      req.GroupSize,
		Interests:      req.Interests,
		PlanningMethod: string(p.kind),
		Summary:        "ok",
		Content:        "# Plan",
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

type testServer struct {
	handler http.Handler
	repo    *memory.Repository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)

	reports, err := report.NewWriter(report.WriterConfig{ResultsDir: t.TempDir()})
	require.NoError(t, err)

	runner, err := task.NewRunner(task.RunnerConfig{
		Repository: repo,
		Reports:    reports,
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(runner.Stop)

	srv, err := server.NewServer(server.ServerConfig{
		Runner:     runner,
		Repository: repo,
		Reports:    reports,
		Planners: map[model.Pipeline]agent.Planner{
			model.PipelineMultiAgent: &stubPlanner{kind: model.PipelineMultiAgent},
			model.PipelineSimple:     &stubPlanner{kind: model.PipelineSimple},
			model.PipelineMock:       &agent.MockPlanner{},
		},
	})
	require.NoError(t, err)

	return &testServer{handler: srv.Handler(), repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) waitForTerminal(t *testing.T, taskID string) {
	t.Helper()

	require.Eventually(t, func() bool {
		tk, err := s.repo.GetTask(context.Background(), taskID)
		return err == nil && tk.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
}

const validBody = `{
	"destination": "Beijing",
	"start_date": "2026-09-10",
	"end_date": "2026-09-14",
	"budget_range": "mid-range",
	"group_size": 2,
	"interests": ["history", "food"]
}`

func TestServerPlanEndpoints(t *testing.T) {
	tests := map[string]struct {
		path        string
		expPipeline model.Pipeline
	}{
		"the plan endpoint should use the multi-agent pipeline":   {path: "/plan", expPipeline: model.PipelineMultiAgent},
		"the simple-plan endpoint should use the simple pipeline": {path: "/simple-plan", expPipeline: model.PipelineSimple},
		"the mock-plan endpoint should use the mock pipeline":     {path: "/mock-plan", expPipeline: model.PipelineMock},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			srv := newTestServer(t)

			rec := srv.do(t, http.MethodPost, test.path, validBody)
			require.Equal(http.StatusAccepted, rec.Code)

			var resp struct {
				TaskID   string         `json:"task_id"`
				Status   string         `json:"status"`
				Pipeline model.Pipeline `json:"pipeline"`
			}
			require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(resp.TaskID)
			assert.Equal(string(model.TaskStatusPending), resp.Status)
			assert.Equal(test.expPipeline, resp.Pipeline)

			srv.waitForTerminal(t, resp.TaskID)

			tk, err := srv.repo.GetTask(context.Background(), resp.TaskID)
			require.NoError(err)
			assert.Equal(model.TaskStatusCompleted, tk.Status)
			assert.Equal(test.expPipeline, tk.Pipeline)
		})
	}
}

func TestServerPlanValidation(t *testing.T) {
	tests := map[string]struct {
		body    string
		expCode int
	}{
		"a broken JSON body should be a bad request": {
			body:    `{"destination":`,
			expCode: http.StatusBadRequest,
		},
		"an invalid request should be a bad request": {
			body:    `{"destination": "", "start_date": "2026-09-10", "end_date": "2026-09-14", "budget_range": "mid-range", "group_size": 2}`,
			expCode: http.StatusBadRequest,
		},
		"a bad date should be a bad request": {
			body:    `{"destination": "Beijing", "start_date": "soon", "end_date": "2026-09-14", "budget_range": "mid-range", "group_size": 2}`,
			expCode: http.StatusBadRequest,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(t)

			rec := srv.do(t, http.MethodPost, "/plan", test.body)

			assert.Equal(t, test.expCode, rec.Code)
		})
	}
}

func TestServerStatus(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/mock-plan", validBody)
	require.Equal(http.StatusAccepted, rec.Code)

	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &created))

	srv.waitForTerminal(t, created.TaskID)

	rec = srv.do(t, http.MethodGet, "/status/"+created.TaskID, "")
	require.Equal(http.StatusOK, rec.Code)

	var status struct {
		TaskID     string      `json:"task_id"`
		Status     string      `json:"status"`
		Progress   int         `json:"progress"`
		Result     *model.Plan `json:"result"`
		ReportFile string      `json:"report_file"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(created.TaskID, status.TaskID)
	assert.Equal(string(model.TaskStatusCompleted), status.Status)
	assert.Equal(100, status.Progress)
	require.NotNil(status.Result)
	assert.Equal("Beijing", status.Result.Destination)
	assert.NotEmpty(status.ReportFile)
}

func TestServerStatusNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/status/does-not-exist", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerStatusHidesResultWhileRunning(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newTestServer(t)

	// Seed a running task with a leftover result, the API must not leak it.
	now := time.Now().UTC()
	require.NoError(srv.repo.CreateTask(context.Background(), model.Task{
		ID:        "01K3RUNNING",
		Status:    model.TaskStatusRunning,
		Pipeline:  model.PipelineMultiAgent,
		Result:    &model.Plan{Destination: "Beijing"},
		CreatedAt: now,
	}))

	rec := srv.do(t, http.MethodGet, "/status/01K3RUNNING", "")
	require.Equal(http.StatusOK, rec.Code)

	var status struct {
		Result *model.Plan `json:"result"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Nil(status.Result)
}

func TestServerDownload(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/mock-plan", validBody)
	require.Equal(http.StatusAccepted, rec.Code)

	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	srv.waitForTerminal(t, created.TaskID)

	rec = srv.do(t, http.MethodGet, "/download/"+created.TaskID, "")
	require.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(rec.Body.String(), "# Travel Plan: Beijing")
}

func TestServerDownloadNotReady(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)

	now := time.Now().UTC()
	require.NoError(srv.repo.CreateTask(context.Background(), model.Task{
		ID:        "01K3PENDING",
		Status:    model.TaskStatusPending,
		Pipeline:  model.PipelineMultiAgent,
		CreatedAt: now,
	}))

	rec := srv.do(t, http.MethodGet, "/download/01K3PENDING", "")
	require.Equal(http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodGet, "/download/does-not-exist", "")
	require.Equal(http.StatusNotFound, rec.Code)
}

func TestServerListTasks(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := srv.do(t, http.MethodPost, "/mock-plan", validBody)
		require.Equal(http.StatusAccepted, rec.Code)
	}

	rec := srv.do(t, http.MethodGet, "/tasks", "")
	require.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Tasks []struct {
			TaskID      string `json:"task_id"`
			Destination string `json:"destination"`
		} `json:"tasks"`
		Total int `json:"total"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(3, resp.Total)
	require.Len(resp.Tasks, 3)
	assert.Equal("Beijing", resp.Tasks[0].Destination)
}

func TestServerHealth(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/health", "")
	require.Equal(http.StatusOK, rec.Code)
	require.Contains(rec.Body.String(), `"status":"ok"`)
}

func TestServerFailedTaskStatus(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(err)
	reports, err := report.NewWriter(report.WriterConfig{ResultsDir: t.TempDir()})
	require.NoError(err)
	runner, err := task.NewRunner(task.RunnerConfig{Repository: repo, Reports: reports})
	require.NoError(err)
	t.Cleanup(runner.Stop)

	srv, err := server.NewServer(server.ServerConfig{
		Runner:     runner,
		Repository: repo,
		Reports:    reports,
		Planners: map[model.Pipeline]agent.Planner{
			model.PipelineMultiAgent: &stubPlanner{kind: model.PipelineMultiAgent, err: fmt.Errorf("model unavailable")},
		},
	})
	require.NoError(err)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/plan", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(http.StatusAccepted, rec.Code)

	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &created))

	require.Eventually(func() bool {
		tk, err := repo.GetTask(context.Background(), created.TaskID)
		return err == nil && tk.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/"+created.TaskID, nil))
	require.Equal(http.StatusOK, rec.Code)

	var status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(string(model.TaskStatusFailed), status.Status)
	assert.Contains(status.Error, "model unavailable")
}

func TestServerStorageErrors(t *testing.T) {
	tests := map[string]struct {
		mock func(m *storagemock.MockRepository)
		path string
	}{
		"A failing task lookup should return an internal error.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("GetTask", mock.Anything, "task1").Return(nil, errors.New("db gone"))
			},
			path: "/status/task1",
		},

		"A failing task listing should return an internal error.": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Return(nil, errors.New("db gone"))
			},
			path: "/tasks",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			mrepo := &storagemock.MockRepository{}
			test.mock(mrepo)

			reports, err := report.NewWriter(report.WriterConfig{ResultsDir: t.TempDir()})
			require.NoError(err)
			runner, err := task.NewRunner(task.RunnerConfig{Repository: mrepo, Reports: reports})
			require.NoError(err)
			t.Cleanup(runner.Stop)

			srv, err := server.NewServer(server.ServerConfig{
				Runner:     runner,
				Repository: mrepo,
				Reports:    reports,
				Planners: map[model.Pipeline]agent.Planner{
					model.PipelineMultiAgent: &stubPlanner{kind: model.PipelineMultiAgent},
				},
			})
			require.NoError(err)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, test.path, nil))

			assert.Equal(http.StatusInternalServerError, rec.Code)
			mrepo.AssertExpectations(t)
		})
	}
}
