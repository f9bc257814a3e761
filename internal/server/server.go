// Package server exposes the planning service over HTTP.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FlyAIBox/tripflow/internal/agent"
	"github.com/FlyAIBox/tripflow/internal/log"
	"github.com/FlyAIBox/tripflow/internal/model"
	"github.com/FlyAIBox/tripflow/internal/report"
	"github.com/FlyAIBox/tripflow/internal/storage"
	"github.com/FlyAIBox/tripflow/internal/task"
)

// ServerConfig is the configuration for the HTTP server.
type ServerConfig struct {
	Runner     *task.Runner
	Repository storage.Repository
	Reports    *report.Writer
	// Planners maps each supported pipeline to its planner. The multi
	// agent pipeline is required, the rest are optional.
	Planners map[model.Pipeline]agent.Planner
	// RateLimiter, when set, is applied to all API routes.
	RateLimiter *RateLimiter
	// ModelName and LLMConfigured describe the LLM backing the pipelines,
	// reported on the health endpoint.
	ModelName     string
	LLMConfigured bool
	Logger        log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.Runner == nil {
		return fmt.Errorf("task runner is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Reports == nil {
		return fmt.Errorf("report writer is required")
	}
	if c.Planners[model.PipelineMultiAgent] == nil {
		return fmt.Errorf("multi-agent planner is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.Server"})
	return nil
}

// Server serves the planning API: plan submission endpoints that queue a
// task and return its ID, and task inspection endpoints that read from the
// repository.
type Server struct {
	runner        *task.Runner
	repo          storage.Repository
	reports       *report.Writer
	planners      map[model.Pipeline]agent.Planner
	limiter       *RateLimiter
	modelName     string
	llmConfigured bool
	logger        log.Logger
}

// NewServer creates the HTTP server for the planning API.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Server{
		runner:        cfg.Runner,
		repo:          cfg.Repository,
		reports:       cfg.Reports,
		planners:      cfg.Planners,
		limiter:       cfg.RateLimiter,
		modelName:     cfg.ModelName,
		llmConfigured: cfg.LLMConfigured,
		logger:        cfg.Logger,
	}, nil
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/health", s.handleHealth)

	api := router.Group("/")
	if s.limiter != nil {
		api.Use(s.limiter.Middleware())
	}
	api.POST("/plan", s.handlePlan(model.PipelineMultiAgent))
	api.POST("/simple-plan", s.handlePlan(model.PipelineSimple))
	api.POST("/mock-plan", s.handlePlan(model.PipelineMock))
	api.GET("/status/:task_id", s.handleStatus)
	api.GET("/download/:task_id", s.handleDownload)
	api.GET("/tasks", s.handleTasks)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	var active int
	if tasks, err := s.repo.ListTasks(c.Request.Context()); err == nil {
		for _, t := range tasks {
			if !t.Status.Terminal() {
				active++
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"service":            "tripflow",
		"model":              s.modelName,
		"api_key_configured": s.llmConfigured,
		"active_tasks":       active,
		"timestamp":          time.Now().UTC(),
	})
}

// handlePlan accepts a planning request and queues it on the given pipeline.
func (s *Server) handlePlan(pipeline model.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		planner, ok := s.planners[pipeline]
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": fmt.Sprintf("the %s pipeline is not configured", pipeline)})
			return
		}

		var req model.PlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %s", err)})
			return
		}

		taskID, err := s.runner.Submit(c.Request.Context(), req, planner)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrNotValid):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, task.ErrQueueFull):
				c.Header("Retry-After", "30")
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			default:
				s.logger.Errorf("Could not submit task: %s", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit task"})
			}
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"task_id":  taskID,
			"status":   model.TaskStatusPending,
			"pipeline": pipeline,
			"message":  "Task accepted. Poll /status/" + taskID + " for progress.",
		})
	}
}

// taskResponse is the API view of a task.
type taskResponse struct {
	TaskID       string            `json:"task_id"`
	Status       model.TaskStatus  `json:"status"`
	Pipeline     model.Pipeline    `json:"pipeline"`
	Progress     int               `json:"progress"`
	CurrentStage string            `json:"current_stage,omitempty"`
	Message      string            `json:"message,omitempty"`
	Error        string            `json:"error,omitempty"`
	Result       *model.Plan       `json:"result,omitempty"`
	ProducedBy   model.Pipeline    `json:"produced_by,omitempty"`
	ReportFile   string            `json:"report_file,omitempty"`
	Request      model.PlanRequest `json:"request"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

func newTaskResponse(t model.Task) taskResponse {
	resp := taskResponse{
		TaskID:       t.ID,
		Status:       t.Status,
		Pipeline:     t.Pipeline,
		Progress:     t.Progress,
		CurrentStage: t.CurrentStage,
		Message:      t.Message,
		Error:        t.Error,
		ProducedBy:   t.ProducedBy,
		ReportFile:   t.ReportFile,
		Request:      t.Request,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		FinishedAt:   t.FinishedAt,
	}
	// The full result is only exposed once the task has finished.
	if t.Status == model.TaskStatusCompleted {
		resp.Result = t.Result
	}
	return resp
}

func (s *Server) handleStatus(c *gin.Context) {
	t, err := s.repo.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		s.logger.Errorf("Could not get task: %s", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get task"})
		return
	}

	c.JSON(http.StatusOK, newTaskResponse(*t))
}

func (s *Server) handleDownload(c *gin.Context) {
	t, err := s.repo.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		s.logger.Errorf("Could not get task: %s", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get task"})
		return
	}

	if t.Status != model.TaskStatusCompleted || t.ReportFile == "" {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "task has no report yet",
			"status": t.Status,
		})
		return
	}

	path, err := s.reports.Path(t.ReportFile)
	if err != nil {
		s.logger.Errorf("Could not resolve report path: %s", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve report"})
		return
	}

	c.FileAttachment(path, t.ReportFile)
}

// taskSummary is the compact listing view of a task.
type taskSummary struct {
	TaskID      string           `json:"task_id"`
	Status      model.TaskStatus `json:"status"`
	Pipeline    model.Pipeline   `json:"pipeline"`
	Destination string           `json:"destination"`
	Progress    int              `json:"progress"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (s *Server) handleTasks(c *gin.Context) {
	tasks, err := s.repo.ListTasks(c.Request.Context())
	if err != nil {
		s.logger.Errorf("Could not list tasks: %s", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list tasks"})
		return
	}

	summaries := make([]taskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, taskSummary{
			TaskID:      t.ID,
			Status:      t.Status,
			Pipeline:    t.Pipeline,
			Destination: t.Request.Destination,
			Progress:    t.Progress,
			CreatedAt:   t.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": summaries,
		"total": len(summaries),
	})
}
