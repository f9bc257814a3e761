package model

import "time"

// TaskStatus represents the status of a planning task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been accepted but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates a worker is executing the task pipeline.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished and has a result.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task finished without a result.
	TaskStatusFailed TaskStatus = "failed"
)

// Terminal returns true when no further status transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Pipeline identifies which planning pipeline handles (or handled) a task.
type Pipeline string

const (
	// PipelineMultiAgent is the full multi-stage planning pipeline.
	PipelineMultiAgent Pipeline = "multi-agent"
	// PipelineSimple is the single-prompt planning pipeline.
	PipelineSimple Pipeline = "simple"
	// PipelineMock produces a canned plan without external calls.
	PipelineMock Pipeline = "mock"
)

// Task represents one planning request and its lifecycle record.
type Task struct {
	ID       string
	Status   TaskStatus
	Pipeline Pipeline
	Request  PlanRequest

	// Progress is a coarse 0-100 indicator, CurrentStage the pipeline
	// stage being executed and Message a human readable status line.
	Progress     int
	CurrentStage string
	Message      string

	// Result is set on completion, Error on failure. ProducedBy tags
	// which pipeline produced the result (differs from Pipeline when
	// the fallback path ran).
	Result     *Plan
	ProducedBy Pipeline
	Error      string

	// ReportFile is the markdown report name inside the results
	// directory, set once the result has been persisted.
	ReportFile string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}
