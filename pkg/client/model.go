package client

import (
	"errors"
	"time"
)

// API errors.
var (
	// ErrNotFound is returned when the requested task does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when the server rejects the request.
	ErrNotValid = errors.New("not valid")
	// ErrRateLimited is returned when the server rate limit is hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrTaskFailed is returned by WaitForResult when the task finished
	// without a result.
	ErrTaskFailed = errors.New("task failed")
)

// Task statuses.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Budget tiers accepted on plan requests.
const (
	BudgetLow    = "budget"
	BudgetMid    = "mid-range"
	BudgetLuxury = "luxury"
)

// PlanRequest is a travel planning request.
type PlanRequest struct {
	Destination string   `json:"destination"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	BudgetRange string   `json:"budget_range"`
	GroupSize   int      `json:"group_size"`
	Interests   []string `json:"interests"`

	// Optional preferences.
	DietaryRestrictions      string `json:"dietary_restrictions,omitempty"`
	ActivityLevel            string `json:"activity_level,omitempty"`
	TravelStyle              string `json:"travel_style,omitempty"`
	TransportationPreference string `json:"transportation_preference,omitempty"`
	AccommodationPreference  string `json:"accommodation_preference,omitempty"`
	SpecialOccasion          string `json:"special_occasion,omitempty"`
	SpecialRequirements      string `json:"special_requirements,omitempty"`
	Currency                 string `json:"currency,omitempty"`
}

// StageOutput is one pipeline stage contribution to a plan.
type StageOutput struct {
	Stage     string    `json:"stage"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Plan is a completed travel plan.
type Plan struct {
	Destination    string        `json:"destination"`
	Duration       int           `json:"duration"`
	TravelDates    string        `json:"travel_dates"`
	BudgetRange    string        `json:"budget_range"`
	GroupSize      int           `json:"group_size"`
	Interests      []string      `json:"interests"`
	PlanningMethod string        `json:"planning_method"`
	Summary        string        `json:"summary"`
	Content        string        `json:"content"`
	StageOutputs   []StageOutput `json:"stage_outputs"`
	Iterations     int           `json:"iterations"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// Task is the state of a planning task as reported by the API.
type Task struct {
	TaskID       string      `json:"task_id"`
	Status       string      `json:"status"`
	Pipeline     string      `json:"pipeline"`
	Progress     int         `json:"progress"`
	CurrentStage string      `json:"current_stage,omitempty"`
	Message      string      `json:"message,omitempty"`
	Error        string      `json:"error,omitempty"`
	Result       *Plan       `json:"result,omitempty"`
	ProducedBy   string      `json:"produced_by,omitempty"`
	ReportFile   string      `json:"report_file,omitempty"`
	Request      PlanRequest `json:"request"`
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}

// TaskSummary is a compact task listing entry.
type TaskSummary struct {
	TaskID      string    `json:"task_id"`
	Status      string    `json:"status"`
	Pipeline    string    `json:"pipeline"`
	Destination string    `json:"destination"`
	Progress    int       `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
}
