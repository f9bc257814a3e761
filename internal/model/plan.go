package model

import "time"

// StageOutput is the contribution of a single pipeline stage to a plan.
type StageOutput struct {
	Stage     string    `json:"stage"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Plan is the final travel plan produced by a planning pipeline.
type Plan struct {
	Destination string   `json:"destination"`
	Duration    int      `json:"duration"`
	TravelDates string   `json:"travel_dates"`
	BudgetRange string   `json:"budget_range"`
	GroupSize   int      `json:"group_size"`
	Interests   []string `json:"interests"`

	// PlanningMethod names the pipeline that produced the plan.
	PlanningMethod string `json:"planning_method"`
	// Summary is a one line description, Content the full plan text.
	Summary string `json:"summary"`
	Content string `json:"content"`

	// StageOutputs are the per stage contributions in execution order.
	StageOutputs []StageOutput `json:"stage_outputs"`
	// Iterations is the number of coordinator rounds the pipeline ran.
	Iterations int `json:"iterations"`

	GeneratedAt time.Time `json:"generated_at"`
}
