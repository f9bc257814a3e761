// Package agent implements the travel planning pipelines: a multi-stage
// pipeline of specialized prompts over a shared LLM client, a single-prompt
// fallback, and a mock used by tests and the mock endpoint.
package agent

import (
	"context"

	"github.com/FlyAIBox/tripflow/internal/model"
)

// Stage identifies a step of the multi-stage planning pipeline. The set of
// stages is closed: stages are not registered or looked up by free-form
// role names.
type Stage string

const (
	// StageCoordinator is the executor loop that sequences the worker
	// stages, reported as the current stage between worker invocations.
	StageCoordinator Stage = "coordinator"
	// StageTravelAdvisor recommends attractions and destination know-how.
	StageTravelAdvisor Stage = "travel_advisor"
	// StageWeatherAnalyst covers climate and weather-aware planning.
	StageWeatherAnalyst Stage = "weather_analyst"
	// StageBudgetOptimizer breaks down costs and saving strategies.
	StageBudgetOptimizer Stage = "budget_optimizer"
	// StageLocalExpert contributes insider knowledge and etiquette.
	StageLocalExpert Stage = "local_expert"
	// StageItineraryPlanner assembles the day-by-day schedule.
	StageItineraryPlanner Stage = "itinerary_planner"
)

// pipelineStages is the execution order of the worker stages. The itinerary
// planner runs last so it can use every other contribution.
var pipelineStages = []Stage{
	StageTravelAdvisor,
	StageWeatherAnalyst,
	StageBudgetOptimizer,
	StageLocalExpert,
	StageItineraryPlanner,
}

// LLM generates text from a system instruction and a prompt. Satisfied by
// llm.GeminiClient.
type LLM interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ProgressFunc reports pipeline progress: the stage being executed and a
// coarse completion percentage.
type ProgressFunc func(stage Stage, percent int)

// Planner produces a travel plan for a validated request.
type Planner interface {
	// Kind identifies the pipeline for result tagging.
	Kind() model.Pipeline
	// Plan runs the pipeline. onProgress may be nil.
	Plan(ctx context.Context, req model.PlanRequest, onProgress ProgressFunc) (*model.Plan, error)
}
