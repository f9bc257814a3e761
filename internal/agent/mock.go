package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FlyAIBox/tripflow/internal/model"
)

// MockPlanner produces a canned plan without external calls. It backs the
// mock-plan endpoint and is used in tests.
type MockPlanner struct {
	// Delay makes the planner take time, for exercising timeouts.
	Delay time.Duration
	// Err, when set, is returned instead of a plan.
	Err error
}

// Kind identifies the pipeline for result tagging.
func (p *MockPlanner) Kind() model.Pipeline { return model.PipelineMock }

// Plan returns a canned plan after the configured delay.
func (p *MockPlanner) Plan(ctx context.Context, req model.PlanRequest, onProgress ProgressFunc) (*model.Plan, error) {
	if onProgress != nil {
		onProgress(StageCoordinator, 50)
	}

	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.Err != nil {
		return nil, p.Err
	}

	interests := "general sightseeing"
	if len(req.Interests) > 0 {
		interests = strings.Join(req.Interests, ", ")
	}
	content := fmt.Sprintf(
		"Mock travel plan for %s: %d days, %s budget, %d travelers, focused on %s.",
		req.Destination, req.Duration(), req.BudgetRange, req.GroupSize, interests)

	now := time.Now().UTC()
	return &model.Plan{
		Destination:    req.Destination,
		Duration:       req.Duration(),
		TravelDates:    req.TravelDates(),
		BudgetRange:    req.BudgetRange,
		GroupSize:      req.GroupSize,
		Interests:      req.Interests,
		PlanningMethod: string(model.PipelineMock),
		Summary:        planSummary(req),
		Content:        content,
		StageOutputs: []model.StageOutput{{
			Stage:     string(StageCoordinator),
			Response:  content,
			Timestamp: now,
		}},
		Iterations:  1,
		GeneratedAt: now,
	}, nil
}
