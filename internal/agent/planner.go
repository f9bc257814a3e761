package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/FlyAIBox/tripflow/internal/log"
	"github.com/FlyAIBox/tripflow/internal/model"
	"github.com/FlyAIBox/tripflow/internal/search"
)

const (
	// DefaultMaxIterations bounds stage executions (including search
	// re-invocations) per pipeline run.
	DefaultMaxIterations = 20

	tracerName = "github.com/FlyAIBox/tripflow/internal/agent"
)

// MultiAgentPlannerConfig is the configuration for the multi-stage planner.
type MultiAgentPlannerConfig struct {
	LLM    LLM
	Tools  *search.Tools
	Config *Config
	Logger log.Logger
}

func (c *MultiAgentPlannerConfig) defaults() error {
	if c.LLM == nil {
		return fmt.Errorf("llm is required")
	}
	if c.Tools == nil {
		return fmt.Errorf("tools are required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.MultiAgent"})
	return nil
}

// MultiAgentPlanner runs the worker stages in a fixed order, each a pure
// function from the request and the prior contributions to a new
// contribution. A stage may request one web search; the executor runs it
// and re-invokes the stage with the results appended.
type MultiAgentPlanner struct {
	llm           LLM
	tools         *search.Tools
	config        *Config
	maxIterations int
	logger        log.Logger
	runCounter    metric.Int64Counter
}

// NewMultiAgentPlanner creates a new multi-stage planner.
func NewMultiAgentPlanner(cfg MultiAgentPlannerConfig) (*MultiAgentPlanner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	maxIterations := DefaultMaxIterations
	if cfg.Config != nil && cfg.Config.MaxIterations > 0 {
		maxIterations = cfg.Config.MaxIterations
	}

	runCounter, err := otel.Meter(tracerName).Int64Counter("tripflow.pipeline.runs",
		metric.WithDescription("Planning pipeline runs."))
	if err != nil {
		return nil, fmt.Errorf("could not create run counter: %w", err)
	}

	return &MultiAgentPlanner{
		llm:           cfg.LLM,
		tools:         cfg.Tools,
		config:        cfg.Config,
		maxIterations: maxIterations,
		logger:        cfg.Logger,
		runCounter:    runCounter,
	}, nil
}

// Kind identifies the pipeline for result tagging.
func (p *MultiAgentPlanner) Kind() model.Pipeline { return model.PipelineMultiAgent }

// Plan runs every stage in order and compiles the final plan.
func (p *MultiAgentPlanner) Plan(ctx context.Context, req model.PlanRequest, onProgress ProgressFunc) (plan *model.Plan, err error) {
	runID := uuid.NewString()
	logger := p.logger.WithValues(log.Kv{"run-id": runID})

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.multi-agent")
	span.SetAttributes(attribute.String("run.id", runID), attribute.String("destination", req.Destination))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("pipeline", string(model.PipelineMultiAgent)),
			attribute.Bool("success", err == nil),
		))
	}()

	logger.Infof("Starting multi-agent planning for %s", req.Destination)

	report := func(stage Stage, percent int) {
		if onProgress != nil {
			onProgress(stage, percent)
		}
	}
	report(StageCoordinator, 5)

	var outputs []model.StageOutput
	iterations := 0

	for i, stage := range pipelineStages {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("planning cancelled at stage %s: %w", stage, ctx.Err())
		default:
		}

		percent := 5 + (i*90)/len(pipelineStages)
		report(stage, percent)

		out, stageIterations, err := p.runStage(ctx, stage, req, outputs, logger)
		if err != nil {
			return nil, fmt.Errorf("stage %s failed: %w", stage, err)
		}
		iterations += stageIterations
		if iterations > p.maxIterations {
			return nil, fmt.Errorf("pipeline exceeded %d iterations", p.maxIterations)
		}

		outputs = append(outputs, out)
		logger.Debugf("Stage %s completed (%d chars)", stage, len(out.Response))
	}

	report(StageCoordinator, 95)

	return compilePlan(req, outputs, iterations), nil
}

// runStage invokes one stage, serving at most one search request. Returns
// the contribution and the number of LLM invocations it took.
func (p *MultiAgentPlanner) runStage(ctx context.Context, stage Stage, req model.PlanRequest, prior []model.StageOutput, logger log.Logger) (model.StageOutput, int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "stage."+string(stage))
	defer span.End()

	system := p.config.systemPrompt(stage)

	response, err := p.llm.Generate(ctx, system, stagePrompt(req, prior, ""))
	if err != nil {
		return model.StageOutput{}, 1, err
	}
	iterations := 1

	if query, ok := parseSearchRequest(response); ok {
		logger.Debugf("Stage %s requested search: %q", stage, query)
		results := p.dispatchSearch(ctx, stage, query, req)

		response, err = p.llm.Generate(ctx, system, stagePrompt(req, prior, results))
		if err != nil {
			return model.StageOutput{}, iterations + 1, err
		}
		iterations++

		// A second search request is not served: strip the marker and
		// keep whatever advice the stage produced around it.
		if _, ok := parseSearchRequest(response); ok {
			response = strings.ReplaceAll(response, searchMarker, "")
		}
	}

	return model.StageOutput{
		Stage:     string(stage),
		Response:  strings.TrimSpace(response),
		Timestamp: time.Now().UTC(),
	}, iterations, nil
}

// dispatchSearch routes a stage search request to the matching tool. Query
// keywords take precedence, then the stage's natural tool, mirroring how
// agents phrase their search needs.
func (p *MultiAgentPlanner) dispatchSearch(ctx context.Context, stage Stage, query string, req model.PlanRequest) string {
	q := strings.ToLower(query)

	switch {
	case strings.Contains(q, "weather") || strings.Contains(q, "climate"):
		return p.tools.WeatherInfo(ctx, req.Destination, req.TravelDates())
	case strings.Contains(q, "hotel") || strings.Contains(q, "accommodation"):
		return p.tools.Hotels(ctx, req.Destination, req.BudgetRange)
	case strings.Contains(q, "restaurant") || strings.Contains(q, "food"):
		return p.tools.Restaurants(ctx, req.Destination)
	case strings.Contains(q, "budget") || strings.Contains(q, "cost") || strings.Contains(q, "price"):
		return p.tools.BudgetInfo(ctx, req.Destination, req.Duration())
	case strings.Contains(q, "attraction") || strings.Contains(q, "activity"):
		return p.tools.Attractions(ctx, req.Destination, strings.Join(req.Interests, " "))
	case strings.Contains(q, "local") || strings.Contains(q, "tip"):
		return p.tools.LocalTips(ctx, req.Destination)
	}

	// No keyword matched, fall back to the stage's natural tool.
	switch stage {
	case StageWeatherAnalyst:
		return p.tools.WeatherInfo(ctx, req.Destination, req.TravelDates())
	case StageBudgetOptimizer:
		return p.tools.BudgetInfo(ctx, req.Destination, req.Duration())
	case StageTravelAdvisor:
		return p.tools.Attractions(ctx, req.Destination, strings.Join(req.Interests, " "))
	case StageLocalExpert:
		return p.tools.LocalTips(ctx, req.Destination)
	default:
		return p.tools.DestinationInfo(ctx, req.Destination)
	}
}

// compilePlan assembles the final plan from the stage contributions.
func compilePlan(req model.PlanRequest, outputs []model.StageOutput, iterations int) *model.Plan {
	var content strings.Builder
	for _, out := range outputs {
		fmt.Fprintf(&content, "## %s\n\n%s\n\n", stageTitle(Stage(out.Stage)), out.Response)
	}

	return &model.Plan{
		Destination:    req.Destination,
		Duration:       req.Duration(),
		TravelDates:    req.TravelDates(),
		BudgetRange:    req.BudgetRange,
		GroupSize:      req.GroupSize,
		Interests:      req.Interests,
		PlanningMethod: string(model.PipelineMultiAgent),
		Summary:        planSummary(req),
		Content:        strings.TrimSpace(content.String()),
		StageOutputs:   outputs,
		Iterations:     iterations,
		GeneratedAt:    time.Now().UTC(),
	}
}

func planSummary(req model.PlanRequest) string {
	return fmt.Sprintf("%d-day trip to %s for %d (%s budget)",
		req.Duration(), req.Destination, req.GroupSize, req.BudgetRange)
}

// stageTitle returns the human readable heading for a stage.
func stageTitle(stage Stage) string {
	switch stage {
	case StageTravelAdvisor:
		return "Travel Advisor"
	case StageWeatherAnalyst:
		return "Weather Analyst"
	case StageBudgetOptimizer:
		return "Budget Optimizer"
	case StageLocalExpert:
		return "Local Expert"
	case StageItineraryPlanner:
		return "Itinerary Planner"
	case StageCoordinator:
		return "Coordinator"
	default:
		return string(stage)
	}
}
