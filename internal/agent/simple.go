package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FlyAIBox/tripflow/internal/log"
	"github.com/FlyAIBox/tripflow/internal/model"
)

// SimplePlannerConfig is the configuration for the single-prompt planner.
type SimplePlannerConfig struct {
	LLM    LLM
	Config *Config
	Logger log.Logger
}

func (c *SimplePlannerConfig) defaults() error {
	if c.LLM == nil {
		return fmt.Errorf("llm is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.Simple"})
	return nil
}

// SimplePlanner produces a plan from a single LLM call. It is the cheap
// fallback when the multi-stage pipeline fails or times out, and the
// pipeline behind the simple-plan endpoint.
type SimplePlanner struct {
	llm    LLM
	config *Config
	logger log.Logger
}

// NewSimplePlanner creates a new single-prompt planner.
func NewSimplePlanner(cfg SimplePlannerConfig) (*SimplePlanner, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &SimplePlanner{
		llm:    cfg.LLM,
		config: cfg.Config,
		logger: cfg.Logger,
	}, nil
}

// Kind identifies the pipeline for result tagging.
func (p *SimplePlanner) Kind() model.Pipeline { return model.PipelineSimple }

// Plan generates the whole plan with one prompt.
func (p *SimplePlanner) Plan(ctx context.Context, req model.PlanRequest, onProgress ProgressFunc) (*model.Plan, error) {
	if onProgress != nil {
		onProgress(simpleStage, 30)
	}

	p.logger.Infof("Starting simple planning for %s", req.Destination)

	content, err := p.llm.Generate(ctx, p.config.systemPrompt(simpleStage), stagePrompt(req, nil, ""))
	if err != nil {
		return nil, fmt.Errorf("could not generate plan: %w", err)
	}
	content = strings.TrimSpace(content)

	if onProgress != nil {
		onProgress(simpleStage, 95)
	}

	now := time.Now().UTC()
	return &model.Plan{
		Destination:    req.Destination,
		Duration:       req.Duration(),
		TravelDates:    req.TravelDates(),
		BudgetRange:    req.BudgetRange,
		GroupSize:      req.GroupSize,
		Interests:      req.Interests,
		PlanningMethod: string(model.PipelineSimple),
		Summary:        planSummary(req),
		Content:        content,
		StageOutputs: []model.StageOutput{{
			Stage:     string(simpleStage),
			Response:  content,
			Timestamp: now,
		}},
		Iterations:  1,
		GeneratedAt: now,
	}, nil
}
