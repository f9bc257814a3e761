package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/ulid/v2"

	"github.com/FlyAIBox/tripflow/internal/agent"
	"github.com/FlyAIBox/tripflow/internal/model"
	"github.com/FlyAIBox/tripflow/internal/report"
	"github.com/FlyAIBox/tripflow/internal/search"
)

// PlanCommand runs a single planning pipeline from the terminal, without
// the HTTP server, and writes the report to the results directory.
type PlanCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	destination  string
	startDate    string
	endDate      string
	budget       string
	groupSize    int
	interests    []string
	pipeline     string
	timeout      time.Duration
	agentsConfig string

	llm llmFlags
}

// NewPlanCommand returns the plan command.
func NewPlanCommand(rootCmd *RootCommand, app *kingpin.Application) *PlanCommand {
	c := &PlanCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("plan", "Plan a trip from the terminal.")
	c.Cmd.Flag("destination", "Destination city or region.").Short('d').Required().StringVar(&c.destination)
	c.Cmd.Flag("start-date", "Trip start date (YYYY-MM-DD).").Required().StringVar(&c.startDate)
	c.Cmd.Flag("end-date", "Trip end date (YYYY-MM-DD).").Required().StringVar(&c.endDate)
	c.Cmd.Flag("budget", "Budget range.").Default(model.BudgetMid).EnumVar(&c.budget, model.BudgetLow, model.BudgetMid, model.BudgetLuxury)
	c.Cmd.Flag("group-size", "Number of travelers.").Default("2").IntVar(&c.groupSize)
	c.Cmd.Flag("interest", "Traveler interest (repeatable).").StringsVar(&c.interests)
	c.Cmd.Flag("pipeline", "Planning pipeline to run.").Default(string(model.PipelineMultiAgent)).EnumVar(&c.pipeline,
		string(model.PipelineMultiAgent), string(model.PipelineSimple), string(model.PipelineMock))
	c.Cmd.Flag("timeout", "Pipeline timeout.").Default("5m").DurationVar(&c.timeout)
	c.Cmd.Flag("agents-config", "Path to the YAML pipeline configuration file.").StringVar(&c.agentsConfig)

	c.llm.register(c.Cmd)

	return c
}

func (c PlanCommand) Name() string { return c.Cmd.FullCommand() }

func (c PlanCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	req := model.PlanRequest{
		Destination: c.destination,
		StartDate:   c.startDate,
		EndDate:     c.endDate,
		BudgetRange: c.budget,
		GroupSize:   c.groupSize,
		Interests:   c.interests,
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	// Load pipeline configuration.
	var agentsCfg *agent.Config
	if c.agentsConfig != "" {
		var err error
		agentsCfg, err = agent.LoadConfig(c.agentsConfig)
		if err != nil {
			return fmt.Errorf("could not load agents config: %w", err)
		}
	}

	planner, err := c.planner(agentsCfg)
	if err != nil {
		return err
	}

	reports, err := report.NewWriter(report.WriterConfig{
		ResultsDir: c.rootCmd.ResultsDir,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create report writer: %w", err)
	}

	logger.Infof("Planning a %d day trip to %s (%s pipeline)", req.Duration(), req.Destination, planner.Kind())

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	onProgress := func(stage agent.Stage, percent int) {
		logger.Infof("[%3d%%] %s", percent, stage)
	}

	plan, err := planner.Plan(ctx, req, onProgress)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	taskID := ulid.Make().String()
	reportFile, err := reports.Write(taskID, plan)
	if err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "%s\n", plan.Content)
	fmt.Fprintf(c.rootCmd.Stdout, "\nReport written to %s\n", reportFile)

	return nil
}

// planner builds the selected pipeline.
func (c PlanCommand) planner(agentsCfg *agent.Config) (agent.Planner, error) {
	rootLogger := c.rootCmd.Logger

	switch model.Pipeline(c.pipeline) {
	case model.PipelineMock:
		return &agent.MockPlanner{Delay: time.Second}, nil

	case model.PipelineSimple:
		p, err := agent.NewSimplePlanner(agent.SimplePlannerConfig{
			LLM:    c.llm.client(agentsCfg, rootLogger),
			Config: agentsCfg,
			Logger: rootLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create simple planner: %w", err)
		}
		return p, nil

	default:
		searcher, err := search.NewClient(search.ClientConfig{Logger: rootLogger})
		if err != nil {
			return nil, fmt.Errorf("could not create search client: %w", err)
		}
		p, err := agent.NewMultiAgentPlanner(agent.MultiAgentPlannerConfig{
			LLM:    c.llm.client(agentsCfg, rootLogger),
			Tools:  search.NewTools(searcher),
			Config: agentsCfg,
			Logger: rootLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create multi-agent planner: %w", err)
		}
		return p, nil
	}
}
