package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-redis/redis/v8"

	"github.com/FlyAIBox/tripflow/internal/agent"
	"github.com/FlyAIBox/tripflow/internal/model"
	"github.com/FlyAIBox/tripflow/internal/report"
	"github.com/FlyAIBox/tripflow/internal/search"
	"github.com/FlyAIBox/tripflow/internal/server"
	"github.com/FlyAIBox/tripflow/internal/storage"
	"github.com/FlyAIBox/tripflow/internal/storage/memory"
	"github.com/FlyAIBox/tripflow/internal/storage/sqlite"
	"github.com/FlyAIBox/tripflow/internal/task"
)

// ServeCommand runs the planning HTTP API.
type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listen       string
	storageType  string
	workers      int
	queueSize    int
	planTimeout  time.Duration
	mockDelay    time.Duration
	agentsConfig string
	redisAddr    string
	rateLimit    int

	llm llmFlags
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the travel planning HTTP API.")
	c.Cmd.Flag("listen", "Address to listen on.").Default(":8000").StringVar(&c.listen)
	c.Cmd.Flag("storage", "Task storage backend.").Default("sqlite").EnumVar(&c.storageType, "sqlite", "memory")
	c.Cmd.Flag("workers", "Number of planning workers.").Default("4").IntVar(&c.workers)
	c.Cmd.Flag("queue-size", "Maximum queued tasks before rejecting new ones.").Default("64").IntVar(&c.queueSize)
	c.Cmd.Flag("plan-timeout", "Per-attempt pipeline timeout.").Default("5m").DurationVar(&c.planTimeout)
	c.Cmd.Flag("mock-delay", "Simulated work time of the mock pipeline.").Default("2s").DurationVar(&c.mockDelay)
	c.Cmd.Flag("agents-config", "Path to the YAML pipeline configuration file.").StringVar(&c.agentsConfig)
	c.Cmd.Flag("redis-addr", "Redis address for rate limiting (empty disables it).").StringVar(&c.redisAddr)
	c.Cmd.Flag("rate-limit", "Requests allowed per client and minute.").Default("60").IntVar(&c.rateLimit)

	c.llm.register(c.Cmd)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Load pipeline configuration.
	var agentsCfg *agent.Config
	if c.agentsConfig != "" {
		var err error
		agentsCfg, err = agent.LoadConfig(c.agentsConfig)
		if err != nil {
			return fmt.Errorf("could not load agents config: %w", err)
		}
	}

	// Initialize storage.
	var repo storage.Repository
	switch c.storageType {
	case "sqlite":
		var err error
		repo, err = sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: c.rootCmd.DBPath,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("could not create repository: %w", err)
		}
	case "memory":
		var err error
		repo, err = memory.NewRepository(memory.RepositoryConfig{Logger: logger})
		if err != nil {
			return fmt.Errorf("could not create repository: %w", err)
		}
	}

	// Report writer.
	reports, err := report.NewWriter(report.WriterConfig{
		ResultsDir: c.rootCmd.ResultsDir,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create report writer: %w", err)
	}

	// Gemini client and search tools.
	gemini := c.llm.client(agentsCfg, logger)
	if !gemini.Configured() {
		logger.Warningf("No Gemini API key configured, LLM pipelines will fail (set --gemini-api-key or GEMINI_API_KEY)")
	}

	searcher, err := search.NewClient(search.ClientConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create search client: %w", err)
	}
	tools := search.NewTools(searcher)

	// Planners.
	multiPlanner, err := agent.NewMultiAgentPlanner(agent.MultiAgentPlannerConfig{
		LLM:    gemini,
		Tools:  tools,
		Config: agentsCfg,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create multi-agent planner: %w", err)
	}

	simplePlanner, err := agent.NewSimplePlanner(agent.SimplePlannerConfig{
		LLM:    gemini,
		Config: agentsCfg,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create simple planner: %w", err)
	}

	mockPlanner := &agent.MockPlanner{Delay: c.mockDelay}

	// Task runner, falling back to the simple pipeline.
	runner, err := task.NewRunner(task.RunnerConfig{
		Repository: repo,
		Reports:    reports,
		Fallback:   simplePlanner,
		Workers:    c.workers,
		QueueSize:  c.queueSize,
		Timeout:    c.planTimeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create task runner: %w", err)
	}

	// Optional Redis rate limiter.
	var limiter *server.RateLimiter
	if c.redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: c.redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("could not connect to redis at %q: %w", c.redisAddr, err)
		}
		limiter, err = server.NewRateLimiter(server.RateLimiterConfig{
			Client:    redisClient,
			PerMinute: c.rateLimit,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("could not create rate limiter: %w", err)
		}
		logger.Infof("Rate limiting enabled (%d req/min per client)", c.rateLimit)
	}

	// HTTP server.
	srv, err := server.NewServer(server.ServerConfig{
		Runner:     runner,
		Repository: repo,
		Reports:    reports,
		Planners: map[model.Pipeline]agent.Planner{
			model.PipelineMultiAgent: multiPlanner,
			model.PipelineSimple:     simplePlanner,
			model.PipelineMock:       mockPlanner,
		},
		RateLimiter:   limiter,
		ModelName:     gemini.Model(),
		LLMConfigured: gemini.Configured(),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:    c.listen,
		Handler: srv.Handler(),
	}

	logger.Infof("Listening on %s (model %s, %d workers)", c.listen, gemini.Model(), c.workers)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown: stop accepting requests, then drain the workers.
	logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Could not shut down server cleanly: %s", err)
	}
	runner.Stop()

	return nil
}
