// Package report persists planning results to the results directory.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FlyAIBox/tripflow/internal/log"
	"github.com/FlyAIBox/tripflow/internal/model"
)

// WriterConfig is the configuration for the report writer.
type WriterConfig struct {
	ResultsDir string
	Logger     log.Logger
}

func (c *WriterConfig) defaults() error {
	if c.ResultsDir == "" {
		return fmt.Errorf("results dir is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "report.Writer"})
	return nil
}

// Writer writes plan reports as markdown files named by a human readable
// slug, plus the raw plan as JSON keyed by task ID.
type Writer struct {
	resultsDir string
	logger     log.Logger
}

// NewWriter creates a new report writer, creating the results directory if
// needed.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.ResultsDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create results directory: %w", err)
	}

	return &Writer{
		resultsDir: cfg.ResultsDir,
		logger:     cfg.Logger,
	}, nil
}

// Write persists the plan and returns the markdown report file name.
func (w *Writer) Write(taskID string, plan *model.Plan) (string, error) {
	reportFile := Filename(plan)

	if err := os.WriteFile(filepath.Join(w.resultsDir, reportFile), []byte(Render(taskID, plan)), 0644); err != nil {
		return "", fmt.Errorf("could not write report: %w", err)
	}

	raw, err := json.MarshalIndent(map[string]any{
		"task_id":   taskID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"result":    plan,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("could not marshal plan: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.resultsDir, taskID+".json"), raw, 0644); err != nil {
		return "", fmt.Errorf("could not write plan json: %w", err)
	}

	w.logger.Debugf("Wrote report %s for task %s", reportFile, taskID)

	return reportFile, nil
}

// Path returns the absolute path of a file inside the results directory.
// It rejects names that would escape it.
func (w *Writer) Path(name string) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid result file name %q: %w", name, model.ErrNotValid)
	}
	return filepath.Join(w.resultsDir, name), nil
}

// Filename returns the report file name: destination slug, group size and
// the pipeline label that produced the plan.
func Filename(plan *model.Plan) string {
	return fmt.Sprintf("%s-%d-%s.md", Slug(plan.Destination), plan.GroupSize, Slug(plan.PlanningMethod))
}

// Slug lowercases and strips a string down to letters, digits and dashes.
func Slug(s string) string {
	var b strings.Builder
	lastDash := true // Trims leading dashes.
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "unknown"
	}
	return out
}

// Render renders the plan as a markdown report.
func Render(taskID string, plan *model.Plan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Travel Plan: %s\n\n", plan.Destination)
	fmt.Fprintf(&b, "Generated: %s\n\n", plan.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Trip Overview\n\n")
	fmt.Fprintf(&b, "- Destination: %s\n", plan.Destination)
	fmt.Fprintf(&b, "- Duration: %d days\n", plan.Duration)
	fmt.Fprintf(&b, "- Travel dates: %s\n", plan.TravelDates)
	fmt.Fprintf(&b, "- Group size: %d\n", plan.GroupSize)
	fmt.Fprintf(&b, "- Budget range: %s\n", plan.BudgetRange)
	if len(plan.Interests) > 0 {
		fmt.Fprintf(&b, "- Interests: %s\n", strings.Join(plan.Interests, ", "))
	}
	b.WriteString("\n")

	b.WriteString(plan.Content)
	b.WriteString("\n\n---\n\n")

	fmt.Fprintf(&b, "Task: %s | Planning method: %s | Iterations: %d | Stages: %d\n",
		taskID, plan.PlanningMethod, plan.Iterations, len(plan.StageOutputs))

	return b.String()
}
