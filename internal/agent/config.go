package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds optional overrides for the planning pipelines, loaded from a
// YAML file. Zero values keep the built-in defaults.
type Config struct {
	// Generation parameter overrides for the LLM client.
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	MaxTokens   *int     `yaml:"max_tokens"`

	// MaxIterations caps the pipeline stage executions per run.
	MaxIterations int `yaml:"max_iterations"`

	// Stages overrides the system prompt of individual stages, keyed by
	// stage name.
	Stages map[Stage]StageConfig `yaml:"stages"`
}

// StageConfig is the per-stage configuration.
type StageConfig struct {
	System string `yaml:"system"`
}

// LoadConfig loads pipeline configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}

	for stage := range cfg.Stages {
		if _, ok := stageSystemPrompts[stage]; !ok {
			return nil, fmt.Errorf("unknown stage %q in config", stage)
		}
	}

	return cfg, nil
}

// systemPrompt returns the system prompt for a stage, honoring overrides.
func (c *Config) systemPrompt(stage Stage) string {
	if c != nil {
		if sc, ok := c.Stages[stage]; ok && sc.System != "" {
			return sc.System
		}
	}
	return stageSystemPrompts[stage]
}
