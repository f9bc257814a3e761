package commands

import (
	"github.com/alecthomas/kingpin/v2"

	"github.com/FlyAIBox/tripflow/internal/agent"
	"github.com/FlyAIBox/tripflow/internal/llm"
	"github.com/FlyAIBox/tripflow/internal/log"
)

// llmFlags are the Gemini flags shared by the commands that run pipelines.
type llmFlags struct {
	apiKey      string
	model       string
	temperature float64
	topP        float64
	maxTokens   int
}

func (f *llmFlags) register(cmd *kingpin.CmdClause) {
	cmd.Flag("gemini-api-key", "Google Gemini API key.").Envar("GEMINI_API_KEY").StringVar(&f.apiKey)
	cmd.Flag("gemini-model", "Gemini model to use.").Default(llm.DefaultModel).StringVar(&f.model)
	cmd.Flag("temperature", "LLM sampling temperature.").Default("0.7").Float64Var(&f.temperature)
	cmd.Flag("top-p", "LLM nucleus sampling probability.").Default("0.9").Float64Var(&f.topP)
	cmd.Flag("max-tokens", "Maximum tokens per LLM response.").Default("4000").IntVar(&f.maxTokens)
}

// client builds the Gemini client from the flags, with the agents config
// file overriding the generation parameters when set.
func (f *llmFlags) client(cfg *agent.Config, logger log.Logger) *llm.GeminiClient {
	params := llm.GenerationParams{
		Temperature: f.temperature,
		TopP:        f.topP,
		MaxTokens:   f.maxTokens,
	}
	if cfg != nil {
		if cfg.Temperature != nil {
			params.Temperature = *cfg.Temperature
		}
		if cfg.TopP != nil {
			params.TopP = *cfg.TopP
		}
		if cfg.MaxTokens != nil {
			params.MaxTokens = *cfg.MaxTokens
		}
	}

	return llm.NewGemini(
		llm.WithAPIKey(f.apiKey),
		llm.WithModel(f.model),
		llm.WithGenerationParams(params),
		llm.WithLogger(logger),
	)
}
