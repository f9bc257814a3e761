// Package llm provides the LLM client used by the planning pipelines.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/FlyAIBox/tripflow/internal/log"
)

// Default Gemini configuration values.
const (
	DefaultModel     = "gemini-2.0-flash"
	DefaultBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultTimeout   = 2 * time.Minute
	DefaultMaxTokens = 4000
)

// GenerationParams are the model generation knobs.
type GenerationParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// DefaultGenerationParams returns the generation parameters used when none
// are configured.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{Temperature: 0.7, TopP: 0.9, MaxTokens: DefaultMaxTokens}
}

// GeminiClient is a client for the Google Gemini generateContent API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	params     GenerationParams
	httpClient *http.Client
	logger     log.Logger
}

// GeminiOption configures the Gemini client.
type GeminiOption func(*GeminiClient)

// WithAPIKey sets the API key.
func WithAPIKey(key string) GeminiOption {
	return func(c *GeminiClient) { c.apiKey = key }
}

// WithModel sets the model name.
func WithModel(model string) GeminiOption {
	return func(c *GeminiClient) { c.model = model }
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithGenerationParams sets the model generation parameters.
func WithGenerationParams(p GenerationParams) GeminiOption {
	return func(c *GeminiClient) { c.params = p }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(c *GeminiClient) { c.httpClient = client }
}

// WithLogger sets the client logger.
func WithLogger(logger log.Logger) GeminiOption {
	return func(c *GeminiClient) { c.logger = logger }
}

// NewGemini creates a new Gemini client.
func NewGemini(opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		apiKey:     os.Getenv("GEMINI_API_KEY"),
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		params:     DefaultGenerationParams(),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Noop,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.WithValues(log.Kv{"svc": "llm.Gemini"})

	return c
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// Configured returns true when an API key is set.
func (c *GeminiClient) Configured() bool { return c.apiKey != "" }

// geminiRequest is the generateContent API request format.
type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// geminiResponse is the generateContent API response format.
type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate sends a prompt with an optional system instruction and returns
// the generated text.
func (c *GeminiClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini API key is empty")
	}

	req := &geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:     c.params.Temperature,
			TopP:            c.params.TopP,
			MaxOutputTokens: c.params.MaxTokens,
		},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("model returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("model returned an empty response (finish reason %q)", resp.Candidates[0].FinishReason)
	}

	c.logger.Debugf("Generated %d tokens in %s", resp.UsageMetadata.CandidatesTokenCount, time.Since(start))

	return text.String(), nil
}

func (c *GeminiClient) doRequest(ctx context.Context, req *geminiRequest) (*geminiResponse, error) {
	const maxRetries = 3

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("http request: %w", err)
		}

		respBody, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if httpResp.StatusCode == http.StatusOK {
			var resp geminiResponse
			if err := json.Unmarshal(respBody, &resp); err != nil {
				return nil, fmt.Errorf("unmarshal response: %w", err)
			}
			return &resp, nil
		}

		// Retry on 429 (quota) and 503 (overloaded).
		if (httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode == http.StatusServiceUnavailable) && attempt < maxRetries {
			wait := retryAfterDelay(httpResp, attempt)
			c.logger.Warningf("API rate limited (status %d), retrying in %s (attempt %d)", httpResp.StatusCode, wait, attempt+1)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		return nil, fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(respBody))
	}

	return nil, fmt.Errorf("max retries exceeded")
}

// retryAfterDelay returns how long to wait before retrying a rate-limited
// request. It respects the retry-after header if present, otherwise uses
// exponential backoff.
func retryAfterDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// Exponential backoff: 2s, 4s, 8s.
	wait := time.Duration(2<<uint(attempt)) * time.Second
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	return wait
}
