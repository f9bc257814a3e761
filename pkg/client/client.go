package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default client configuration values.
const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// Config configures the API client. All fields are optional: an empty
// Config{} talks to a local server.
type Config struct {
	// BaseURL is the server address. Default: http://localhost:8000.
	BaseURL string
	// HTTPClient is the HTTP client used for requests.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
}

// Client is a client for the tripflow planning API. It is safe for
// concurrent use from multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client.
func New(cfg Config) *Client {
	cfg.defaults()

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
	}
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// SubmitPlan submits a request to the multi-agent pipeline and returns the
// task ID to poll.
func (c *Client) SubmitPlan(ctx context.Context, req PlanRequest) (string, error) {
	return c.submit(ctx, "/plan", req)
}

// SubmitSimplePlan submits a request to the single-prompt pipeline.
func (c *Client) SubmitSimplePlan(ctx context.Context, req PlanRequest) (string, error) {
	return c.submit(ctx, "/simple-plan", req)
}

// SubmitMockPlan submits a request to the mock pipeline.
func (c *Client) SubmitMockPlan(ctx context.Context, req PlanRequest) (string, error) {
	return c.submit(ctx, "/mock-plan", req)
}

func (c *Client) submit(ctx context.Context, path string, req PlanRequest) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// Status returns the current state of a task.
func (c *Client) Status(ctx context.Context, taskID string) (*Task, error) {
	task := &Task{}
	if err := c.do(ctx, http.MethodGet, "/status/"+taskID, nil, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Tasks lists all tasks known to the server.
func (c *Client) Tasks(ctx context.Context) ([]TaskSummary, error) {
	var resp struct {
		Tasks []TaskSummary `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// DownloadReport fetches the markdown report of a completed task.
func (c *Client) DownloadReport(ctx context.Context, taskID string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, apiError(httpResp)
	}

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// WaitForResult polls a task until it reaches a terminal status. It returns
// the completed task, ErrTaskFailed when the task failed, or the context
// error when ctx ends first.
func (c *Client) WaitForResult(ctx context.Context, taskID string, pollInterval time.Duration) (*Task, error) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		task, err := c.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}

		switch task.Status {
		case TaskStatusCompleted:
			return task, nil
		case TaskStatusFailed:
			return task, fmt.Errorf("task %s: %s: %w", taskID, task.Error, ErrTaskFailed)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// do runs one JSON API call. body and out may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return apiError(httpResp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// apiError maps an API error response to the package sentinel errors.
func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", body.Error, ErrNotFound)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", body.Error, ErrNotValid)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", body.Error, ErrRateLimited)
	default:
		return fmt.Errorf("API error %d: %s", resp.StatusCode, body.Error)
	}
}
