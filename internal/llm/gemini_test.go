package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlyAIBox/tripflow/internal/llm"
)

func okResponse(text string) string {
	resp := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role":  "model",
				"parts": []map[string]string{{"text": text}},
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]int{
			"promptTokenCount":     10,
			"candidatesTokenCount": 5,
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestGeminiGenerate(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var gotPath, gotAPIKey string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("x-goog-api-key")
		require.NoError(json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(okResponse("A fine plan.")))
	}))
	defer server.Close()

	client := llm.NewGemini(
		llm.WithAPIKey("test-key"),
		llm.WithBaseURL(server.URL),
		llm.WithModel("gemini-2.0-flash"),
		llm.WithGenerationParams(llm.GenerationParams{Temperature: 0.7, TopP: 0.9, MaxTokens: 4000}),
	)

	text, err := client.Generate(context.Background(), "You are a planner.", "Plan a trip.")
	require.NoError(err)
	assert.Equal("A fine plan.", text)

	assert.Equal("/v1beta/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal("test-key", gotAPIKey)

	// The request carries the system instruction, the prompt and the
	// generation parameters.
	sys := gotBody["systemInstruction"].(map[string]any)
	sysParts := sys["parts"].([]any)
	assert.Equal("You are a planner.", sysParts[0].(map[string]any)["text"])

	contents := gotBody["contents"].([]any)
	content := contents[0].(map[string]any)
	assert.Equal("user", content["role"])

	genCfg := gotBody["generationConfig"].(map[string]any)
	assert.Equal(0.7, genCfg["temperature"])
	assert.Equal(0.9, genCfg["topP"])
	assert.Equal(float64(4000), genCfg["maxOutputTokens"])
}

func TestGeminiGenerateWithoutSystem(t *testing.T) {
	require := require.New(t)

	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(okResponse("ok")))
	}))
	defer server.Close()

	client := llm.NewGemini(llm.WithAPIKey("test-key"), llm.WithBaseURL(server.URL))

	_, err := client.Generate(context.Background(), "", "Plan a trip.")
	require.NoError(err)

	_, hasSystem := gotBody["systemInstruction"]
	require.False(hasSystem)
}

func TestGeminiGenerateMissingAPIKey(t *testing.T) {
	client := llm.NewGemini(llm.WithAPIKey(""))

	_, err := client.Generate(context.Background(), "", "Plan a trip.")
	require.Error(t, err)
	assert.False(t, client.Configured())
}

func TestGeminiGenerateRetriesRateLimit(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(okResponse("recovered")))
	}))
	defer server.Close()

	client := llm.NewGemini(llm.WithAPIKey("test-key"), llm.WithBaseURL(server.URL))

	text, err := client.Generate(context.Background(), "", "Plan a trip.")
	require.NoError(err)
	assert.Equal("recovered", text)
	assert.Equal(2, calls)
}

func TestGeminiGenerateServerError(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid argument"}`))
	}))
	defer server.Close()

	client := llm.NewGemini(llm.WithAPIKey("test-key"), llm.WithBaseURL(server.URL))

	_, err := client.Generate(context.Background(), "", "Plan a trip.")
	require.Error(err)
	assert.Contains(err.Error(), "API error 400")
}

func TestGeminiGenerateNoCandidates(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := llm.NewGemini(llm.WithAPIKey("test-key"), llm.WithBaseURL(server.URL))

	_, err := client.Generate(context.Background(), "", "Plan a trip.")
	require.Error(err)
	require.Contains(err.Error(), "no candidates")
}

func TestGeminiGenerateCancelledDuringRetry(t *testing.T) {
	require := require.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := llm.NewGemini(llm.WithAPIKey("test-key"), llm.WithBaseURL(server.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Generate(ctx, "", "Plan a trip.")
	require.Error(err)
	require.ErrorIs(err, context.Canceled)
}
