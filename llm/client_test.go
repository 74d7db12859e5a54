package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loomworks/canoncore/llm"
	_ "github.com/loomworks/canoncore/llm/providers" // Register providers
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1677652288,
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     10,
			"completion_tokens": 8,
			"total_tokens":      18,
		},
	}
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("A weathered coastal fortress."))
	}))
	defer server.Close()

	client := llm.NewClient(llm.EndpointConfig{
		Provider: "ollama",
		URL:      server.URL,
		Model:    "test-model",
	})

	resp, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: "user", Content: "Describe the fortress of Kharvel"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "A weathered coastal fortress.", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.NotEmpty(t, resp.RequestID)
}

func TestClient_Complete_RetryOnTransientError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Service temporarily unavailable"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("Success after retries"))
	}))
	defer server.Close()

	client := llm.NewClient(
		llm.EndpointConfig{Provider: "ollama", URL: server.URL, Model: "test-model"},
		llm.WithRetryConfig(llm.RetryConfig{
			MaxAttempts:       3,
			BackoffBase:       time.Millisecond,
			BackoffMultiplier: 1.0,
			MaxBackoff:        5 * time.Millisecond,
		}),
	)

	resp, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Success after retries", resp.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Complete_FatalErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	client := llm.NewClient(llm.EndpointConfig{Provider: "ollama", URL: server.URL, Model: "test-model"})

	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})

	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.True(t, llm.IsTransport(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Complete_UnknownProvider(t *testing.T) {
	client := llm.NewClient(llm.EndpointConfig{Provider: "nonesuch", Model: "test-model"})

	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})

	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestClient_Complete_RequiresMessages(t *testing.T) {
	client := llm.NewClient(llm.EndpointConfig{Provider: "ollama", Model: "test-model"})

	_, err := client.Complete(context.Background(), llm.Request{})
	require.Error(t, err)
}

func TestClient_Complete_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := llm.NewClient(
		llm.EndpointConfig{Provider: "ollama", URL: server.URL, Model: "test-model"},
		llm.WithRetryConfig(llm.RetryConfig{
			MaxAttempts:       5,
			BackoffBase:       time.Hour,
			BackoffMultiplier: 1.0,
			MaxBackoff:        time.Hour,
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})

	require.ErrorIs(t, err, context.Canceled)
}
