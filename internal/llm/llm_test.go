package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindvault/internal/logging"
)

func openAIHandler(t *testing.T, respond func(w http.ResponseWriter, req openAIRequest)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		respond(w, req)
	}
}

func chatReply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

func TestOpenAI_Complete(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(openAIHandler(t, func(w http.ResponseWriter, req openAIRequest) {
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "be brief", req.Messages[0].Content)
		assert.Equal(t, "hello", req.Messages[1].Content)
		assert.Equal(t, 256, req.MaxTokens)
		assert.InDelta(t, 0.7, req.Temperature, 1e-9)
		chatReply(w, "hi there")
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", "test-model")
	got, err := c.CompleteWithOptions(context.Background(), Request{
		System: "be brief", Prompt: "hello", Temperature: 0.7, MaxTokens: 256,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
}

func TestOpenAI_MissingKey(t *testing.T) {
	t.Parallel()
	c := NewOpenAIClient("http://localhost:1", "", "m")
	_, err := c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestOpenAI_RetriesRateLimit(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		chatReply(w, "recovered")
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", "m")
	got, err := c.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenAI_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", "m")
	_, err := c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestOpenAI_RetryStopsOnCancel(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	c := NewOpenAIClient(srv.URL, "test-key", "m")
	start := time.Now()
	_, err := c.CompleteWithOptions(ctx, Request{Prompt: "x"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation must cut the backoff short")
}

func TestOllama_Complete(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, 1024, req.Options.NumPredict)
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: "local reply"},
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "test-model")
	got, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "local reply", got)
}

func TestOllama_Healthy(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "m")
	assert.True(t, c.Healthy(context.Background()))

	srv.Close()
	assert.False(t, c.Healthy(context.Background()))
}

type modeMap map[string]string

func (m modeMap) GetString(key string) string { return m[key] }

func TestResolver_Modes(t *testing.T) {
	t.Parallel()
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer local.Close()

	events := logging.NewEventLogger(nil, nil)

	// local mode with a live server.
	r := NewResolver(modeMap{"llm.mode": "local", "llm.local_url": local.URL}, events)
	client, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Contains(t, client.Name(), "ollama/")

	// api mode always yields the hosted client.
	r = NewResolver(modeMap{"llm.mode": "api", "llm.api_model": "m"}, events)
	client, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Contains(t, client.Name(), "openai/")

	// auto prefers the live local server.
	r = NewResolver(modeMap{"llm.mode": "auto", "llm.local_url": local.URL}, events)
	client, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Contains(t, client.Name(), "ollama/")
}

func TestResolver_LocalUnreachable(t *testing.T) {
	t.Parallel()
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	events := logging.NewEventLogger(nil, nil)

	// local mode fails hard.
	r := NewResolver(modeMap{"llm.mode": "local", "llm.local_url": dead.URL}, events)
	_, err := r.Resolve(context.Background())
	require.Error(t, err)

	// auto falls back to the hosted client.
	r = NewResolver(modeMap{"llm.mode": "auto", "llm.local_url": dead.URL, "llm.api_model": "m"}, events)
	client, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Contains(t, client.Name(), "openai/")
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	assert.Equal(t, time.Second, backoff(1))
	assert.Equal(t, 2*time.Second, backoff(2))
	assert.Equal(t, 4*time.Second, backoff(3))
}
