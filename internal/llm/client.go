// Package llm provides the language-model clients the agent tasks call:
// a local Ollama client, a hosted OpenAI-compatible client, and the
// resolver that picks between them. The model is treated as a single-
// concurrency, latency-sensitive resource; callers serialize access
// through the scheduler, not here.
package llm

import (
	"context"
	"time"
)

// Request carries one completion call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Client is the minimal interface tasks use to call an LLM.
type Client interface {
	// Complete sends a bare prompt with default sampling.
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteWithOptions sends a full request.
	CompleteWithOptions(ctx context.Context, req Request) (string, error)
	// Name identifies the backing client in logs.
	Name() string
}

const (
	defaultTimeout   = 5 * time.Minute
	defaultMaxTokens = 1024

	// minRequestGap spaces out consecutive calls to one client.
	minRequestGap = 100 * time.Millisecond

	maxRetries = 3
)

// backoff returns the sleep before retry attempt i (1-based).
func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}
