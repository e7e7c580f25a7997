package oracle

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"support-triage-go/internal/config"
)

// Completer is the capability the analyzer and drafter depend on: a single
// prompt in, generated text out. It is injectable so heuristic logic can be
// tested without a live network dependency.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// CompleterFunc adapts a plain function to the Completer interface
type CompleterFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Complete calls the wrapped function
func (f CompleterFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// DefaultModel is used when no model is configured
const DefaultModel = "gpt-4o-mini"

// Client is an OpenAI-backed Completer. Every call is bounded by the
// configured timeout; callers are expected to treat failures as a signal to
// fall back to their heuristic path, never as a hard error.
type Client struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewClient creates an OpenAI-backed oracle client. It returns nil when no
// API key is configured, which disables refinement entirely.
func NewClient(cfg *config.OracleConfig) *Client {
	if cfg.APIKey == "" {
		return nil
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		client:    openai.NewClient(cfg.APIKey),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// Complete sends a single-message chat completion request and returns the
// first choice's content
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 || maxTokens > c.maxTokens {
		maxTokens = c.maxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
