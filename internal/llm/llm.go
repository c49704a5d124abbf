// Package llm wraps an OpenAI-compatible chat completion endpoint (C11),
// grounded on the teacher's pkg/models/openai.go OpenAILLM, with t_llm
// timeout and r_llm retry semantics added per spec §4.7/§8 (the teacher's
// OpenAILLM.Generate has no timeout or retry of its own).
package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/elevend0g/vicw/internal/model"
)

// ErrEmptyResponse is returned when the provider responds with zero choices.
var ErrEmptyResponse = errors.New("llm: empty response from provider")

// Client wraps an OpenAI-compatible chat completion endpoint with a bounded timeout and retry
// policy: 4xx responses are never retried (the request itself is malformed or rejected); 5xx and
// network errors are retried up to MaxRetries times with exponential backoff (spec §4.7).
type Client struct {
	inner      *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

// New constructs a Client. baseURL may be empty to use the default OpenAI API endpoint; apiKey is
// required by go-openai even against local/compatible servers that ignore it.
func New(apiKey, baseURL, model string, timeout time.Duration, maxRetries int) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		inner:      openai.NewClientWithConfig(cfg),
		model:      model,
		timeout:    timeout,
		maxRetries: maxRetries,
	}
}

func toOpenAIMessages(msgs []model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case model.RoleSystem, model.RoleState, model.RoleRAG:
			role = openai.ChatMessageRoleSystem
		case model.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// Complete sends prompt messages and returns the model's reply text, retrying transient (5xx,
// network, timeout) failures with exponential backoff while never retrying 4xx failures.
func (c *Client) Complete(ctx context.Context, messages []model.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(messages),
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.inner.CreateChatCompletion(callCtx, req)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return "", ErrEmptyResponse
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRetryable(err) || attempt == c.maxRetries {
			return "", err
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * 200 * time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}

// isRetryable reports whether err came from a transient condition (5xx status, timeout, or
// network failure) rather than a client error (4xx) that would fail identically on retry.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}
