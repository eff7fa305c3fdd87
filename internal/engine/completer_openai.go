package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"story-o-matic/server/internal/config"
	"story-o-matic/server/internal/interfaces"
)

// OpenAICompleter talks to any OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	maxAttempts int
	retryDelay  time.Duration
}

// NewOpenAICompleter creates a completer for an OpenAI-compatible API
func NewOpenAICompleter(cfg config.OpenAIConfig, timeout time.Duration) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai backend: %w", ErrMissingAPIKey)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: timeout,
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxAttempts: maxAttempts,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

func (c *OpenAICompleter) Name() string {
	return "openai:" + c.model
}

// Complete sends a single-message chat completion, retrying transient failures
func (c *OpenAICompleter) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		text, err := c.doComplete(ctx, req)
		if err == nil {
			return text, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	if c.maxAttempts > 1 {
		return "", fmt.Errorf("failed after %d attempts: %w", c.maxAttempts, lastErr)
	}
	return "", lastErr
}

func (c *OpenAICompleter) doComplete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: req.Temperature,
		TopP:        req.TopP,
		N:           int(req.CandidateCount),
	}
	if req.JSONResponse {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned from model")
	}
	return resp.Choices[0].Message.Content, nil
}

// isRetryableError checks if an error is worth another attempt
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "rate limit")
}
