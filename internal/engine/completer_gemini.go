package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"story-o-matic/server/internal/config"
	"story-o-matic/server/internal/interfaces"
)

// GeminiCompleter generates text with the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a Gemini-backed completer.
func NewGeminiCompleter(ctx context.Context, cfg config.GeminiConfig, timeout time.Duration) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini backend: %w", ErrMissingAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiCompleter{client: client, model: model}, nil
}

func (c *GeminiCompleter) Name() string {
	return "gemini:" + c.model
}

func (c *GeminiCompleter) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:    genai.Ptr(req.Temperature),
		TopP:           genai.Ptr(req.TopP),
		CandidateCount: req.CandidateCount,
	}
	if req.JSONResponse {
		genCfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("no text returned from model")
	}
	return text, nil
}

// NewCompleter builds the backend selected by cfg.Provider.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (interfaces.Completer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := NewGeminiCompleter(ctx, cfg.Gemini, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderOpenAI:
		c, err := NewOpenAICompleter(cfg.OpenAI, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
