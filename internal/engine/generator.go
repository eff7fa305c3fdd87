package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"story-o-matic/server/internal/interfaces"
	"story-o-matic/server/internal/models"
	"story-o-matic/server/internal/strategy"
)

// Operation names used in metrics, logs and debug entries.
const (
	OpTitle   = "title"
	OpSegment = "segment"
	OpSummary = "summary"
)

// FallbackChoices replace a missing or unusable choices array.
var FallbackChoices = []string{"Retry the adventure", "Take a different path"}

const choicesPerSegment = 2

var (
	// Only a fence wrapping the whole response is stripped.
	codeFenceRegex    = regexp.MustCompile(`(?s)^` + "```" + `(?:\w+)?\s*(.*?)\s*` + "```$")
	controlCharsRegex = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
)

// SegmentResult is a parsed segment response. Choices always has two entries.
type SegmentResult struct {
	Content string   `json:"content"`
	Choices []string `json:"choices"`
}

// GenerationOptions are the sampling parameters sent with every call.
type GenerationOptions struct {
	Temperature    float32
	TopP           float32
	CandidateCount int32
}

// Generator turns story context into prompts, sends them to the completer
// and validates what comes back.
type Generator struct {
	completer  interfaces.Completer
	strategies *strategy.Manager
	opts       GenerationOptions
	logger     *zap.Logger
}

func NewGenerator(completer interfaces.Completer, strategies *strategy.Manager, opts GenerationOptions, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CandidateCount < 1 {
		opts.CandidateCount = 1
	}
	return &Generator{
		completer:  completer,
		strategies: strategies,
		opts:       opts,
		logger:     logger.Named("generator"),
	}
}

// GenerateSegment asks for the next segment and enforces the
// {content, choices} contract.
func (g *Generator) GenerateSegment(ctx context.Context, storyContext string, settings models.StorySettings, params strategy.Params) (*SegmentResult, error) {
	strat, err := g.strategies.CreateStrategy(settings.PromptStrategy)
	if err != nil {
		return nil, err
	}
	prompt, err := strat.GenerateSegment(storyContext, settings, params)
	if err != nil {
		return nil, fmt.Errorf("failed to build segment prompt: %w", err)
	}

	started := time.Now()
	raw, err := g.complete(ctx, prompt, true)
	if err != nil {
		observeGeneration(OpSegment, started, err)
		return nil, err
	}

	result, usedFallback, err := parseSegment(raw)
	observeGeneration(OpSegment, started, err)
	if err != nil {
		g.logger.Warn("Malformed segment response",
			zap.String("strategy", strat.Version()),
			zap.Int("raw_length", len(raw)),
			zap.Error(err),
		)
		return nil, err
	}
	if usedFallback {
		fallbackChoices.Inc()
		g.logger.Info("Substituted fallback choices", zap.String("strategy", strat.Version()))
	}
	return result, nil
}

// GenerateTitle asks for a story title.
func (g *Generator) GenerateTitle(ctx context.Context, settings models.StorySettings) (string, error) {
	strat, err := g.strategies.CreateStrategy(settings.PromptStrategy)
	if err != nil {
		return "", err
	}
	description, err := strategy.DescribeSettings(settings)
	if err != nil {
		return "", err
	}
	prompt, err := strat.GenerateTitle(description, settings)
	if err != nil {
		return "", fmt.Errorf("failed to build title prompt: %w", err)
	}

	started := time.Now()
	raw, err := g.complete(ctx, prompt, false)
	observeGeneration(OpTitle, started, err)
	if err != nil {
		return "", err
	}
	return strings.Trim(cleanText(raw), `"`), nil
}

// GenerateStorySummary asks for a summary of the story so far.
func (g *Generator) GenerateStorySummary(ctx context.Context, storyContext string, settings models.StorySettings) (string, error) {
	strat, err := g.strategies.CreateStrategy(settings.PromptStrategy)
	if err != nil {
		return "", err
	}
	prompt, err := strat.SummarizeStory(storyContext, settings)
	if err != nil {
		return "", fmt.Errorf("failed to build summary prompt: %w", err)
	}

	started := time.Now()
	raw, err := g.complete(ctx, prompt, false)
	observeGeneration(OpSummary, started, err)
	if err != nil {
		return "", err
	}
	return cleanText(raw), nil
}

// Backend names the completer in use.
func (g *Generator) Backend() string {
	return g.completer.Name()
}

func (g *Generator) complete(ctx context.Context, prompt string, jsonResponse bool) (string, error) {
	raw, err := g.completer.Complete(ctx, interfaces.CompletionRequest{
		Prompt:         prompt,
		Temperature:    g.opts.Temperature,
		TopP:           g.opts.TopP,
		CandidateCount: g.opts.CandidateCount,
		JSONResponse:   jsonResponse,
	})
	if err != nil {
		return "", fmt.Errorf("completion via %s failed: %w", g.completer.Name(), err)
	}
	return raw, nil
}

// ParseSegmentResponse validates raw completion text against the segment
// contract.
func ParseSegmentResponse(raw string) (*SegmentResult, error) {
	result, _, err := parseSegment(raw)
	return result, err
}

func parseSegment(raw string) (*SegmentResult, bool, error) {
	cleaned := controlCharsRegex.ReplaceAllString(stripCodeFence(raw), "")

	var payload any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, false, &MalformedResponseError{Raw: raw, Err: err}
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false, &MalformedResponseError{Raw: raw, Err: errors.New("response is not a JSON object")}
	}
	content, ok := obj["content"].(string)
	if !ok {
		return nil, false, &MalformedResponseError{Raw: raw, Err: errors.New(`missing or non-string "content"`)}
	}

	choices, ok := validChoices(obj["choices"])
	if !ok {
		return &SegmentResult{Content: content, Choices: append([]string(nil), FallbackChoices...)}, true, nil
	}
	return &SegmentResult{Content: content, Choices: choices}, false, nil
}

// validChoices returns the first two choices, or false when the value cannot
// supply two usable strings.
func validChoices(v any) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < choicesPerSegment {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, false
		}
		out = append(out, s)
	}
	return out[:choicesPerSegment], true
}

func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if m := codeFenceRegex.FindStringSubmatch(cleaned); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return cleaned
}

func cleanText(raw string) string {
	return strings.TrimSpace(stripCodeFence(raw))
}

func isMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}
