package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/engine"
	"story-o-matic/server/internal/models"
	"story-o-matic/server/internal/storage"
)

// StoryLister lists persisted stories.
type StoryLister interface {
	GetAllStories(ctx context.Context) ([]models.SavedStory, error)
}

// StoryHandlers handles story-related requests
type StoryHandlers struct {
	registry        *engine.Registry
	stories         StoryLister
	defaultStrategy string
	logger          *zap.Logger
}

// NewStoryHandlers creates a new story handlers instance
func NewStoryHandlers(registry *engine.Registry, stories StoryLister, logger *zap.Logger) *StoryHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoryHandlers{
		registry: registry,
		stories:  stories,
		logger:   logger.Named("stories"),
	}
}

// WithDefaultStrategy sets the prompt strategy used when a start request
// names none.
func (h *StoryHandlers) WithDefaultStrategy(version string) *StoryHandlers {
	h.defaultStrategy = version
	return h
}

// StoryResponse represents the result of a story operation
type StoryResponse struct {
	Success bool               `json:"success"`
	Key     string             `json:"key,omitempty"`
	Story   *models.StoryState `json:"story,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// StoryListItem is one entry of the story list
type StoryListItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	LastModified time.Time `json:"lastModified"`
}

// ChoiceRequest selects an offered choice by id or supplies a custom one
type ChoiceRequest struct {
	ChoiceID     string   `json:"choiceId,omitempty"`
	Text         string   `json:"text,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

// SummaryResponse carries a story summary
type SummaryResponse struct {
	Success bool            `json:"success"`
	Summary *models.Summary `json:"summary,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ListStories returns persisted stories, newest first
func (h *StoryHandlers) ListStories(w http.ResponseWriter, r *http.Request) {
	saved, err := h.stories.GetAllStories(r.Context())
	if err != nil {
		h.logger.Error("Failed to list stories", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, StoryResponse{Error: err.Error()})
		return
	}

	items := make([]StoryListItem, 0, len(saved))
	for _, s := range saved {
		items = append(items, StoryListItem{
			ID:           s.ID,
			Title:        s.Title,
			Summary:      s.Summary,
			LastModified: s.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// StartStory creates a story from the posted settings
func (h *StoryHandlers) StartStory(w http.ResponseWriter, r *http.Request) {
	var settings models.StorySettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, StoryResponse{Error: "Invalid request body"})
		return
	}
	if settings.PromptStrategy == "" {
		settings.PromptStrategy = h.defaultStrategy
	}

	key, m := h.registry.Create()
	state, err := m.StartStory(r.Context(), settings)
	if engine.IsConfigurationError(err) {
		// Retrying would fail the same way.
		h.registry.Discard(key)
	}
	key = h.registry.Settle(key)
	h.respond(w, key, state, err)
}

// GetStory returns the current state of a story
func (h *StoryHandlers) GetStory(w http.ResponseWriter, r *http.Request) {
	key, m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respond(w, key, m.State(), nil)
}

// DeleteStory removes a story and forgets it
func (h *StoryHandlers) DeleteStory(w http.ResponseWriter, r *http.Request) {
	key, m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := m.Delete(r.Context()); err != nil {
		writeJSON(w, statusFor(err), StoryResponse{Key: key, Error: err.Error()})
		return
	}
	h.registry.Remove(key)
	writeJSON(w, http.StatusOK, StoryResponse{Success: true, Key: key})
}

// ApplyChoice continues the story with an offered or custom choice
func (h *StoryHandlers) ApplyChoice(w http.ResponseWriter, r *http.Request) {
	key, m, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req ChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StoryResponse{Key: key, Error: "Invalid request body"})
		return
	}
	choice, err := resolveChoice(m.State(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, StoryResponse{Key: key, Error: err.Error()})
		return
	}

	state, err := m.HandleChoice(r.Context(), choice)
	h.respond(w, key, state, err)
}

// RegenerateChoices replaces the choices of the current segment
func (h *StoryHandlers) RegenerateChoices(w http.ResponseWriter, r *http.Request) {
	key, m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	state, err := m.RegenerateChoices(r.Context())
	h.respond(w, key, state, err)
}

// Retry replays the last failed start or choice
func (h *StoryHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	key, m, ok := h.lookup(w, r)
	if !ok {
		return
	}
	state, err := m.HandleRetry(r.Context())
	key = h.registry.Settle(key)
	h.respond(w, key, state, err)
}

// EditSettings applies new settings to a running story
func (h *StoryHandlers) EditSettings(w http.ResponseWriter, r *http.Request) {
	key, m, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var settings models.StorySettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, StoryResponse{Key: key, Error: "Invalid request body"})
		return
	}

	state, err := m.EditSettings(r.Context(), settings)
	h.respond(w, key, state, err)
}

// Summary returns the cached or freshly generated story summary
func (h *StoryHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.lookup(w, r)
	if !ok {
		return
	}

	summary, err := m.GenerateSummary(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), SummaryResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{Success: true, Summary: &summary})
}

func (h *StoryHandlers) lookup(w http.ResponseWriter, r *http.Request) (string, *engine.StoryManager, bool) {
	key := chi.URLParam(r, "id")
	m, err := h.registry.Get(r.Context(), key)
	if err != nil {
		writeJSON(w, statusFor(err), StoryResponse{Key: key, Error: err.Error()})
		return key, nil, false
	}
	return key, m, true
}

func (h *StoryHandlers) respond(w http.ResponseWriter, key string, state models.StoryState, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("Story operation failed", zap.String("key", key), zap.Error(err))
		}
		writeJSON(w, status, StoryResponse{Key: key, Story: &state, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, StoryResponse{Success: true, Key: key, Story: &state})
}

// statusFor maps engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrBusy), errors.Is(err, engine.ErrNoStory):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case engine.IsConfigurationError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusBadGateway
	}
}

var errEmptyChoice = errors.New("choiceId or text is required")

// resolveChoice turns a request into the choice to apply. Instructions that
// name a preset are expanded to the preset prompt.
func resolveChoice(state models.StoryState, req ChoiceRequest) (models.Choice, error) {
	var choice models.Choice

	switch {
	case req.ChoiceID != "":
		if state.CurrentSegment == nil {
			return choice, engine.ErrNoStory
		}
		found := false
		for _, c := range state.CurrentSegment.Choices {
			if c.ID == req.ChoiceID {
				choice = c.Clone()
				found = true
				break
			}
		}
		if !found {
			return choice, errors.New("unknown choice " + req.ChoiceID)
		}
	case strings.TrimSpace(req.Text) != "":
		choice.Text = strings.TrimSpace(req.Text)
	default:
		return choice, errEmptyChoice
	}

	for _, in := range req.Instructions {
		if preset, err := catalog.LookupInstruction(in); err == nil {
			in = preset.Prompt
		}
		choice.Instructions = append(choice.Instructions, in)
	}
	return choice, nil
}
