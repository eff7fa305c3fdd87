package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/models"
	"story-o-matic/server/internal/storage"
	"story-o-matic/server/internal/strategy"
)

// Operation names recorded in the debug log.
const (
	OpStart      = "start"
	OpChoice     = "choice"
	OpRegenerate = "regenerate"
	OpSettings   = "settings"
)

// StoryStore is the persistence the manager writes through.
type StoryStore interface {
	SaveStory(ctx context.Context, title string, state models.StoryState) (*models.SavedStory, error)
	GetStory(ctx context.Context, id string) (*models.SavedStory, error)
	UpdateStory(ctx context.Context, id string, patch storage.StatePatch) (*models.SavedStory, error)
	DeleteStory(ctx context.Context, id string) error
}

// Observer receives a copy of the state after every change.
type Observer func(models.StoryState)

// Option configures a StoryManager.
type Option func(*StoryManager)

// WithObserver publishes every state change to fn.
func WithObserver(fn Observer) Option {
	return func(m *StoryManager) { m.observer = fn }
}

// WithMaxDebugEntries caps the debug log; 0 keeps every entry.
func WithMaxDebugEntries(n int) Option {
	return func(m *StoryManager) { m.maxDebug = n }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *StoryManager) { m.now = now }
}

// StoryManager drives one story through start, choices, regeneration,
// retries and settings edits. Only one generation runs at a time; a
// concurrent call gets ErrBusy.
type StoryManager struct {
	mu    sync.RWMutex
	state models.StoryState

	busy atomic.Bool

	generator  *Generator
	strategies *strategy.Manager
	store      StoryStore
	logger     *zap.Logger
	observer   Observer
	maxDebug   int
	now        func() time.Time
}

func NewStoryManager(generator *Generator, strategies *strategy.Manager, store StoryStore, logger *zap.Logger, opts ...Option) *StoryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &StoryManager{
		generator:  generator,
		strategies: strategies,
		store:      store,
		logger:     logger.Named("story"),
		now:        time.Now,
		state:      models.StoryState{Segments: []models.Segment{}, DebugLog: []models.DebugEntry{}},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a deep copy of the current state.
func (m *StoryManager) State() models.StoryState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// ID returns the persisted id, empty before the first successful start.
func (m *StoryManager) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ID
}

// Busy reports whether a generation call is in flight.
func (m *StoryManager) Busy() bool {
	return m.busy.Load()
}

// StartStory generates the title and opening segment, then persists the new
// story.
func (m *StoryManager) StartStory(ctx context.Context, settings models.StorySettings) (models.StoryState, error) {
	if err := m.acquire(); err != nil {
		return m.State(), err
	}
	defer m.release()

	return m.startStory(ctx, settings)
}

// HandleChoice moves the current segment into history and generates the
// continuation for choice.
func (m *StoryManager) HandleChoice(ctx context.Context, choice models.Choice) (models.StoryState, error) {
	if err := m.acquire(); err != nil {
		return m.State(), err
	}
	defer m.release()

	return m.handleChoice(ctx, choice)
}

// RegenerateChoices replaces the choices of the current segment and leaves
// its content alone.
func (m *StoryManager) RegenerateChoices(ctx context.Context) (models.StoryState, error) {
	if err := m.acquire(); err != nil {
		return m.State(), err
	}
	defer m.release()

	return m.regenerateChoices(ctx)
}

// HandleRetry replays the last start or choice. Anything else is a no-op,
// as is retrying a start that already produced a story.
func (m *StoryManager) HandleRetry(ctx context.Context) (models.StoryState, error) {
	if err := m.acquire(); err != nil {
		return m.State(), err
	}
	defer m.release()

	state := m.State()
	if state.LastAction == nil {
		return state, nil
	}

	switch state.LastAction.Type {
	case models.ActionStart:
		if state.LastAction.Settings == nil || state.Error == "" {
			return state, nil
		}
		m.logger.Info("Retrying story start")
		return m.startStory(ctx, *state.LastAction.Settings)
	case models.ActionChoice:
		if state.LastAction.Choice == nil {
			return state, nil
		}
		m.logger.Info("Retrying choice", zap.String("story_id", state.ID), zap.String("choice_id", state.LastAction.Choice.ID))
		m.restorePending()
		return m.handleChoice(ctx, *state.LastAction.Choice)
	default:
		return state, nil
	}
}

// EditSettings records a settings change in the current segment, persists
// it and regenerates the choices under the new settings.
func (m *StoryManager) EditSettings(ctx context.Context, settings models.StorySettings) (models.StoryState, error) {
	if err := m.acquire(); err != nil {
		return m.State(), err
	}
	defer m.release()

	state := m.State()
	if state.CurrentSegment == nil {
		return state, ErrNoStory
	}
	if settings == state.Settings {
		return state, nil
	}
	if _, err := m.strategies.CreateStrategy(settings.PromptStrategy); err != nil {
		return state, err
	}
	diff, err := settingsDiff(state.Settings, settings)
	if err != nil {
		return state, err
	}

	m.update(func(s *models.StoryState) {
		if diff != "" {
			s.CurrentSegment.Content += "\n\n" + diff
		}
		s.Settings = settings
		m.appendDebug(s, models.DebugRequest, OpSettings, marshalPayload(map[string]any{"settings": settings}))
	})
	if err := m.persist(ctx); err != nil {
		return m.fail(OpSettings, err)
	}

	return m.regenerateChoices(ctx)
}

// GenerateSummary returns the cached summary while it is current, otherwise
// asks the generator for a new one.
func (m *StoryManager) GenerateSummary(ctx context.Context) (models.Summary, error) {
	if err := m.acquire(); err != nil {
		return models.Summary{}, err
	}
	defer m.release()

	state := m.State()
	if state.SummaryValid() {
		return *state.Summary, nil
	}
	if state.LatestSegment() == nil {
		return models.Summary{}, ErrNoStory
	}

	text, err := m.generator.GenerateStorySummary(ctx, strategy.StoryContext(&state), state.Settings)
	if err != nil {
		m.logger.Error("Failed to generate summary", zap.String("story_id", state.ID), zap.Error(err))
		return models.Summary{}, err
	}

	// Caching the summary is not a story mutation; LastModified stays put.
	m.mu.Lock()
	at := m.now()
	if at.Before(m.state.LastModified) {
		at = m.state.LastModified
	}
	summary := models.Summary{Text: text, GeneratedAt: at}
	m.state.Summary = &summary
	snapshot := m.state.Clone()
	m.mu.Unlock()

	m.notify(snapshot)
	return summary, nil
}

// Load resumes a persisted story.
func (m *StoryManager) Load(ctx context.Context, id string) (models.StoryState, error) {
	if err := m.acquire(); err != nil {
		return m.State(), err
	}
	defer m.release()

	rec, err := m.store.GetStory(ctx, id)
	if err != nil {
		return m.State(), err
	}
	if rec == nil {
		return m.State(), fmt.Errorf("story %s: %w", id, storage.ErrNotFound)
	}

	loaded := rec.State.Clone()
	loaded.ID = rec.ID
	loaded.IsLoading = false
	if loaded.Segments == nil {
		loaded.Segments = []models.Segment{}
	}
	if loaded.DebugLog == nil {
		loaded.DebugLog = []models.DebugEntry{}
	}
	m.replace(loaded)
	return m.State(), nil
}

// Delete removes the persisted record and resets the manager.
func (m *StoryManager) Delete(ctx context.Context) error {
	if err := m.acquire(); err != nil {
		return err
	}
	defer m.release()

	if id := m.ID(); id != "" {
		if err := m.store.DeleteStory(ctx, id); err != nil {
			return err
		}
		m.logger.Info("Story deleted", zap.String("story_id", id))
	}
	m.replace(models.StoryState{Segments: []models.Segment{}, DebugLog: []models.DebugEntry{}})
	return nil
}

func (m *StoryManager) startStory(ctx context.Context, settings models.StorySettings) (models.StoryState, error) {
	m.update(func(s *models.StoryState) {
		debugLog := s.DebugLog
		*s = models.StoryState{
			Segments:   []models.Segment{},
			IsLoading:  true,
			Settings:   settings,
			LastAction: &models.LastAction{Type: models.ActionStart, Settings: &settings},
			DebugLog:   debugLog,
		}
	})

	if _, err := m.strategies.CreateStrategy(settings.PromptStrategy); err != nil {
		return m.fail(OpStart, err)
	}

	title := strings.TrimSpace(settings.OpeningTitle)
	if title == "" {
		generated, err := m.generator.GenerateTitle(ctx, settings)
		if err != nil {
			return m.fail(OpStart, err)
		}
		title = generated
	}

	storyContext := strings.TrimSpace(settings.OpeningSentence)
	if storyContext == "" {
		opening, err := openingInstruction(settings)
		if err != nil {
			return m.fail(OpStart, err)
		}
		storyContext = opening
	}

	m.update(func(s *models.StoryState) {
		s.Title = title
		m.appendDebug(s, models.DebugRequest, OpStart, marshalPayload(map[string]any{
			"title":    title,
			"context":  storyContext,
			"settings": settings,
		}))
	})

	result, err := m.generator.GenerateSegment(ctx, storyContext, settings, nil)
	if err != nil {
		return m.fail(OpStart, err)
	}

	content := result.Content
	if opening := strings.TrimSpace(settings.OpeningSentence); opening != "" {
		content = opening
	}

	var initial models.StoryState
	m.update(func(s *models.StoryState) {
		s.CurrentSegment = &models.Segment{
			ID:      uuid.New().String(),
			Content: content,
			Choices: toChoices(result.Choices),
		}
		s.IsLoading = false
		s.Error = ""
		m.appendDebug(s, models.DebugResponse, OpStart, marshalPayload(result))
		initial = s.Clone()
	})

	saved, err := m.store.SaveStory(ctx, title, initial)
	if err != nil {
		return m.fail(OpStart, err)
	}
	m.mu.Lock()
	m.state.ID = saved.ID
	m.mu.Unlock()
	m.syncModified(saved.LastModified)

	m.logger.Info("Story started",
		zap.String("story_id", saved.ID),
		zap.String("genre", settings.Genre),
		zap.String("strategy", settings.PromptStrategy),
	)
	return m.State(), nil
}

func (m *StoryManager) handleChoice(ctx context.Context, choice models.Choice) (models.StoryState, error) {
	state := m.State()
	if state.CurrentSegment == nil {
		return state, ErrNoStory
	}
	strat, err := m.strategies.CreateStrategy(state.Settings.PromptStrategy)
	if err != nil {
		return m.fail(OpChoice, err)
	}
	if choice.ID == "" {
		choice.ID = uuid.New().String()
	}

	// Context comes from the story as it stood before the choice.
	cc := strat.HandleChoice(choice, &state)

	m.update(func(s *models.StoryState) {
		s.Segments = append(s.Segments, *s.CurrentSegment)
		s.CurrentSegment = &models.Segment{
			ID:      uuid.New().String(),
			Content: choice.Text,
			Choices: []models.Choice{},
			Pending: true,
		}
		s.IsLoading = true
		s.Error = ""
		recorded := choice.Clone()
		s.LastAction = &models.LastAction{Type: models.ActionChoice, Choice: &recorded}
		m.appendDebug(s, models.DebugRequest, OpChoice, marshalPayload(map[string]any{
			"choice":  choice,
			"context": cc.Context,
			"params":  cc.ExtraParams,
		}))
	})

	result, err := m.generator.GenerateSegment(ctx, cc.Context, state.Settings, cc.ExtraParams)
	if err != nil {
		return m.fail(OpChoice, err)
	}

	m.update(func(s *models.StoryState) {
		s.CurrentSegment = &models.Segment{
			ID:      uuid.New().String(),
			Content: result.Content,
			Choices: toChoices(result.Choices),
		}
		s.IsLoading = false
		m.appendDebug(s, models.DebugResponse, OpChoice, marshalPayload(result))
	})
	if err := m.persist(ctx); err != nil {
		return m.fail(OpChoice, err)
	}

	m.logger.Debug("Choice applied", zap.String("story_id", state.ID), zap.Int("segments", len(state.Segments)+1))
	return m.State(), nil
}

func (m *StoryManager) regenerateChoices(ctx context.Context) (models.StoryState, error) {
	state := m.State()
	if state.CurrentSegment == nil {
		return state, ErrNoStory
	}
	strat, err := m.strategies.CreateStrategy(state.Settings.PromptStrategy)
	if err != nil {
		return m.fail(OpRegenerate, err)
	}

	cc := strat.HandleChoice(models.Choice{}, &state)

	m.update(func(s *models.StoryState) {
		s.CurrentSegment.Choices = []models.Choice{}
		s.IsLoading = true
		s.Error = ""
		s.LastAction = &models.LastAction{Type: models.ActionRegenerate}
		m.appendDebug(s, models.DebugRequest, OpRegenerate, marshalPayload(map[string]any{
			"context": cc.Context,
			"params":  cc.ExtraParams,
		}))
	})

	result, err := m.generator.GenerateSegment(ctx, cc.Context, state.Settings, cc.ExtraParams)
	if err != nil {
		return m.fail(OpRegenerate, err)
	}

	m.update(func(s *models.StoryState) {
		s.CurrentSegment.Choices = toChoices(result.Choices)
		s.IsLoading = false
		m.appendDebug(s, models.DebugResponse, OpRegenerate, marshalPayload(result))
	})
	if err := m.persist(ctx); err != nil {
		return m.fail(OpRegenerate, err)
	}
	return m.State(), nil
}

// restorePending undoes the history append of a choice whose generation
// failed, so replaying it does not record the choice twice.
func (m *StoryManager) restorePending() {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.state
	n := len(s.Segments)
	if s.CurrentSegment == nil || !s.CurrentSegment.Pending || n == 0 {
		return
	}
	prev := s.Segments[n-1].Clone()
	s.Segments = s.Segments[:n-1:n-1]
	s.CurrentSegment = &prev
}

// persist writes the whole state through to the store once the story has an id.
func (m *StoryManager) persist(ctx context.Context) error {
	state := m.State()
	if state.ID == "" {
		return nil
	}

	saved, err := m.store.UpdateStory(ctx, state.ID, storage.PatchFromState(state))
	if err != nil {
		return err
	}
	if saved == nil {
		return fmt.Errorf("story %s: %w", state.ID, storage.ErrNotFound)
	}

	m.syncModified(saved.LastModified)
	return nil
}

// syncModified adopts the store's timestamp unless the state is already newer.
func (m *StoryManager) syncModified(t time.Time) {
	m.mu.Lock()
	if t.After(m.state.LastModified) {
		m.state.LastModified = t
	}
	snapshot := m.state.Clone()
	m.mu.Unlock()

	m.notify(snapshot)
}

// fail records err on the state and returns it.
func (m *StoryManager) fail(op string, err error) (models.StoryState, error) {
	m.update(func(s *models.StoryState) {
		s.IsLoading = false
		s.Error = err.Error()
		m.appendDebug(s, models.DebugError, op, err.Error())
	})

	fields := []zap.Field{zap.String("operation", op), zap.String("story_id", m.ID()), zap.Error(err)}
	if IsConfigurationError(err) || errors.Is(err, ErrNoStory) {
		m.logger.Warn("Story operation rejected", fields...)
	} else {
		m.logger.Error("Story generation failed", fields...)
	}
	return m.State(), err
}

// update applies fn under the lock, bumps LastModified and notifies the observer.
func (m *StoryManager) update(fn func(s *models.StoryState)) {
	m.mu.Lock()
	fn(&m.state)
	m.touch(&m.state)
	snapshot := m.state.Clone()
	m.mu.Unlock()

	m.notify(snapshot)
}

// replace swaps the whole state without touching LastModified.
func (m *StoryManager) replace(state models.StoryState) {
	m.mu.Lock()
	m.state = state
	snapshot := m.state.Clone()
	m.mu.Unlock()

	m.notify(snapshot)
}

func (m *StoryManager) touch(s *models.StoryState) {
	now := m.now()
	if now.After(s.LastModified) {
		s.LastModified = now
	}
}

func (m *StoryManager) notify(state models.StoryState) {
	if m.observer != nil {
		m.observer(state)
	}
}

func (m *StoryManager) appendDebug(s *models.StoryState, kind models.DebugKind, op, payload string) {
	s.DebugLog = append(s.DebugLog, models.DebugEntry{
		Timestamp: m.now(),
		Kind:      kind,
		Operation: op,
		Payload:   payload,
	})
	if m.maxDebug > 0 && len(s.DebugLog) > m.maxDebug {
		s.DebugLog = append([]models.DebugEntry(nil), s.DebugLog[len(s.DebugLog)-m.maxDebug:]...)
	}
}

func (m *StoryManager) acquire() error {
	if !m.busy.CompareAndSwap(false, true) {
		busyRejections.Inc()
		return ErrBusy
	}
	return nil
}

func (m *StoryManager) release() {
	m.busy.Store(false)
}

func toChoices(texts []string) []models.Choice {
	out := make([]models.Choice, 0, len(texts))
	for _, t := range texts {
		out = append(out, models.Choice{ID: uuid.New().String(), Text: t})
	}
	return out
}

// openingInstruction asks for an opening when the user supplied none.
func openingInstruction(settings models.StorySettings) (string, error) {
	description, err := strategy.DescribeSettings(settings)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Begin a new story. %s Open with a scene that introduces the protagonist and hints at the central conflict.", description), nil
}

// settingsDiff describes what changed between two settings values.
func settingsDiff(prev, next models.StorySettings) (string, error) {
	var lines []string

	if prev.Genre != next.Genre {
		from, err := catalog.Lookup(prev.Genre)
		if err != nil {
			return "", err
		}
		to, err := catalog.Lookup(next.Genre)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("- Genre changed from %s to %s", from.Name, to.Name))
	}
	if prev.Perspective != next.Perspective {
		if _, err := catalog.PerspectiveText(next.Perspective); err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("- Perspective changed from %s to %s", prev.Perspective, next.Perspective))
	}
	if prev.ProtagonistGender != next.ProtagonistGender {
		if _, err := catalog.GenderText(next.ProtagonistGender); err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("- Protagonist changed from %s to %s", prev.ProtagonistGender, next.ProtagonistGender))
	}
	if prev.StyleInspiration != next.StyleInspiration {
		lines = append(lines, fmt.Sprintf("- Style changed from %s to %s", orNone(prev.StyleInspiration), orNone(next.StyleInspiration)))
	}

	if len(lines) == 0 {
		return "", nil
	}
	return "[Settings changed]\n" + strings.Join(lines, "\n"), nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

func marshalPayload(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}
