package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"story-o-matic/server/internal/interfaces"
	"story-o-matic/server/internal/models"
)

// SummaryMaxRunes bounds the list summary of a saved story.
const SummaryMaxRunes = 150

// StatePatch is a partial StoryState. Nil fields are left untouched on update.
type StatePatch struct {
	Title          *string
	Segments       []models.Segment
	CurrentSegment *models.Segment
	IsLoading      *bool
	Error          *string
	LastAction     *models.LastAction
	DebugLog       []models.DebugEntry
	Settings       *models.StorySettings
	Summary        *models.Summary
}

// PatchFromState builds a patch that overwrites every field of the record.
func PatchFromState(state models.StoryState) StatePatch {
	s := state.Clone()
	segments := s.Segments
	if segments == nil {
		segments = []models.Segment{}
	}
	debugLog := s.DebugLog
	if debugLog == nil {
		debugLog = []models.DebugEntry{}
	}
	return StatePatch{
		Title:          &s.Title,
		Segments:       segments,
		CurrentSegment: s.CurrentSegment,
		IsLoading:      &s.IsLoading,
		Error:          &s.Error,
		LastAction:     s.LastAction,
		DebugLog:       debugLog,
		Settings:       &s.Settings,
		Summary:        s.Summary,
	}
}

// Repository persists stories as JSON records on a key-value store.
type Repository struct {
	kv     interfaces.KeyValueStore
	prefix string
	now    func() time.Time
}

func NewRepository(kv interfaces.KeyValueStore, prefix string) *Repository {
	return &Repository{kv: kv, prefix: prefix, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

func (r *Repository) key(id string) string {
	return r.prefix + id
}

// SaveStory stores state as a new record with a fresh id.
func (r *Repository) SaveStory(ctx context.Context, title string, state models.StoryState) (*models.SavedStory, error) {
	id := uuid.New().String()
	now := r.now()

	stored := state.Clone()
	stored.ID = id
	stored.Title = title
	stored.LastModified = now

	rec := &models.SavedStory{
		ID:           id,
		Title:        title,
		State:        stored,
		LastModified: now,
		Summary:      Summarize(&stored),
	}
	if err := r.put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetAllStories returns every record, newest first.
func (r *Repository) GetAllStories(ctx context.Context) ([]models.SavedStory, error) {
	raw, err := r.kv.Scan(ctx, r.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}

	stories := make([]models.SavedStory, 0, len(raw))
	for key, value := range raw {
		var rec models.SavedStory
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		stories = append(stories, rec)
	}

	sort.SliceStable(stories, func(i, j int) bool {
		if stories[i].LastModified.Equal(stories[j].LastModified) {
			return stories[i].ID < stories[j].ID
		}
		return stories[i].LastModified.After(stories[j].LastModified)
	})
	return stories, nil
}

// GetStory returns nil, nil when no record exists.
func (r *Repository) GetStory(ctx context.Context, id string) (*models.SavedStory, error) {
	value, err := r.kv.Get(ctx, r.key(id))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get story %s: %w", id, err)
	}

	var rec models.SavedStory
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode story %s: %w", id, err)
	}
	return &rec, nil
}

// UpdateStory merges patch into the stored record and recomputes the summary
// in one read-modify-write on the store. It returns nil, nil when no record
// exists.
func (r *Repository) UpdateStory(ctx context.Context, id string, patch StatePatch) (*models.SavedStory, error) {
	var updated *models.SavedStory
	err := r.kv.Update(ctx, r.key(id), func(current string) (string, error) {
		var rec models.SavedStory
		if err := json.Unmarshal([]byte(current), &rec); err != nil {
			return "", fmt.Errorf("failed to decode story %s: %w", id, err)
		}
		r.applyPatch(&rec, id, patch)

		data, err := json.Marshal(&rec)
		if err != nil {
			return "", fmt.Errorf("failed to encode story %s: %w", id, err)
		}
		updated = &rec
		return string(data), nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update story %s: %w", id, err)
	}
	return updated, nil
}

func (r *Repository) applyPatch(rec *models.SavedStory, id string, patch StatePatch) {
	st := &rec.State
	if patch.Title != nil {
		st.Title = *patch.Title
		rec.Title = *patch.Title
	}
	if patch.Segments != nil {
		st.Segments = patch.Segments
	}
	if patch.CurrentSegment != nil {
		st.CurrentSegment = patch.CurrentSegment
	}
	if patch.IsLoading != nil {
		st.IsLoading = *patch.IsLoading
	}
	if patch.Error != nil {
		st.Error = *patch.Error
	}
	if patch.LastAction != nil {
		st.LastAction = patch.LastAction
	}
	if patch.DebugLog != nil {
		st.DebugLog = patch.DebugLog
	}
	if patch.Settings != nil {
		st.Settings = *patch.Settings
	}
	if patch.Summary != nil {
		st.Summary = patch.Summary
	}

	// Strictly increasing even when the clock has not advanced.
	now := r.now()
	if !now.After(rec.LastModified) {
		now = rec.LastModified.Add(time.Millisecond)
	}
	st.ID = id
	st.LastModified = now
	rec.LastModified = now
	rec.Summary = Summarize(st)
}

func (r *Repository) DeleteStory(ctx context.Context, id string) error {
	if err := r.kv.Delete(ctx, r.key(id)); err != nil {
		return fmt.Errorf("failed to delete story %s: %w", id, err)
	}
	return nil
}

func (r *Repository) put(ctx context.Context, rec *models.SavedStory) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode story %s: %w", rec.ID, err)
	}
	if err := r.kv.Set(ctx, r.key(rec.ID), string(data)); err != nil {
		return fmt.Errorf("failed to store story %s: %w", rec.ID, err)
	}
	return nil
}

// Summarize returns the first line of the latest segment, cut to SummaryMaxRunes.
func Summarize(state *models.StoryState) string {
	seg := state.LatestSegment()
	if seg == nil {
		return ""
	}
	line := strings.TrimSpace(seg.Content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	runes := []rune(line)
	if len(runes) > SummaryMaxRunes {
		runes = runes[:SummaryMaxRunes]
	}
	return string(runes)
}
