package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"story-o-matic/server/internal/storage"
)

// DraftPrefix marks registry keys of stories that have not been persisted yet.
const DraftPrefix = "draft-"

// DefaultMaxDrafts bounds the unsettled drafts a registry keeps.
const DefaultMaxDrafts = 64

// ManagerFactory builds an empty StoryManager.
type ManagerFactory func() *StoryManager

// Registry tracks live stories by id, or by a draft key until their first
// successful start.
type Registry struct {
	mu      sync.RWMutex
	stories map[string]*StoryManager
	drafts  []string // oldest first

	maxDrafts  int
	newManager ManagerFactory
	logger     *zap.Logger
}

func NewRegistry(newManager ManagerFactory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		stories:    make(map[string]*StoryManager),
		maxDrafts:  DefaultMaxDrafts,
		newManager: newManager,
		logger:     logger.Named("registry"),
	}
}

// WithMaxDrafts caps the unsettled drafts; 0 disables the cap.
func (r *Registry) WithMaxDrafts(n int) *Registry {
	r.maxDrafts = n
	return r
}

// Create registers a fresh manager under a draft key. When the draft cap is
// reached the oldest idle drafts are dropped first.
func (r *Registry) Create() (string, *StoryManager) {
	key := DraftPrefix + uuid.New().String()
	m := r.newManager()

	r.mu.Lock()
	r.evictDraftsLocked()
	r.stories[key] = m
	r.drafts = append(r.drafts, key)
	r.mu.Unlock()

	return key, m
}

// Discard drops a draft that can never be retried. Settled stories are left
// alone.
func (r *Registry) Discard(key string) {
	if !strings.HasPrefix(key, DraftPrefix) {
		return
	}
	r.Remove(key)
	r.logger.Debug("Draft discarded", zap.String("draft", key))
}

// Get returns the live manager for key, loading persisted stories on demand.
func (r *Registry) Get(ctx context.Context, key string) (*StoryManager, error) {
	r.mu.RLock()
	m, ok := r.stories[key]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}
	if strings.HasPrefix(key, DraftPrefix) {
		return nil, fmt.Errorf("story %s: %w", key, storage.ErrNotFound)
	}

	loaded := r.newManager()
	if _, err := loaded.Load(ctx, key); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have loaded it meanwhile.
	if existing, ok := r.stories[key]; ok {
		return existing, nil
	}
	r.stories[key] = loaded
	r.logger.Debug("Story loaded", zap.String("story_id", key))
	return loaded, nil
}

// Settle re-keys a draft once its manager has a persisted id and returns the
// key the story is now tracked under.
func (r *Registry) Settle(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.stories[key]
	if !ok {
		return key
	}
	id := m.ID()
	if id == "" || id == key {
		return key
	}

	delete(r.stories, key)
	r.forgetDraftLocked(key)
	r.stories[id] = m
	r.logger.Debug("Draft settled", zap.String("draft", key), zap.String("story_id", id))
	return id
}

// Remove forgets the manager under key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	delete(r.stories, key)
	r.forgetDraftLocked(key)
	r.mu.Unlock()
}

// Keys lists the live stories, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.stories))
	for k := range r.stories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) forgetDraftLocked(key string) {
	for i, k := range r.drafts {
		if k == key {
			r.drafts = append(r.drafts[:i], r.drafts[i+1:]...)
			return
		}
	}
}

// evictDraftsLocked makes room for one more draft. Busy drafts are skipped.
func (r *Registry) evictDraftsLocked() {
	if r.maxDrafts <= 0 {
		return
	}
	kept := r.drafts[:0]
	excess := len(r.drafts) - r.maxDrafts + 1
	for _, key := range r.drafts {
		if excess > 0 && !r.stories[key].Busy() {
			delete(r.stories, key)
			excess--
			r.logger.Debug("Draft evicted", zap.String("draft", key))
			continue
		}
		kept = append(kept, key)
	}
	r.drafts = kept
}
