package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"story-o-matic/server/internal/storage"
)

func newTestRegistry(t *testing.T) (*Registry, *managerFixture) {
	t.Helper()
	f := newManagerFixture(t)
	strategies := newTestStrategies(t)
	gen := NewGenerator(f.completer, strategies, GenerationOptions{}, nil)
	reg := NewRegistry(func() *StoryManager {
		return NewStoryManager(gen, strategies, f.repo, nil, WithClock(f.clock.Now))
	}, nil)
	return reg, f
}

func TestRegistrySettlesDraftAfterRetry(t *testing.T) {
	reg, f := newTestRegistry(t)
	ctx := context.Background()

	key, m := reg.Create()
	assert.True(t, strings.HasPrefix(key, DraftPrefix))

	f.expectTitle("T")
	f.completer.On("Complete", mock.Anything, mock.MatchedBy(isJSONRequest)).Return("", errors.New("timeout")).Once()
	_, err := m.StartStory(ctx, testSettings())
	require.Error(t, err)
	assert.Equal(t, key, reg.Settle(key))

	got, err := reg.Get(ctx, key)
	require.NoError(t, err)
	assert.Same(t, m, got)

	f.expectTitle("T")
	f.expectSegment(`{"content":"A","choices":["x","y"]}`)
	state, err := m.HandleRetry(ctx)
	require.NoError(t, err)

	id := reg.Settle(key)
	assert.Equal(t, state.ID, id)
	assert.Equal(t, []string{id}, reg.Keys())

	_, err = reg.Get(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistryLoadsPersistedStories(t *testing.T) {
	reg, f := newTestRegistry(t)
	ctx := context.Background()

	started := f.start(t)

	m, err := reg.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, started.CurrentSegment, m.State().CurrentSegment)

	again, err := reg.Get(ctx, started.ID)
	require.NoError(t, err)
	assert.Same(t, m, again)

	reg.Remove(started.ID)
	assert.Empty(t, reg.Keys())

	_, err = reg.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistryEvictsOldestIdleDrafts(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.WithMaxDrafts(2)

	first, busy := reg.Create()
	require.NoError(t, busy.acquire())
	defer busy.release()
	second, _ := reg.Create()
	third, _ := reg.Create()

	// second is the oldest idle draft; the busy one survives.
	assert.ElementsMatch(t, []string{first, third}, reg.Keys())
	_, err := reg.Get(context.Background(), second)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistryDiscardOnlyDropsDrafts(t *testing.T) {
	reg, f := newTestRegistry(t)
	ctx := context.Background()

	key, m := reg.Create()
	f.expectTitle("T")
	f.expectSegment(`{"content":"A","choices":["x","y"]}`)
	_, err := m.StartStory(ctx, testSettings())
	require.NoError(t, err)
	id := reg.Settle(key)

	reg.Discard(id)
	assert.Equal(t, []string{id}, reg.Keys())

	draft, _ := reg.Create()
	reg.Discard(draft)
	assert.Equal(t, []string{id}, reg.Keys())
}
