package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryStateStatus(t *testing.T) {
	tests := []struct {
		name  string
		state StoryState
		want  Status
	}{
		{"empty", StoryState{}, StatusIdle},
		{"loading wins over error", StoryState{IsLoading: true, Error: "x"}, StatusLoading},
		{"error", StoryState{Error: "boom", CurrentSegment: &Segment{}}, StatusError},
		{"ready", StoryState{CurrentSegment: &Segment{Content: "A"}}, StatusReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Status())
		})
	}
}

// Getters must be callable on values returned from functions.
func snapshot(s StoryState) StoryState { return s }

func TestStoryStateGettersOnReturnedValues(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := StoryState{
		Segments:     []Segment{{Content: "first"}},
		LastModified: at,
		Summary:      &Summary{Text: "s", GeneratedAt: at},
	}

	assert.Equal(t, StatusIdle, snapshot(state).Status())
	assert.True(t, snapshot(state).SummaryValid())
	require.NotNil(t, snapshot(state).LatestSegment())
	assert.Equal(t, "first", snapshot(state).LatestSegment().Content)

	state.LastModified = at.Add(time.Second)
	assert.False(t, snapshot(state).SummaryValid())

	state.CurrentSegment = &Segment{Content: "current"}
	assert.Equal(t, "current", snapshot(state).LatestSegment().Content)
	assert.Nil(t, StoryState{}.LatestSegment())
}
