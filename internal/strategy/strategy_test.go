package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/models"
	"story-o-matic/server/internal/prompts"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	loader, err := prompts.NewDefaultLoader()
	require.NoError(t, err)
	return NewManager(loader)
}

func testSettings(version string) models.StorySettings {
	return models.StorySettings{
		Genre:             "mystery",
		Perspective:       models.PerspectiveSecond,
		ProtagonistGender: models.GenderFemale,
		StyleInspiration:  "Raymond Chandler",
		Language:          "English",
		PromptStrategy:    version,
	}
}

func testState() *models.StoryState {
	return &models.StoryState{
		Segments:       []models.Segment{{ID: "1", Content: "A"}},
		CurrentSegment: &models.Segment{ID: "2", Content: "B"},
	}
}

func TestCreateStrategyRegistry(t *testing.T) {
	m := newTestManager(t)

	for _, version := range []string{VersionBase, VersionV1, VersionV2} {
		s, err := m.CreateStrategy(version)
		require.NoError(t, err, version)

		settings := testSettings(version)
		_, err = s.GenerateTitle("desc", settings)
		assert.NoError(t, err)
		_, err = s.GenerateSegment("ctx", settings, nil)
		assert.NoError(t, err)
		_, err = s.SummarizeStory("ctx", settings)
		assert.NoError(t, err)
		_ = s.HandleChoice(models.Choice{Text: "go"}, testState())
	}

	assert.Equal(t, []string{VersionBase, VersionV1, VersionV2}, m.Versions())
}

func TestCreateStrategyUnknown(t *testing.T) {
	m := newTestManager(t)

	for _, version := range []string{"", "v3", "BASE", "latest"} {
		s, err := m.CreateStrategy(version)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, ErrUnknownStrategy, version)
	}
}

func TestV1IsBase(t *testing.T) {
	m := newTestManager(t)
	s, err := m.CreateStrategy(VersionV1)
	require.NoError(t, err)
	assert.IsType(t, &BaseStrategy{}, s)
	assert.Equal(t, VersionBase, s.Version())
}

func TestBaseHandleChoiceConcatenates(t *testing.T) {
	m := newTestManager(t)
	s, err := m.CreateStrategy(VersionBase)
	require.NoError(t, err)

	out := s.HandleChoice(models.Choice{Text: "C"}, testState())
	assert.Equal(t, "A\n\nB\n\nC", out.Context)
	assert.Nil(t, out.ExtraParams)
}

func TestBaseHandleChoiceEmptyChoice(t *testing.T) {
	s := NewBaseStrategy(prompts.NewLoader())
	out := s.HandleChoice(models.Choice{}, testState())
	assert.Equal(t, "A\n\nB", out.Context)
}

func TestBaseHandleChoiceInstructions(t *testing.T) {
	s := NewBaseStrategy(prompts.NewLoader())
	out := s.HandleChoice(models.Choice{Text: "C", Instructions: []string{"Add a twist", " "}}, testState())
	assert.Equal(t, Params{ParamInstructions: "- Add a twist"}, out.ExtraParams)
}

func TestV2HandleChoicePassesChoiceAside(t *testing.T) {
	m := newTestManager(t)
	s, err := m.CreateStrategy(VersionV2)
	require.NoError(t, err)

	out := s.HandleChoice(models.Choice{Text: "C"}, testState())
	assert.Equal(t, "A\n\nB", out.Context)
	assert.Equal(t, "C", out.ExtraParams[ParamChoiceText])
	assert.Equal(t, "true", out.ExtraParams[ParamIncludeChoiceInPrompt])
}

func TestV2HandleChoiceWithoutText(t *testing.T) {
	s := NewV2Strategy(prompts.NewLoader())
	out := s.HandleChoice(models.Choice{}, testState())
	assert.Equal(t, "A\n\nB", out.Context)
	assert.Empty(t, out.ExtraParams[ParamIncludeChoiceInPrompt])
}

func TestBaseGenerateSegmentPrompt(t *testing.T) {
	m := newTestManager(t)
	s, err := m.CreateStrategy(VersionBase)
	require.NoError(t, err)

	prompt, err := s.GenerateSegment("The story so far.", testSettings(VersionBase), Params{ParamInstructions: "- Add a twist"})
	require.NoError(t, err)

	genre, err := catalog.Lookup("mystery")
	require.NoError(t, err)
	assert.Contains(t, prompt, genre.Name)
	assert.Contains(t, prompt, genre.Restrictions)
	assert.Contains(t, prompt, "second person")
	assert.Contains(t, prompt, "The protagonist is female.")
	assert.Contains(t, prompt, "Raymond Chandler")
	assert.Contains(t, prompt, "The story so far.")
	assert.Contains(t, prompt, "- Add a twist")
	assert.NotContains(t, prompt, "{{")
}

func TestV2GenerateSegmentDefaults(t *testing.T) {
	m := newTestManager(t)
	s, err := m.CreateStrategy(VersionV2)
	require.NoError(t, err)

	prompt, err := s.GenerateSegment("ctx", testSettings(VersionV2), nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Narrative complexity: moderate")
	assert.Contains(t, prompt, "Emotional tone: balanced")
	assert.Contains(t, prompt, "Rich sensory detail: true")
	assert.NotContains(t, prompt, "The reader chose")
	assert.NotContains(t, prompt, "{{")

	settings := testSettings(VersionV2)
	settings.Complexity = "high"
	settings.EmotionalTone = "melancholic"
	prompt, err = s.GenerateSegment("ctx", settings, Params{ParamChoiceText: "Open the door", ParamIncludeChoiceInPrompt: "true"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Narrative complexity: high")
	assert.Contains(t, prompt, "Emotional tone: melancholic")
	assert.Contains(t, prompt, "The reader chose\nOpen the door")
}

func TestPromptsFailOnUnknownGenre(t *testing.T) {
	m := newTestManager(t)
	settings := testSettings(VersionBase)
	settings.Genre = "western"

	for _, version := range m.Versions() {
		s, err := m.CreateStrategy(version)
		require.NoError(t, err)

		_, err = s.GenerateSegment("ctx", settings, nil)
		assert.ErrorIs(t, err, catalog.ErrGenreNotFound)
		_, err = s.GenerateTitle("desc", settings)
		assert.ErrorIs(t, err, catalog.ErrGenreNotFound)
		_, err = s.SummarizeStory("ctx", settings)
		assert.ErrorIs(t, err, catalog.ErrGenreNotFound)
	}
}

func TestDescribeSettings(t *testing.T) {
	desc, err := DescribeSettings(testSettings(VersionBase))
	require.NoError(t, err)
	assert.Contains(t, desc, "A mystery story.")
	assert.Contains(t, desc, "Style inspired by Raymond Chandler.")
	assert.Contains(t, desc, "Language: English.")

	settings := testSettings(VersionBase)
	settings.Perspective = "omniscient"
	_, err = DescribeSettings(settings)
	assert.ErrorIs(t, err, catalog.ErrUnknownPerspective)
}

func TestStoryContext(t *testing.T) {
	assert.Equal(t, "A\n\nB", StoryContext(testState()))
	assert.Equal(t, "", StoryContext(nil))
	assert.Equal(t, "", StoryContext(&models.StoryState{}))
}
