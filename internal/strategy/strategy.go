package strategy

import (
	"fmt"
	"strings"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/models"
)

const defaultLanguage = "English"

// Params are side parameters a strategy passes from HandleChoice to
// GenerateSegment.
type Params map[string]string

// Well-known Params keys.
const (
	ParamInstructions          = "instructions"
	ParamChoiceText            = "choiceText"
	ParamIncludeChoiceInPrompt = "includeChoiceInPrompt"
)

// ChoiceContext is the generation input assembled for a choice.
type ChoiceContext struct {
	Context     string `json:"context"`
	ExtraParams Params `json:"extraParams,omitempty"`
}

// PromptStrategy builds generation prompts and assembles story context.
type PromptStrategy interface {
	// Version returns the registry id of the strategy.
	Version() string

	// GenerateTitle returns the prompt asking for a story title.
	GenerateTitle(settingsDescription string, settings models.StorySettings) (string, error)

	// GenerateSegment returns the prompt asking for the next segment.
	// params may be nil.
	GenerateSegment(storyContext string, settings models.StorySettings, params Params) (string, error)

	// SummarizeStory returns the prompt asking for a summary.
	SummarizeStory(storyContext string, settings models.StorySettings) (string, error)

	// HandleChoice assembles the context used to continue after choice.
	HandleChoice(choice models.Choice, state *models.StoryState) ChoiceContext
}

// StoryContext joins past and current segment contents with blank lines.
func StoryContext(state *models.StoryState) string {
	return joinParts(storyParts(state)...)
}

// DescribeSettings renders settings as a sentence for title prompts.
func DescribeSettings(settings models.StorySettings) (string, error) {
	genre, err := catalog.Lookup(settings.Genre)
	if err != nil {
		return "", err
	}
	perspective, err := catalog.PerspectiveText(settings.Perspective)
	if err != nil {
		return "", err
	}
	gender, err := catalog.GenderText(settings.ProtagonistGender)
	if err != nil {
		return "", err
	}

	parts := []string{
		fmt.Sprintf("A %s story.", strings.ToLower(genre.Name)),
		perspective,
		gender,
	}
	if settings.StyleInspiration != "" {
		parts = append(parts, fmt.Sprintf("Style inspired by %s.", settings.StyleInspiration))
	}
	parts = append(parts, fmt.Sprintf("Language: %s.", language(settings)))
	return strings.Join(parts, " "), nil
}

func storyParts(state *models.StoryState) []string {
	if state == nil {
		return nil
	}
	parts := make([]string, 0, len(state.Segments)+1)
	for _, seg := range state.Segments {
		parts = append(parts, seg.Content)
	}
	if state.CurrentSegment != nil {
		parts = append(parts, state.CurrentSegment.Content)
	}
	return parts
}

func joinParts(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "\n\n")
}

func language(settings models.StorySettings) string {
	if settings.Language == "" {
		return defaultLanguage
	}
	return settings.Language
}

func formatInstructions(instructions []string) string {
	lines := make([]string, 0, len(instructions))
	for _, in := range instructions {
		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		lines = append(lines, "- "+in)
	}
	return strings.Join(lines, "\n")
}
