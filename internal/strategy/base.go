package strategy

import (
	"strings"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/models"
	"story-o-matic/server/internal/prompts"
)

const noInstructions = "None."

// BaseStrategy is the default strategy: the choice text is appended to the
// story context verbatim.
type BaseStrategy struct {
	templates *prompts.Loader
}

// NewBaseStrategy creates a base strategy over the given templates.
func NewBaseStrategy(templates *prompts.Loader) *BaseStrategy {
	return &BaseStrategy{templates: templates}
}

func (s *BaseStrategy) Version() string {
	return VersionBase
}

func (s *BaseStrategy) GenerateTitle(settingsDescription string, settings models.StorySettings) (string, error) {
	vars, err := s.voice(settings)
	if err != nil {
		return "", err
	}
	vars["settings_description"] = settingsDescription
	return s.templates.FillTemplate(prompts.TemplateTitle, vars)
}

func (s *BaseStrategy) GenerateSegment(storyContext string, settings models.StorySettings, params Params) (string, error) {
	vars, err := s.voice(settings)
	if err != nil {
		return "", err
	}
	vars["story_context"] = storyContext
	vars["instructions"] = instructionsParam(params)
	return s.templates.FillTemplate(prompts.TemplateSegment, vars)
}

func (s *BaseStrategy) SummarizeStory(storyContext string, settings models.StorySettings) (string, error) {
	vars, err := s.voice(settings)
	if err != nil {
		return "", err
	}
	vars["story_context"] = storyContext
	return s.templates.FillTemplate(prompts.TemplateSummary, vars)
}

func (s *BaseStrategy) HandleChoice(choice models.Choice, state *models.StoryState) ChoiceContext {
	parts := append(storyParts(state), choice.Text)
	return ChoiceContext{
		Context:     joinParts(parts...),
		ExtraParams: choiceInstructions(choice),
	}
}

// voice returns the replacements shared by every template: genre metadata,
// perspective, protagonist, style and language.
func (s *BaseStrategy) voice(settings models.StorySettings) (map[string]string, error) {
	genre, err := catalog.Lookup(settings.Genre)
	if err != nil {
		return nil, err
	}
	perspective, err := catalog.PerspectiveText(settings.Perspective)
	if err != nil {
		return nil, err
	}
	protagonist, err := catalog.GenderText(settings.ProtagonistGender)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"genre_name":         genre.Name,
		"genre_description":  genre.Description,
		"genre_restrictions": genre.Restrictions,
		"authors":            strings.Join(genre.Authors, ", "),
		"perspective":        perspective,
		"protagonist":        protagonist,
		"style":              catalog.StyleText(settings.StyleInspiration, genre),
		"language":           language(settings),
	}, nil
}

func choiceInstructions(choice models.Choice) Params {
	text := formatInstructions(choice.Instructions)
	if text == "" {
		return nil
	}
	return Params{ParamInstructions: text}
}

func instructionsParam(params Params) string {
	if text := params[ParamInstructions]; text != "" {
		return text
	}
	return noInstructions
}
