package strategy

import (
	"fmt"
	"strings"

	"story-o-matic/server/internal/models"
	"story-o-matic/server/internal/prompts"
)

const (
	defaultComplexity     = "moderate"
	defaultEmotionalTone  = "balanced"
	defaultSensoryDetails = "true"
)

// V2Strategy passes the selected choice to the segment template as a side
// parameter instead of appending it to the story context.
type V2Strategy struct {
	base *BaseStrategy
}

// NewV2Strategy creates a v2 strategy over the given templates.
func NewV2Strategy(templates *prompts.Loader) *V2Strategy {
	return &V2Strategy{base: NewBaseStrategy(templates)}
}

func (s *V2Strategy) Version() string {
	return VersionV2
}

func (s *V2Strategy) GenerateTitle(settingsDescription string, settings models.StorySettings) (string, error) {
	vars, err := s.base.voice(settings)
	if err != nil {
		return "", err
	}
	vars["settings_description"] = settingsDescription
	return s.base.templates.FillTemplate(prompts.TemplateV2Title, vars)
}

func (s *V2Strategy) GenerateSegment(storyContext string, settings models.StorySettings, params Params) (string, error) {
	vars, err := s.base.voice(settings)
	if err != nil {
		return "", err
	}
	vars["story_context"] = storyContext
	vars["instructions"] = instructionsParam(params)
	vars["complexity"] = orDefault(settings.Complexity, defaultComplexity)
	vars["emotional_tone"] = orDefault(settings.EmotionalTone, defaultEmotionalTone)
	vars["sensory_details"] = defaultSensoryDetails
	vars["choice_section"] = choiceSection(params)
	return s.base.templates.FillTemplate(prompts.TemplateV2Segment, vars)
}

func (s *V2Strategy) SummarizeStory(storyContext string, settings models.StorySettings) (string, error) {
	return s.base.SummarizeStory(storyContext, settings)
}

func (s *V2Strategy) HandleChoice(choice models.Choice, state *models.StoryState) ChoiceContext {
	params := choiceInstructions(choice)
	if strings.TrimSpace(choice.Text) != "" {
		if params == nil {
			params = Params{}
		}
		params[ParamChoiceText] = choice.Text
		params[ParamIncludeChoiceInPrompt] = "true"
	}
	return ChoiceContext{
		Context:     StoryContext(state),
		ExtraParams: params,
	}
}

func choiceSection(params Params) string {
	if params[ParamIncludeChoiceInPrompt] != "true" {
		return ""
	}
	return fmt.Sprintf("\n## The reader chose\n%s\nOpen the segment with the consequences of this choice.\n", params[ParamChoiceText])
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
