package catalog

import (
	"errors"
	"fmt"
	"sort"

	"story-o-matic/server/internal/models"
)

var (
	ErrGenreNotFound       = errors.New("genre not found")
	ErrInstructionNotFound = errors.New("instruction not found")
	ErrUnknownPerspective  = errors.New("unknown narrative perspective")
	ErrUnknownGender       = errors.New("unknown protagonist gender")
)

// Genre describes the constraints a story of that genre is generated under.
type Genre struct {
	Key          string   `json:"key"`
	Name         string   `json:"name"`
	Authors      []string `json:"authors"`
	Description  string   `json:"description"`
	Restrictions string   `json:"restrictions"`
}

// Instruction is a narrative nudge a reader can attach to a choice.
type Instruction struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

var genres = map[string]Genre{
	"fantasy": {
		Key:          "fantasy",
		Name:         "Fantasy",
		Authors:      []string{"J.R.R. Tolkien", "Ursula K. Le Guin", "Terry Pratchett"},
		Description:  "A world of magic, mythical creatures and heroic quests.",
		Restrictions: "Keep magic consistent with its own rules. No modern technology.",
	},
	"science-fiction": {
		Key:          "science-fiction",
		Name:         "Science Fiction",
		Authors:      []string{"Isaac Asimov", "Ursula K. Le Guin", "Arthur C. Clarke"},
		Description:  "Speculative futures shaped by science, technology and space travel.",
		Restrictions: "Technology must feel plausible within the setting. No supernatural magic.",
	},
	"mystery": {
		Key:          "mystery",
		Name:         "Mystery",
		Authors:      []string{"Agatha Christie", "Arthur Conan Doyle", "Raymond Chandler"},
		Description:  "A puzzle to be solved, with clues, suspects and a slow reveal.",
		Restrictions: "Play fair with clues. Do not resolve the central mystery too early.",
	},
	"horror": {
		Key:          "horror",
		Name:         "Horror",
		Authors:      []string{"Stephen King", "Shirley Jackson", "H.P. Lovecraft"},
		Description:  "Dread and the unknown, building fear through atmosphere.",
		Restrictions: "Favour suspense over gore. No graphic violence.",
	},
	"romance": {
		Key:          "romance",
		Name:         "Romance",
		Authors:      []string{"Jane Austen", "Nicholas Sparks", "Nora Roberts"},
		Description:  "Relationships, longing and emotional connection.",
		Restrictions: "Keep content tasteful. No explicit scenes.",
	},
	"adventure": {
		Key:          "adventure",
		Name:         "Adventure",
		Authors:      []string{"Jules Verne", "Robert Louis Stevenson", "Jack London"},
		Description:  "Journeys into the unknown, danger and discovery.",
		Restrictions: "Keep momentum high. Every scene should move the journey forward.",
	},
	"historical": {
		Key:          "historical",
		Name:         "Historical Fiction",
		Authors:      []string{"Hilary Mantel", "Ken Follett", "Patrick O'Brian"},
		Description:  "Stories rooted in a real historical period.",
		Restrictions: "Stay faithful to the period. No anachronisms.",
	},
	"thriller": {
		Key:          "thriller",
		Name:         "Thriller",
		Authors:      []string{"John le Carré", "Gillian Flynn", "Lee Child"},
		Description:  "High stakes, tension and a race against time.",
		Restrictions: "Keep tension escalating. No graphic violence.",
	},
	"fairy-tale": {
		Key:          "fairy-tale",
		Name:         "Fairy Tale",
		Authors:      []string{"Hans Christian Andersen", "The Brothers Grimm", "Charles Perrault"},
		Description:  "Timeless tales with wonder, morals and enchanted places.",
		Restrictions: "Suitable for all ages. Keep a gentle, storybook voice.",
	},
	"cyberpunk": {
		Key:          "cyberpunk",
		Name:         "Cyberpunk",
		Authors:      []string{"William Gibson", "Philip K. Dick", "Neal Stephenson"},
		Description:  "High tech and low life in neon-soaked megacities.",
		Restrictions: "No magic. Corporations and technology drive the conflict.",
	},
}

var instructions = []Instruction{
	{Title: "Plot twist", Prompt: "Introduce an unexpected plot twist that changes the protagonist's understanding of events."},
	{Title: "New character", Prompt: "Introduce a new, memorable character who affects the protagonist's path."},
	{Title: "Raise the stakes", Prompt: "Raise the stakes so that failure would cost the protagonist something important."},
	{Title: "Humor", Prompt: "Add a moment of humor without breaking the tone of the story."},
	{Title: "Reveal a secret", Prompt: "Reveal a secret about a character or the world."},
	{Title: "Slow down", Prompt: "Slow the pace and focus on atmosphere and the protagonist's inner thoughts."},
	{Title: "Action", Prompt: "Make the next scene action-driven and fast-paced."},
}

var perspectives = map[models.Perspective]string{
	models.PerspectiveFirst:  "Write in the first person, from the protagonist's point of view (\"I\").",
	models.PerspectiveSecond: "Write in the second person, addressing the reader as the protagonist (\"you\").",
	models.PerspectiveThird:  "Write in the third person, following the protagonist closely.",
}

var genders = map[models.Gender]string{
	models.GenderMale:        "The protagonist is male.",
	models.GenderFemale:      "The protagonist is female.",
	models.GenderNonBinary:   "The protagonist is non-binary; use they/them pronouns.",
	models.GenderUnspecified: "The protagonist's gender is not specified; avoid gendered pronouns where possible.",
}

// Lookup returns the genre for key or ErrGenreNotFound.
func Lookup(key string) (Genre, error) {
	g, ok := genres[key]
	if !ok {
		return Genre{}, fmt.Errorf("%w: %q", ErrGenreNotFound, key)
	}
	return g, nil
}

// Genres returns all genres sorted by key.
func Genres() []Genre {
	out := make([]Genre, 0, len(genres))
	for _, g := range genres {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Instructions returns the instruction presets in display order.
func Instructions() []Instruction {
	return append([]Instruction(nil), instructions...)
}

// LookupInstruction finds a preset by title.
func LookupInstruction(title string) (Instruction, error) {
	for _, in := range instructions {
		if in.Title == title {
			return in, nil
		}
	}
	return Instruction{}, fmt.Errorf("%w: %q", ErrInstructionNotFound, title)
}

// PerspectiveText is the prompt fragment for a narrative perspective.
func PerspectiveText(p models.Perspective) (string, error) {
	text, ok := perspectives[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPerspective, p)
	}
	return text, nil
}

// GenderText is the prompt fragment for a protagonist gender.
func GenderText(g models.Gender) (string, error) {
	text, ok := genders[g]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGender, g)
	}
	return text, nil
}

// StyleText renders the optional style-inspiration sentence.
func StyleText(style string, g Genre) string {
	if style != "" {
		return fmt.Sprintf("Take stylistic inspiration from %s.", style)
	}
	if len(g.Authors) > 0 {
		return fmt.Sprintf("Write in a style reminiscent of %s.", joinAuthors(g.Authors))
	}
	return ""
}

func joinAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return authors[0]
	}
	out := ""
	for i, a := range authors {
		switch {
		case i == 0:
			out = a
		case i == len(authors)-1:
			out += " and " + a
		default:
			out += ", " + a
		}
	}
	return out
}
