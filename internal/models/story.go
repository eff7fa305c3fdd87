package models

import (
	"time"
)

// Perspective is the narrative point of view of a story.
type Perspective string

const (
	PerspectiveFirst  Perspective = "first-person"
	PerspectiveSecond Perspective = "second-person"
	PerspectiveThird  Perspective = "third-person"
)

// Gender is the protagonist gender category.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderNonBinary   Gender = "non-binary"
	GenderUnspecified Gender = "unspecified"
)

// StorySettings is the configuration a story is generated under.
type StorySettings struct {
	Genre             string      `json:"genre"`
	Perspective       Perspective `json:"perspective"`
	ProtagonistGender Gender      `json:"protagonistGender"`
	StyleInspiration  string      `json:"styleInspiration,omitempty"`
	Language          string      `json:"language"`
	PromptStrategy    string      `json:"promptStrategy"`
	OpeningTitle      string      `json:"openingTitle,omitempty"`
	OpeningSentence   string      `json:"openingSentence,omitempty"`

	// Only consumed by strategies that support them.
	Complexity    string `json:"complexity,omitempty"`
	EmotionalTone string `json:"emotionalTone,omitempty"`
}

// Choice is an offered or user-authored continuation.
type Choice struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Instructions   []string `json:"instructions,omitempty"`
	SettingsChange string   `json:"settingsChange,omitempty"`
}

// Segment is one generated (or user-authored) block of story text.
type Segment struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Choices []Choice `json:"choices"`

	// Pending marks the placeholder created from a choice while its
	// continuation is being generated.
	Pending bool `json:"pending,omitempty"`
}

// ActionType tags the last generation-triggering action.
type ActionType string

const (
	ActionStart      ActionType = "start"
	ActionChoice     ActionType = "choice"
	ActionRegenerate ActionType = "regenerate"
)

// LastAction records what to replay on retry.
type LastAction struct {
	Type     ActionType     `json:"type"`
	Settings *StorySettings `json:"settings,omitempty"`
	Choice   *Choice        `json:"choice,omitempty"`
}

// DebugKind classifies debug log entries.
type DebugKind string

const (
	DebugRequest  DebugKind = "request"
	DebugResponse DebugKind = "response"
	DebugError    DebugKind = "error"
)

// DebugEntry is one line of the per-story audit trail.
type DebugEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      DebugKind `json:"kind"`
	Operation string    `json:"operation"`
	Payload   string    `json:"payload"`
}

// Summary is a cached story summary.
type Summary struct {
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Status is the coarse state of a story.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// StoryState is the aggregate root of a story.
type StoryState struct {
	ID             string        `json:"id,omitempty"`
	Title          string        `json:"title"`
	Segments       []Segment     `json:"segments"`
	CurrentSegment *Segment      `json:"currentSegment,omitempty"`
	IsLoading      bool          `json:"isLoading"`
	Error          string        `json:"error,omitempty"`
	LastAction     *LastAction   `json:"lastAction,omitempty"`
	DebugLog       []DebugEntry  `json:"debugLog"`
	Settings       StorySettings `json:"settings"`
	Summary        *Summary      `json:"summary,omitempty"`
	LastModified   time.Time     `json:"lastModified"`
}

// Status derives the coarse state from the loading/error flags.
func (s StoryState) Status() Status {
	switch {
	case s.IsLoading:
		return StatusLoading
	case s.Error != "":
		return StatusError
	case s.CurrentSegment != nil:
		return StatusReady
	default:
		return StatusIdle
	}
}

// SummaryValid reports whether the cached summary is still current.
func (s StoryState) SummaryValid() bool {
	return s.Summary != nil && !s.Summary.GeneratedAt.Before(s.LastModified)
}

// LatestSegment returns the current segment, or the last past one.
func (s StoryState) LatestSegment() *Segment {
	if s.CurrentSegment != nil {
		return s.CurrentSegment
	}
	if n := len(s.Segments); n > 0 {
		return &s.Segments[n-1]
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *StoryState) Clone() StoryState {
	out := *s
	out.Segments = make([]Segment, len(s.Segments))
	for i := range s.Segments {
		out.Segments[i] = s.Segments[i].Clone()
	}
	if s.CurrentSegment != nil {
		seg := s.CurrentSegment.Clone()
		out.CurrentSegment = &seg
	}
	if s.LastAction != nil {
		la := *s.LastAction
		if la.Settings != nil {
			settings := *la.Settings
			la.Settings = &settings
		}
		if la.Choice != nil {
			choice := la.Choice.Clone()
			la.Choice = &choice
		}
		out.LastAction = &la
	}
	out.DebugLog = append([]DebugEntry(nil), s.DebugLog...)
	if s.Summary != nil {
		summary := *s.Summary
		out.Summary = &summary
	}
	return out
}

// Clone returns a deep copy of the segment.
func (s Segment) Clone() Segment {
	out := s
	if s.Choices != nil {
		out.Choices = make([]Choice, len(s.Choices))
		for i := range s.Choices {
			out.Choices[i] = s.Choices[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the choice.
func (c Choice) Clone() Choice {
	out := c
	out.Instructions = append([]string(nil), c.Instructions...)
	return out
}

// SavedStory is the persisted record of a story.
type SavedStory struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	State        StoryState `json:"state"`
	LastModified time.Time  `json:"lastModified"`
	Summary      string     `json:"summary"`
}
