package engine

import (
	"errors"
	"fmt"

	"story-o-matic/server/internal/catalog"
	"story-o-matic/server/internal/prompts"
	"story-o-matic/server/internal/strategy"
)

var (
	// ErrBusy is returned when a generation call is already in flight for a story.
	ErrBusy = errors.New("story is busy generating")

	// ErrNoStory is returned by operations that need a current segment.
	ErrNoStory = errors.New("no story in progress")

	// ErrMalformedResponse marks completion output that breaks the JSON contract.
	ErrMalformedResponse = errors.New("malformed generation response")

	// ErrMissingAPIKey is returned when the selected backend has no credential.
	ErrMissingAPIKey = errors.New("missing API key")
)

// MalformedResponseError carries the raw completion text that failed to parse.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: %v; raw response: %s", ErrMalformedResponse.Error(), e.Err, e.Raw)
}

func (e *MalformedResponseError) Unwrap() []error {
	return []error{ErrMalformedResponse, e.Err}
}

// IsConfigurationError reports errors that retrying will not fix.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingAPIKey) ||
		errors.Is(err, strategy.ErrUnknownStrategy) ||
		errors.Is(err, catalog.ErrGenreNotFound) ||
		errors.Is(err, catalog.ErrUnknownPerspective) ||
		errors.Is(err, catalog.ErrUnknownGender) ||
		errors.Is(err, catalog.ErrInstructionNotFound) ||
		errors.Is(err, prompts.ErrTemplateNotFound)
}
