package interfaces

import "context"

// CompletionRequest is a single text-completion call
type CompletionRequest struct {
	Prompt         string
	Temperature    float32
	TopP           float32
	CandidateCount int32
	JSONResponse   bool // ask the backend for JSON-formatted output
}

// Completer defines the interface for the generative text endpoint
type Completer interface {
	// Complete sends the prompt and returns the raw response text
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name identifies the backend and model, e.g. "gemini:gemini-2.0-flash"
	Name() string
}
