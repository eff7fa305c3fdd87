package strategy

import (
	"errors"
	"fmt"
	"sort"

	"story-o-matic/server/internal/prompts"
)

// Strategy identifiers persisted in story settings.
const (
	VersionBase = "base"
	VersionV1   = "v1"
	VersionV2   = "v2"
)

// ErrUnknownStrategy is returned for ids missing from the registry.
var ErrUnknownStrategy = errors.New("unknown strategy version")

// Manager maps strategy ids to strategy constructors.
type Manager struct {
	registry map[string]func() PromptStrategy
}

// NewManager creates a manager with the fixed strategy registry.
func NewManager(templates *prompts.Loader) *Manager {
	base := func() PromptStrategy { return NewBaseStrategy(templates) }
	return &Manager{
		registry: map[string]func() PromptStrategy{
			VersionBase: base,
			VersionV1:   base,
			VersionV2:   func() PromptStrategy { return NewV2Strategy(templates) },
		},
	}
}

// CreateStrategy returns the strategy registered under version.
func (m *Manager) CreateStrategy(version string) (PromptStrategy, error) {
	create, ok := m.registry[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, version)
	}
	return create(), nil
}

// Versions lists the registered ids, sorted.
func (m *Manager) Versions() []string {
	out := make([]string, 0, len(m.registry))
	for v := range m.registry {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
