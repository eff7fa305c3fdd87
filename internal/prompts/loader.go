package prompts

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

//go:embed templates
var templateFS embed.FS

// ErrTemplateNotFound is returned for names missing from the registry.
var ErrTemplateNotFound = errors.New("template not found")

// Template names known to the default registry.
const (
	TemplateTitle     = "title"
	TemplateSegment   = "segment"
	TemplateSummary   = "summary"
	TemplateV2Segment = "v2/segment.md"
	TemplateV2Title   = "v2/title.md"
)

var defaultTemplates = map[string]string{
	TemplateTitle:     "templates/title.md",
	TemplateSegment:   "templates/segment.md",
	TemplateSummary:   "templates/summary.md",
	TemplateV2Segment: "templates/v2/segment.md",
	TemplateV2Title:   "templates/v2/title.md",
}

// Replace variables in the format {{variable_name}}
var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Loader manages named prompt templates
type Loader struct {
	templates map[string]string
	mu        sync.RWMutex
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		templates: make(map[string]string),
	}
}

// NewDefaultLoader creates a loader with the built-in templates registered
func NewDefaultLoader() (*Loader, error) {
	l := NewLoader()
	for name, path := range defaultTemplates {
		data, err := templateFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		l.RegisterTemplate(name, string(data))
	}
	return l, nil
}

// RegisterTemplate registers or replaces a template
func (l *Loader) RegisterTemplate(name, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.templates[name] = content
}

// LoadTemplate returns the raw text of a registered template
func (l *Loader) LoadTemplate(name string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	content, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return content, nil
}

// FillTemplate loads a template and substitutes {{key}} tokens.
// Tokens with no replacement are left as they are.
func (l *Loader) FillTemplate(name string, replacements map[string]string) (string, error) {
	content, err := l.LoadTemplate(name)
	if err != nil {
		return "", err
	}
	return Fill(content, replacements), nil
}

// Names returns the registered template names, sorted.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fill substitutes {{key}} tokens in content.
func Fill(content string, replacements map[string]string) string {
	return varRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := varRegex.FindStringSubmatch(match)[1]
		if value, ok := replacements[varName]; ok {
			return value
		}
		return match // Keep placeholder if not found
	})
}

// ParseTemplateVariables extracts the distinct variables of a template, sorted
func ParseTemplateVariables(templateContent string) []string {
	matches := varRegex.FindAllStringSubmatch(templateContent, -1)

	uniqueVars := make(map[string]bool)
	for _, match := range matches {
		if len(match) > 1 {
			uniqueVars[match[1]] = true
		}
	}

	vars := make([]string, 0, len(uniqueVars))
	for v := range uniqueVars {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	return vars
}
