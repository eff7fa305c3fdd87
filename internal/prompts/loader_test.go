package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoaderRegistersBuiltins(t *testing.T) {
	l, err := NewDefaultLoader()
	require.NoError(t, err)

	assert.Equal(t, []string{
		TemplateSegment,
		TemplateSummary,
		TemplateTitle,
		TemplateV2Segment,
		TemplateV2Title,
	}, l.Names())

	for _, name := range l.Names() {
		content, err := l.LoadTemplate(name)
		require.NoError(t, err)
		assert.NotEmpty(t, content, name)
	}
}

func TestLoadTemplateUnknown(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadTemplate("missing")
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = l.FillTemplate("missing", nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestFillTemplateReplacesEveryOccurrence(t *testing.T) {
	l := NewLoader()
	l.RegisterTemplate("greeting", "{{name}} meets {{other}}. Bye, {{name}}!")

	out, err := l.FillTemplate("greeting", map[string]string{"name": "Ada", "other": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Ada meets Bob. Bye, Ada!", out)
}

func TestFillTemplateLeavesUnknownTokens(t *testing.T) {
	l := NewLoader()
	l.RegisterTemplate("partial", "{{known}} and {{unknown}}")

	out, err := l.FillTemplate("partial", map[string]string{"known": "x", "extra": "y"})
	require.NoError(t, err)
	assert.Equal(t, "x and {{unknown}}", out)
}

func TestFillTemplateWithAllTokensLeavesNoPlaceholders(t *testing.T) {
	l, err := NewDefaultLoader()
	require.NoError(t, err)

	for _, name := range l.Names() {
		content, err := l.LoadTemplate(name)
		require.NoError(t, err)

		replacements := make(map[string]string)
		for _, v := range ParseTemplateVariables(content) {
			replacements[v] = "value-" + v
		}

		out, err := l.FillTemplate(name, replacements)
		require.NoError(t, err)
		assert.Empty(t, ParseTemplateVariables(out), name)
		assert.NotContains(t, out, "{{", name)
	}
}

func TestParseTemplateVariables(t *testing.T) {
	vars := ParseTemplateVariables("{{b}} {{a}} {{b}} {not} {{ spaced }}")
	assert.Equal(t, []string{"a", "b"}, vars)
}
