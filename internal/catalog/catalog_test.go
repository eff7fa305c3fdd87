package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-o-matic/server/internal/models"
)

func TestLookup(t *testing.T) {
	g, err := Lookup("fantasy")
	require.NoError(t, err)
	assert.Equal(t, "Fantasy", g.Name)
	assert.NotEmpty(t, g.Authors)

	_, err = Lookup("western")
	assert.ErrorIs(t, err, ErrGenreNotFound)
	assert.Contains(t, err.Error(), "western")
}

func TestGenresSorted(t *testing.T) {
	list := Genres()
	require.Len(t, list, len(genres))
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Key, list[i].Key)
	}
}

func TestLookupInstruction(t *testing.T) {
	in, err := LookupInstruction("Plot twist")
	require.NoError(t, err)
	assert.NotEmpty(t, in.Prompt)

	_, err = LookupInstruction("nope")
	assert.ErrorIs(t, err, ErrInstructionNotFound)
}

func TestInstructionsReturnsCopy(t *testing.T) {
	list := Instructions()
	list[0].Title = "changed"
	assert.NotEqual(t, "changed", Instructions()[0].Title)
}

func TestPerspectiveAndGenderText(t *testing.T) {
	text, err := PerspectiveText(models.PerspectiveSecond)
	require.NoError(t, err)
	assert.Contains(t, text, "second person")

	_, err = PerspectiveText("fourth-person")
	assert.ErrorIs(t, err, ErrUnknownPerspective)

	text, err = GenderText(models.GenderNonBinary)
	require.NoError(t, err)
	assert.Contains(t, text, "they/them")

	_, err = GenderText("robot")
	assert.ErrorIs(t, err, ErrUnknownGender)
}

func TestStyleText(t *testing.T) {
	g := Genre{Authors: []string{"A", "B", "C"}}
	assert.Equal(t, "Take stylistic inspiration from Borges.", StyleText("Borges", g))
	assert.Equal(t, "Write in a style reminiscent of A, B and C.", StyleText("", g))
	assert.Equal(t, "", StyleText("", Genre{}))
}
