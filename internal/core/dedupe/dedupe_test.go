package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agenthands/keepsake/internal/core/model"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "she loved jazz", NormalizeContent("  She   loved\tJAZZ!! "))
	assert.Equal(t, "favorite_music", NormalizeCategory(" Favorite  Music"))
	assert.Equal(t, "general", NormalizeCategory(""))
	assert.Equal(t, Key("Hobby", "Gardening."), Key("hobby ", "gardening"))
	assert.NotEqual(t, Key("hobby", "gardening"), Key("career", "gardening"))
}

func TestNewFacts(t *testing.T) {
	existing := []model.Fact{{Category: "hobby", Content: "Loved gardening"}}
	candidates := []model.Fact{
		{Category: "Hobby", Content: "loved gardening."},
		{Category: "career", Content: "Worked at the steel mill"},
		{Category: "career", Content: "worked at the  steel mill"},
		{Category: "family", Content: "   "},
		{Category: "family", Content: "Had three brothers"},
	}

	got := NewFacts(existing, candidates)
	assert.Len(t, got, 2)
	assert.Equal(t, "Worked at the steel mill", got[0].Content)
	assert.Equal(t, "Had three brothers", got[1].Content)
}
