package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int, prefix string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func reassemble(segments []Segment) []string {
	var out []string
	for _, s := range segments {
		out = append(out, strings.Fields(s.Text)[s.Overlap:]...)
	}
	return out
}

func TestEmptyInput(t *testing.T) {
	assert.Empty(t, Chunk("", 100))
	assert.Empty(t, Chunk("   \n\n\t ", 100))
}

func TestShortInputIsOneSegment(t *testing.T) {
	text := "My grandmother grew tomatoes.\n\nShe never measured anything."
	got := Chunk(text, 100)
	require.Len(t, got, 1)
	assert.Equal(t, text, got[0])
}

func TestParagraphsAccumulate(t *testing.T) {
	// 40 words per paragraph is 52 tokens; two fit in 110, three do not.
	paras := []string{words(40, "a"), words(40, "b"), words(40, "c"), words(40, "d")}
	text := strings.Join(paras, "\n\n")

	got := Split(text, 110)
	require.Len(t, got, 2)
	assert.Equal(t, paras[0]+"\n\n"+paras[1], got[0].Text)
	assert.Equal(t, paras[2]+"\n\n"+paras[3], got[1].Text)
	assert.Zero(t, got[0].Overlap)
	assert.Zero(t, got[1].Overlap)
}

func TestLongParagraphSplitsWithOverlap(t *testing.T) {
	text := words(1000, "w")

	got := Split(text, 200)
	require.Greater(t, len(got), 1)
	for i, s := range got {
		if i == 0 {
			assert.Zero(t, s.Overlap)
			continue
		}
		assert.Greater(t, s.Overlap, 0)
		prev := strings.Fields(got[i-1].Text)
		cur := strings.Fields(s.Text)
		assert.Equal(t, prev[len(prev)-s.Overlap:], cur[:s.Overlap])
	}
	assert.Equal(t, strings.Fields(text), reassemble(got))
}

func TestSegmentsStayWithinTolerance(t *testing.T) {
	text := strings.Join([]string{
		words(30, "intro"),
		words(700, "long"),
		words(120, "mid"),
		words(5, "tail"),
	}, "\n\n")

	for _, budget := range []int{50, 128, 500} {
		segments := Split(text, budget)
		limit := int(float64(budget) * 1.25)
		for _, s := range segments {
			assert.LessOrEqual(t, EstimateTokens(s.Text), limit, "budget %d", budget)
		}
		assert.Equal(t, strings.Fields(text), reassemble(segments), "budget %d", budget)
	}
}

func TestLongStoryYieldsSeveralSegments(t *testing.T) {
	var paras []string
	for i := 0; i < 30; i++ {
		paras = append(paras, words(100, fmt.Sprintf("p%d_", i)))
	}
	story := strings.Join(paras, "\n\n")

	got := Chunk(story, 500)
	assert.GreaterOrEqual(t, len(got), 3)
}

func TestDeterministic(t *testing.T) {
	text := words(900, "x") + "\n\n" + words(10, "y")
	assert.Equal(t, Chunk(text, 300), Chunk(text, 300))
}
