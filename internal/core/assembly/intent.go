package assembly

import (
	"strings"
	"unicode"
)

type Intent string

const (
	IntentRelationships Intent = "relationships"
	IntentTimeline      Intent = "timeline"
	IntentPlaces        Intent = "places"
	IntentStoryRecall   Intent = "story_recall"
	IntentGeneral       Intent = "general"
)

// Classification is the outcome of ClassifyIntent.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Order matters: on equal hit counts the earlier intent wins.
var intentKeywords = []struct {
	intent Intent
	words  []string
}{
	{IntentRelationships, []string{
		"mother", "father", "mom", "dad", "brother", "sister", "sibling", "grandma", "grandpa",
		"grandmother", "grandfather", "aunt", "uncle", "cousin", "wife", "husband", "married",
		"friend", "family", "son", "daughter", "relative", "related to", "who was", "who were",
	}},
	{IntentTimeline, []string{
		"when", "year", "born", "childhood", "young", "older", "before", "after", "during",
		"decade", "age", "timeline", "first time", "last time", "retired", "graduated",
	}},
	{IntentPlaces, []string{
		"where", "place", "town", "city", "country", "house", "home", "lived", "moved",
		"travel", "trip", "visit", "farm", "street", "church", "school",
	}},
	{IntentStoryRecall, []string{
		"remember", "story", "stories", "tell me about", "told", "memory", "memories",
		"recall", "what happened", "anecdote", "favorite",
	}},
}

// ClassifyIntent maps a query to an intent by keyword hits. No model is called.
func ClassifyIntent(query string) Classification {
	q := " " + normalizeQuery(query) + " "
	best, bestHits := IntentGeneral, 0
	for _, k := range intentKeywords {
		if hits := countAny(q, k.words...); hits > bestHits {
			best, bestHits = k.intent, hits
		}
	}
	if bestHits == 0 {
		return Classification{Intent: IntentGeneral, Confidence: 0.3}
	}
	return Classification{Intent: best, Confidence: min(0.5+0.15*float64(bestHits), 0.95)}
}

// normalizeQuery lowercases and turns punctuation into spaces so keywords
// match on word boundaries.
func normalizeQuery(query string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, query)
	return strings.Join(strings.Fields(mapped), " ")
}

// countAny counts needles found in hay. hay must be padded with spaces.
func countAny(hay string, needles ...string) int {
	n := 0
	for _, w := range needles {
		if w != "" && strings.Contains(hay, " "+w+" ") {
			n++
		}
	}
	return n
}
