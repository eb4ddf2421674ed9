// Package dedupe decides when two memory facts say the same thing.
package dedupe

import (
	"regexp"
	"strings"

	"github.com/agenthands/keepsake/internal/core/model"
)

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeContent lowercases, collapses whitespace and drops trailing punctuation.
func NormalizeContent(content string) string {
	content = strings.ToLower(strings.TrimSpace(content))
	content = spaceRun.ReplaceAllString(content, " ")
	return strings.TrimRight(content, ".,!?;: ")
}

// NormalizeCategory maps a category onto a lower_snake key. Empty becomes "general".
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	c = spaceRun.ReplaceAllString(c, "_")
	if c == "" {
		return "general"
	}
	return c
}

// Key identifies a fact within its (legacy, user) scope.
func Key(category, content string) string {
	return NormalizeCategory(category) + "\x00" + NormalizeContent(content)
}

// NewFacts returns the candidates that are neither in existing nor repeated among
// themselves, in input order. Candidates with blank content are dropped.
func NewFacts(existing, candidates []model.Fact) []model.Fact {
	seen := make(map[string]bool, len(existing)+len(candidates))
	for _, f := range existing {
		seen[Key(f.Category, f.Content)] = true
	}

	var out []model.Fact
	for _, f := range candidates {
		if NormalizeContent(f.Content) == "" {
			continue
		}
		k := Key(f.Category, f.Content)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f)
	}
	return out
}
