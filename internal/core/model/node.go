package model

import (
	"strings"

	"github.com/google/uuid"
)

// Graph labels as domain code sees them. Environment prefixes are added by the graph adapter.
const (
	LabelLegacy = "Legacy"
	LabelStory  = "Story"
	LabelPerson = "Person"
	LabelPlace  = "Place"
	LabelEvent  = "Event"
	LabelObject = "Object"
)

var entityNamespace = uuid.MustParse("6f1c2b1e-6a57-4c1f-9a3e-2f0d8f6b9c11")

// StoryNode is the graph projection of a story.
type StoryNode struct {
	ID         string
	LegacyID   string
	Title      string
	AuthorID   string
	Visibility Visibility
}

func (s StoryNode) Properties() map[string]any {
	return map[string]any{
		"legacy_id":  s.LegacyID,
		"title":      s.Title,
		"author_id":  s.AuthorID,
		"visibility": string(s.Visibility),
	}
}

// EntityNode is a person, place, event or object mentioned in a legacy's stories.
// Its id is derived from the legacy, label and normalized name, so repeated mentions merge.
type EntityNode struct {
	Label    string
	Name     string
	LegacyID string
	Context  string
	// Relationship is a person's relationship to the legacy subject, when known.
	Relationship string
	Confidence   float64
}

func (e EntityNode) ID() string {
	key := e.LegacyID + "|" + e.Label + "|" + NormalizeName(e.Name)
	return uuid.NewSHA1(entityNamespace, []byte(key)).String()
}

func (e EntityNode) Properties() map[string]any {
	props := map[string]any{
		"name":       e.Name,
		"name_lc":    NormalizeName(e.Name),
		"legacy_id":  e.LegacyID,
		"confidence": e.Confidence,
	}
	if e.Context != "" {
		props["context"] = e.Context
	}
	if e.Relationship != "" {
		props["relationship"] = e.Relationship
	}
	return props
}

// NormalizeName lowercases and collapses whitespace for name matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
