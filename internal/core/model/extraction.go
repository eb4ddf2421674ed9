package model

// ExtractedEntity is one mention found by the extraction prompt.
type ExtractedEntity struct {
	Name         string  `json:"name"`
	Confidence   float64 `json:"confidence"`
	Context      string  `json:"context,omitempty"`
	Relationship string  `json:"relationship,omitempty"`
}

type TimeReference struct {
	Text       string  `json:"text"`
	Period     string  `json:"period,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ExtractedEntities is the structured output of entity extraction.
type ExtractedEntities struct {
	People         []ExtractedEntity `json:"people"`
	Places         []ExtractedEntity `json:"places"`
	Events         []ExtractedEntity `json:"events"`
	Objects        []ExtractedEntity `json:"objects"`
	TimeReferences []TimeReference   `json:"time_references"`
}

// Empty reports whether nothing was extracted.
func (e ExtractedEntities) Empty() bool {
	return len(e.People)+len(e.Places)+len(e.Events)+len(e.Objects)+len(e.TimeReferences) == 0
}

// FilterByConfidence keeps the people, places, events and objects at or above threshold.
// Time references are kept as-is.
func (e ExtractedEntities) FilterByConfidence(threshold float64) ExtractedEntities {
	return ExtractedEntities{
		People:         filterEntities(e.People, threshold),
		Places:         filterEntities(e.Places, threshold),
		Events:         filterEntities(e.Events, threshold),
		Objects:        filterEntities(e.Objects, threshold),
		TimeReferences: e.TimeReferences,
	}
}

func filterEntities(in []ExtractedEntity, threshold float64) []ExtractedEntity {
	out := make([]ExtractedEntity, 0, len(in))
	for _, ent := range in {
		if ent.Confidence >= threshold {
			out = append(out, ent)
		}
	}
	return out
}

// SummaryResult is the JSON shape of the conversation summary prompt.
type SummaryResult struct {
	Summary string          `json:"summary"`
	Facts   []ExtractedFact `json:"facts"`
}

type ExtractedFact struct {
	Category   string         `json:"category"`
	Content    string         `json:"content"`
	Visibility FactVisibility `json:"visibility,omitempty"`
}
