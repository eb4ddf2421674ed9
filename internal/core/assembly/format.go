package assembly

import (
	"fmt"
	"strings"

	"github.com/agenthands/keepsake/internal/core/dedupe"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/graph"
)

const (
	SectionStories  = "Related Stories"
	SectionPeople   = "Connected People"
	SectionPlaces   = "Places"
	SectionEvents   = "Events"
	SectionObjects  = "Objects"
	SectionFacts    = "Known Facts"
	SectionMemories = "Earlier Conversations"
)

var sectionOrder = []string{
	SectionStories, SectionPeople, SectionPlaces, SectionEvents, SectionObjects, SectionFacts, SectionMemories,
}

func sectionForLabel(label string) string {
	switch label {
	case model.LabelPerson:
		return SectionPeople
	case model.LabelPlace:
		return SectionPlaces
	case model.LabelEvent:
		return SectionEvents
	default:
		return SectionObjects
	}
}

func header(section string) string { return "## " + section }

func bullet(it Item) string { return "- " + it.Text }

// format renders kept items under their section headers in a fixed section order.
// Items keep their ranked order inside a section.
func format(items []Item) string {
	bySection := make(map[string][]Item)
	for _, it := range items {
		bySection[it.Section] = append(bySection[it.Section], it)
	}

	var sb strings.Builder
	for _, sec := range sectionOrder {
		its := bySection[sec]
		if len(its) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(header(sec))
		sb.WriteString("\n")
		for _, it := range its {
			sb.WriteString(bullet(it))
			sb.WriteString("\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func storyText(s graph.RelatedStory) string {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = "Untitled story"
	}
	if len(s.Mentions) == 0 {
		return fmt.Sprintf("%q", title)
	}
	return fmt.Sprintf("%q mentions %s", title, strings.Join(s.Mentions, ", "))
}

func entityText(e EntityResult) string {
	var sb strings.Builder
	sb.WriteString(e.Name)
	if e.Relationship != "" {
		sb.WriteString(" (" + e.Relationship + ")")
	}
	if ctx := oneLine(e.Context); ctx != "" {
		sb.WriteString(": " + ctx)
	}
	return sb.String()
}

func factText(f model.Fact) string {
	return fmt.Sprintf("[%s] %s", dedupe.NormalizeCategory(f.Category), oneLine(f.Content))
}
