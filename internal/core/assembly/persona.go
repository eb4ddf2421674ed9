package assembly

import "strings"

type Persona string

const (
	PersonaBiographer Persona = "biographer"
	PersonaFriend     Persona = "friend"
	PersonaFamily     Persona = "family"
	PersonaHistorian  Persona = "historian"
)

// ParsePersona falls back to def, and to biographer when def is unknown too.
func ParsePersona(s string, def Persona) Persona {
	switch p := Persona(strings.ToLower(strings.TrimSpace(s))); p {
	case PersonaBiographer, PersonaFriend, PersonaFamily, PersonaHistorian:
		return p
	}
	switch def {
	case PersonaBiographer, PersonaFriend, PersonaFamily, PersonaHistorian:
		return def
	}
	return PersonaBiographer
}

// Weights scale each lane's relevance during fusion. Depth is the graph traversal depth.
type Weights struct {
	Story  float64 `json:"story"`
	Graph  float64 `json:"graph"`
	Fact   float64 `json:"fact"`
	Memory float64 `json:"memory"`
	Depth  int     `json:"depth"`
}

var intentWeights = map[Intent]Weights{
	IntentRelationships: {Story: 0.8, Graph: 1.0, Fact: 0.7, Memory: 0.5, Depth: 2},
	IntentTimeline:      {Story: 1.0, Graph: 0.6, Fact: 0.8, Memory: 0.5, Depth: 1},
	IntentPlaces:        {Story: 0.9, Graph: 0.9, Fact: 0.6, Memory: 0.4, Depth: 2},
	IntentStoryRecall:   {Story: 1.0, Graph: 0.5, Fact: 0.5, Memory: 0.6, Depth: 1},
	IntentGeneral:       {Story: 1.0, Graph: 0.6, Fact: 0.6, Memory: 0.5, Depth: 1},
}

// personaBias multiplies the intent weights; Depth is added.
var personaBias = map[Persona]Weights{
	PersonaBiographer: {Story: 1.1, Graph: 1.0, Fact: 1.0, Memory: 0.8},
	PersonaFriend:     {Story: 1.0, Graph: 0.8, Fact: 0.9, Memory: 1.2},
	PersonaFamily:     {Story: 1.0, Graph: 1.2, Fact: 1.0, Memory: 1.0, Depth: 1},
	PersonaHistorian:  {Story: 1.2, Graph: 0.9, Fact: 1.1, Memory: 0.6},
}

// WeightsFor combines intent and persona. Depth is kept within [1, maxDepth]
// when maxDepth is positive.
func WeightsFor(intent Intent, persona Persona, maxDepth int) Weights {
	base, ok := intentWeights[intent]
	if !ok {
		base = intentWeights[IntentGeneral]
	}
	bias, ok := personaBias[persona]
	if !ok {
		bias = personaBias[PersonaBiographer]
	}
	w := Weights{
		Story:  base.Story * bias.Story,
		Graph:  base.Graph * bias.Graph,
		Fact:   base.Fact * bias.Fact,
		Memory: base.Memory * bias.Memory,
		Depth:  max(base.Depth+bias.Depth, 1),
	}
	if maxDepth > 0 {
		w.Depth = min(w.Depth, maxDepth)
	}
	return w
}
