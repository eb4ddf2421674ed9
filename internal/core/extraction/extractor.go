package extraction

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/core/common"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/llm"
	"github.com/agenthands/keepsake/internal/retry"
)

const DefaultPrompt = `You extract structured facts from a family story.
Return only a JSON object with these keys:
  "people":  [{"name", "relationship", "context", "confidence"}],
  "places":  [{"name", "context", "confidence"}],
  "events":  [{"name", "context", "confidence"}],
  "objects": [{"name", "context", "confidence"}],
  "time_references": [{"text", "period", "confidence"}]
"relationship" is the person's relationship to the subject of the story when it is stated.
"confidence" is between 0 and 1. Use empty arrays when nothing applies.`

// maxInputRunes bounds the story text sent for extraction.
const maxInputRunes = 24000

type Extractor struct {
	LLM       llm.Streamer
	Prompt    string
	Model     string
	Threshold float64
	Retry     retry.Policy
	log       *zap.Logger
}

func NewExtractor(streamer llm.Streamer, cfg config.ExtractionConfig, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &Extractor{
		LLM:       streamer,
		Prompt:    prompt,
		Model:     cfg.Model,
		Threshold: cfg.ConfidenceThreshold,
		Retry:     retry.DefaultPolicy,
		log:       log.Named("extraction"),
	}
}

// Extract asks the LLM for the entities in text. Any failure, from the provider or
// from parsing, yields an empty result so callers have a single "nothing found" path.
func (e *Extractor) Extract(ctx context.Context, text string) model.ExtractedEntities {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ExtractedEntities{}
	}

	req := llm.GenerateRequest{
		SystemPrompt: e.Prompt,
		Model:        e.Model,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: common.Truncate(text, maxInputRunes)}},
	}
	response, err := retry.Do(ctx, e.Retry, func(ctx context.Context) (string, error) {
		return llm.Collect(ctx, e.LLM, req, e.log)
	})
	if err != nil {
		e.log.Warn("entity extraction call failed", zap.Error(err))
		return model.ExtractedEntities{}
	}

	result, err := common.ParseJSON[model.ExtractedEntities](response)
	if err != nil {
		e.log.Warn("entity extraction returned unparseable output", zap.Error(err))
		return model.ExtractedEntities{}
	}
	return clean(result)
}

// ExtractFiltered is Extract followed by the configured confidence filter.
func (e *Extractor) ExtractFiltered(ctx context.Context, text string) model.ExtractedEntities {
	return e.Extract(ctx, text).FilterByConfidence(e.Threshold)
}

// clean drops nameless items and clamps confidences into [0, 1].
func clean(in model.ExtractedEntities) model.ExtractedEntities {
	fix := func(list []model.ExtractedEntity) []model.ExtractedEntity {
		out := make([]model.ExtractedEntity, 0, len(list))
		for _, ent := range list {
			ent.Name = strings.TrimSpace(ent.Name)
			if ent.Name == "" {
				continue
			}
			ent.Confidence = clamp(ent.Confidence)
			out = append(out, ent)
		}
		return out
	}
	times := make([]model.TimeReference, 0, len(in.TimeReferences))
	for _, tr := range in.TimeReferences {
		if strings.TrimSpace(tr.Text) == "" {
			continue
		}
		tr.Confidence = clamp(tr.Confidence)
		times = append(times, tr)
	}
	return model.ExtractedEntities{
		People:         fix(in.People),
		Places:         fix(in.Places),
		Events:         fix(in.Events),
		Objects:        fix(in.Objects),
		TimeReferences: times,
	}
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
