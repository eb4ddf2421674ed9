package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/core/common"
	"github.com/agenthands/keepsake/internal/core/dedupe"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/llm"
	"github.com/agenthands/keepsake/internal/retry"
	"github.com/agenthands/keepsake/internal/store"
)

const DefaultPrompt = `You condense a conversation about a remembered person into durable memory.
Return only a JSON object:
{
  "summary": "a short paragraph covering what was discussed and learned",
  "facts": [{"category": "family|career|hobby|place|event|preference|other", "content": "one atomic fact", "visibility": "private|shared"}]
}
Facts must be self-contained statements about the remembered person. Mark a fact "shared" only
when it is plainly meant for the whole family; otherwise use "private".`

// Outcome says what a MaybeSummarize call did.
type Outcome string

const (
	OutcomeSummarized        Outcome = "summarized"
	OutcomeBelowThreshold    Outcome = "below_threshold"
	OutcomeAlreadySummarized Outcome = "already_summarized"
)

type Result struct {
	Outcome    Outcome `json:"outcome"`
	ChunkID    string  `json:"chunk_id,omitempty"`
	RangeStart int     `json:"message_range_start,omitempty"`
	RangeEnd   int     `json:"message_range_end,omitempty"`
	Pending    int     `json:"pending_messages"`
	FactsAdded int     `json:"facts_added"`
}

// Summarizer condenses unsummarized conversation messages into one embedded
// conversation chunk plus deduplicated facts.
type Summarizer struct {
	Messages  store.MessageReader
	Memory    store.MemoryStore
	LLM       llm.Streamer
	Embedder  llm.Embedder
	Threshold int
	Model     string
	Prompt    string
	Retry     retry.Policy

	log *zap.Logger
	now func() time.Time
}

func NewSummarizer(messages store.MessageReader, memory store.MemoryStore, streamer llm.Streamer, embedder llm.Embedder, cfg config.SummaryConfig, log *zap.Logger) *Summarizer {
	if log == nil {
		log = zap.NewNop()
	}
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	threshold := cfg.MessageThreshold
	if threshold < 1 {
		threshold = 20
	}
	return &Summarizer{
		Messages:  messages,
		Memory:    memory,
		LLM:       streamer,
		Embedder:  embedder,
		Threshold: threshold,
		Model:     cfg.Model,
		Prompt:    prompt,
		Retry:     retry.DefaultPolicy,
		log:       log.Named("summary"),
		now:       time.Now,
	}
}

// MaybeSummarize runs once more than Threshold messages are unsummarized. A range
// that is already summarized, found before or during the write, is a no-op. On
// error nothing is written and the range stays eligible.
func (s *Summarizer) MaybeSummarize(ctx context.Context, conversationID, userID, legacyID string) (Result, error) {
	log := s.log.With(zap.String("conversation_id", conversationID))

	last, err := s.Memory.LastSummarizedSeq(ctx, conversationID)
	if err != nil {
		return Result{}, err
	}
	msgs, err := s.Messages.ListMessagesAfter(ctx, conversationID, last)
	if err != nil {
		return Result{}, fmt.Errorf("list messages: %w", err)
	}
	if len(msgs) <= s.Threshold {
		return Result{Outcome: OutcomeBelowThreshold, Pending: len(msgs)}, nil
	}

	start, end := msgs[0].Seq, msgs[len(msgs)-1].Seq
	res := Result{RangeStart: start, RangeEnd: end, Pending: len(msgs)}

	exists, err := s.Memory.HasConversationChunk(ctx, conversationID, start, end)
	if err != nil {
		return Result{}, err
	}
	if exists {
		log.Debug("range already summarized", zap.Int("start", start), zap.Int("end", end))
		res.Outcome = OutcomeAlreadySummarized
		return res, nil
	}

	parsed, err := s.summarize(ctx, msgs)
	if err != nil {
		return Result{}, err
	}

	vec, err := retry.Do(ctx, s.Retry, func(ctx context.Context) ([][]float32, error) {
		return s.Embedder.EmbedTexts(ctx, []string{parsed.Summary})
	})
	if err != nil {
		return Result{}, fmt.Errorf("embed summary: %w", err)
	}
	if len(vec) != 1 {
		return Result{}, fmt.Errorf("embed summary: got %d vectors", len(vec))
	}

	now := s.now().UTC()
	chunk := model.ConversationChunk{
		ID:                uuid.NewString(),
		ConversationID:    conversationID,
		LegacyID:          legacyID,
		UserID:            userID,
		MessageRangeStart: start,
		MessageRangeEnd:   end,
		Summary:           parsed.Summary,
		Embedding:         vec[0],
		CreatedAt:         now,
	}
	candidates := toFacts(parsed.Facts, conversationID, userID, legacyID, now)

	var added int
	err = s.Memory.WithinTx(ctx, func(tx store.MemoryTx) error {
		if err := tx.InsertConversationChunk(ctx, chunk); err != nil {
			return err
		}
		existing, err := tx.ListFacts(ctx, legacyID, userID)
		if err != nil {
			return err
		}
		fresh := dedupe.NewFacts(existing, candidates)
		if err := tx.InsertFacts(ctx, fresh); err != nil {
			return err
		}
		added = len(fresh)
		return nil
	})
	if errors.Is(err, store.ErrRangeSummarized) {
		log.Info("lost summarization race, range already stored", zap.Int("start", start), zap.Int("end", end))
		res.Outcome = OutcomeAlreadySummarized
		return res, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("store summary: %w", err)
	}

	res.Outcome = OutcomeSummarized
	res.ChunkID = chunk.ID
	res.FactsAdded = added
	log.Info("conversation summarized",
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("facts", added),
	)
	return res, nil
}

func (s *Summarizer) summarize(ctx context.Context, msgs []model.Message) (model.SummaryResult, error) {
	req := llm.GenerateRequest{
		SystemPrompt: s.Prompt,
		Model:        s.Model,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: transcript(msgs)}},
	}
	out, err := retry.Do(ctx, s.Retry, func(ctx context.Context) (string, error) {
		return llm.Collect(ctx, s.LLM, req, s.log)
	})
	if err != nil {
		return model.SummaryResult{}, fmt.Errorf("generate summary: %w", err)
	}

	parsed, err := common.ParseJSON[model.SummaryResult](out)
	if err != nil {
		return model.SummaryResult{}, fmt.Errorf("failed to parse summary result: %w", err)
	}
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	if parsed.Summary == "" {
		return model.SummaryResult{}, errors.New("summary result has no summary text")
	}
	return parsed, nil
}

func transcript(msgs []model.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		speaker := "User"
		if m.Role == llm.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&sb, "[%d] %s: %s\n", m.Seq, speaker, strings.TrimSpace(m.Content))
	}
	return sb.String()
}

func toFacts(in []model.ExtractedFact, conversationID, userID, legacyID string, now time.Time) []model.Fact {
	out := make([]model.Fact, 0, len(in))
	for _, f := range in {
		vis := model.FactPrivate
		if strings.EqualFold(string(f.Visibility), string(model.FactShared)) {
			vis = model.FactShared
		}
		out = append(out, model.Fact{
			ID:                   uuid.NewString(),
			LegacyID:             legacyID,
			UserID:               userID,
			Category:             dedupe.NormalizeCategory(f.Category),
			Content:              strings.TrimSpace(f.Content),
			Visibility:           vis,
			SourceConversationID: conversationID,
			CreatedAt:            now,
		})
	}
	return out
}
