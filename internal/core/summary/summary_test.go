package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/config"
	"github.com/agenthands/keepsake/internal/core/model"
	"github.com/agenthands/keepsake/internal/llm"
	"github.com/agenthands/keepsake/internal/llm/llmtest"
	"github.com/agenthands/keepsake/internal/store"
	"github.com/agenthands/keepsake/internal/store/memory"
)

const summaryJSON = `{
	"summary": "Talked about Grandma Ruth's garden and her years at the mill.",
	"facts": [
		{"category": "Hobby", "content": "Ruth grew tomatoes every summer.", "visibility": "shared"},
		{"category": "career", "content": "Ruth worked at the textile mill", "visibility": "private"},
		{"category": "career", "content": "ruth worked at the textile mill."}
	]
}`

func seedMessages(st *memory.Store, conv string, from, to int) {
	for i := from; i <= to; i++ {
		role := "user"
		if i%2 == 0 {
			role = "assistant"
		}
		st.AppendMessage(model.Message{ID: fmt.Sprintf("m%d", i), ConversationID: conv, Seq: i, Role: role, Content: fmt.Sprintf("message %d", i)})
	}
}

func newTestSummarizer(st *memory.Store, streamer *llmtest.ScriptedStreamer, emb *llmtest.HashEmbedder) *Summarizer {
	return NewSummarizer(st, st, streamer, emb, config.SummaryConfig{MessageThreshold: 4}, nil)
}

func TestBelowThresholdDoesNothing(t *testing.T) {
	st := memory.New()
	seedMessages(st, "c1", 1, 4)
	streamer := &llmtest.ScriptedStreamer{Responses: []string{summaryJSON}}
	s := newTestSummarizer(st, streamer, &llmtest.HashEmbedder{})

	res, err := s.MaybeSummarize(context.Background(), "c1", "u1", "l1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBelowThreshold, res.Outcome)
	assert.Equal(t, 4, res.Pending)
	assert.Zero(t, streamer.CallCount())
}

func TestSummarizeWritesChunkAndDedupedFacts(t *testing.T) {
	st := memory.New()
	seedMessages(st, "c1", 1, 6)
	require.NoError(t, st.WithinTx(context.Background(), func(tx store.MemoryTx) error {
		return tx.InsertFacts(context.Background(), []model.Fact{
			{ID: "f0", LegacyID: "l1", UserID: "u1", Category: "hobby", Content: "Ruth grew tomatoes every summer"},
		})
	}))
	streamer := &llmtest.ScriptedStreamer{Responses: []string{summaryJSON}}
	s := newTestSummarizer(st, streamer, &llmtest.HashEmbedder{})

	res, err := s.MaybeSummarize(context.Background(), "c1", "u1", "l1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSummarized, res.Outcome)
	assert.Equal(t, 1, res.RangeStart)
	assert.Equal(t, 6, res.RangeEnd)
	assert.Equal(t, 1, res.FactsAdded)

	chunks := st.ConversationChunks("c1")
	require.Len(t, chunks, 1)
	assert.Equal(t, "u1", chunks[0].UserID)
	assert.NotEmpty(t, chunks[0].Embedding)

	facts := st.Facts("l1", "u1")
	require.Len(t, facts, 2)
	assert.Equal(t, "career", facts[1].Category)
	assert.Equal(t, model.FactPrivate, facts[1].Visibility)
	assert.Equal(t, "c1", facts[1].SourceConversationID)

	require.Len(t, streamer.Requests, 1)
	assert.Contains(t, streamer.Requests[0].Messages[0].Content, "[2] Assistant: message 2")
}

func TestSecondCallIsNoOp(t *testing.T) {
	st := memory.New()
	seedMessages(st, "c1", 1, 6)
	streamer := &llmtest.ScriptedStreamer{Responses: []string{summaryJSON}}
	s := newTestSummarizer(st, streamer, &llmtest.HashEmbedder{})
	ctx := context.Background()

	_, err := s.MaybeSummarize(ctx, "c1", "u1", "l1")
	require.NoError(t, err)
	res, err := s.MaybeSummarize(ctx, "c1", "u1", "l1")
	require.NoError(t, err)

	// Everything up to seq 6 is summarized, so nothing is pending.
	assert.Equal(t, OutcomeBelowThreshold, res.Outcome)
	assert.Equal(t, 1, streamer.CallCount())
	assert.Len(t, st.ConversationChunks("c1"), 1)
	assert.Len(t, st.Facts("l1", "u1"), 2)

	seedMessages(st, "c1", 7, 11)
	res, err = s.MaybeSummarize(ctx, "c1", "u1", "l1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSummarized, res.Outcome)
	assert.Equal(t, 7, res.RangeStart)
	assert.Len(t, st.ConversationChunks("c1"), 2)
}

func TestConcurrentTriggersWriteOnce(t *testing.T) {
	st := memory.New()
	seedMessages(st, "c1", 1, 8)
	streamer := &llmtest.ScriptedStreamer{Responses: []string{summaryJSON}}
	s := newTestSummarizer(st, streamer, &llmtest.HashEmbedder{})

	var wg sync.WaitGroup
	results := make([]Result, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.MaybeSummarize(context.Background(), "c1", "u1", "l1")
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	summarized := 0
	for _, r := range results {
		if r.Outcome == OutcomeSummarized {
			summarized++
		}
	}
	assert.Equal(t, 1, summarized)
	assert.Len(t, st.ConversationChunks("c1"), 1)
	assert.Len(t, st.Facts("l1", "u1"), 2)
}

func TestFailureLeavesRangeEligible(t *testing.T) {
	st := memory.New()
	seedMessages(st, "c1", 1, 6)
	streamer := &llmtest.ScriptedStreamer{Responses: []string{summaryJSON}}
	emb := &llmtest.HashEmbedder{Fail: apperr.AuthFailure("test", errors.New("401"))}
	s := newTestSummarizer(st, streamer, emb)

	_, err := s.MaybeSummarize(context.Background(), "c1", "u1", "l1")
	assert.ErrorIs(t, err, apperr.ErrAuthFailure)
	assert.Empty(t, st.ConversationChunks("c1"))
	assert.Empty(t, st.Facts("l1", "u1"))

	emb.Fail = nil
	res, err := s.MaybeSummarize(context.Background(), "c1", "u1", "l1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSummarized, res.Outcome)
}

func TestUnparseableSummaryFails(t *testing.T) {
	st := memory.New()
	seedMessages(st, "c1", 1, 6)
	s := newTestSummarizer(st, &llmtest.ScriptedStreamer{Responses: []string{"Sorry, I can't."}}, &llmtest.HashEmbedder{})

	_, err := s.MaybeSummarize(context.Background(), "c1", "u1", "l1")
	assert.Error(t, err)
	assert.Empty(t, st.ConversationChunks("c1"))
}

func TestSchedulerShutdownWaits(t *testing.T) {
	st := memory.New()
	seedMessages(st, "c1", 1, 6)
	streamer := &llmtest.ScriptedStreamer{Responses: []string{summaryJSON}}
	sc := NewScheduler(newTestSummarizer(st, streamer, &llmtest.HashEmbedder{}), time.Second, nil)

	assert.True(t, sc.Trigger("c1", "u1", "l1"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sc.Shutdown(ctx))
	assert.Len(t, st.ConversationChunks("c1"), 1)
	assert.False(t, sc.Trigger("c1", "u1", "l1"))
}

type blockingStreamer struct{}

func (blockingStreamer) StreamGenerate(ctx context.Context, _ llm.GenerateRequest) (llm.Stream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSchedulerShutdownCancelsAfterDeadline(t *testing.T) {
	st := memory.New()
	seedMessages(st, "c1", 1, 6)
	s := NewSummarizer(st, st, blockingStreamer{}, &llmtest.HashEmbedder{}, config.SummaryConfig{MessageThreshold: 4}, nil)
	sc := NewScheduler(s, time.Minute, nil)

	require.True(t, sc.Trigger("c1", "u1", "l1"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sc.Shutdown(ctx), context.DeadlineExceeded)

	done, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.NoError(t, sc.Shutdown(done))
	assert.Empty(t, st.ConversationChunks("c1"))
}
