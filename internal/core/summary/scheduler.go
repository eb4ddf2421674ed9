package summary

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs summarization off the request path. Every job is tracked so
// Shutdown can wait for in-flight work.
type Scheduler struct {
	s       *Summarizer
	timeout time.Duration
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewScheduler(s *Summarizer, timeout time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{s: s, timeout: timeout, log: log.Named("summary_scheduler"), ctx: ctx, cancel: cancel}
}

// Trigger starts a background MaybeSummarize. It reports false after Shutdown.
func (sc *Scheduler) Trigger(conversationID, userID, legacyID string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return false
	}
	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		ctx, cancel := context.WithTimeout(sc.ctx, sc.timeout)
		defer cancel()

		res, err := sc.s.MaybeSummarize(ctx, conversationID, userID, legacyID)
		if err != nil {
			sc.log.Warn("background summarization failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			return
		}
		sc.log.Debug("background summarization finished",
			zap.String("conversation_id", conversationID),
			zap.String("outcome", string(res.Outcome)),
		)
	}()
	return true
}

// Shutdown stops accepting work and waits for running jobs. When ctx ends first
// the jobs are cancelled and ctx's error is returned.
func (sc *Scheduler) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	sc.closed = true
	sc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		sc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		sc.cancel()
		return nil
	case <-ctx.Done():
		sc.cancel()
		return ctx.Err()
	}
}
