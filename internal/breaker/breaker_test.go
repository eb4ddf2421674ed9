package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker() (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	b := New(Config{Name: "graph", FailureThreshold: 3, RecoveryTimeout: 30 * time.Second}, clock.Now)
	return b, clock
}

func TestOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.AllowRequest())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.AllowRequest())
	assert.Equal(t, 3, b.Snapshot().ConsecutiveFailures)
}

func TestHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	clock.Advance(29 * time.Second)
	assert.False(t, b.AllowRequest())
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(time.Second)
	assert.True(t, b.AllowRequest())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.AllowRequest())
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(time.Minute)
	assert.True(t, b.AllowRequest())

	b.RecordSuccess()
	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(time.Minute)
	assert.True(t, b.AllowRequest())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.AllowRequest())
}

func TestSuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker()
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestConcurrentFailuresAreCounted(t *testing.T) {
	b := New(Config{FailureThreshold: 1000, RecoveryTimeout: time.Second}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.RecordFailure()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, b.Snapshot().ConsecutiveFailures)
	assert.Equal(t, StateClosed, b.State())
}
