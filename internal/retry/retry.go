package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agenthands/keepsake/internal/apperr"
	"github.com/agenthands/keepsake/internal/config"
)

// Policy bounds how often and how slowly a provider call is retried.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used when a component is built without an explicit policy.
var DefaultPolicy = Policy{
	MaxTries:        3,
	InitialInterval: 250 * time.Millisecond,
	MaxInterval:     4 * time.Second,
}

// FromConfig builds a policy from configuration. Unset fields keep DefaultPolicy values.
func FromConfig(c config.RetryConfig) Policy {
	p := DefaultPolicy
	if c.MaxTries > 0 {
		p.MaxTries = c.MaxTries
	}
	if c.InitialBackoffMS > 0 {
		p.InitialInterval = time.Duration(c.InitialBackoffMS) * time.Millisecond
	}
	if c.MaxBackoffMS > 0 {
		p.MaxInterval = time.Duration(c.MaxBackoffMS) * time.Millisecond
	}
	return p
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// Do calls fn until it succeeds, returns a non-retryable error, the context ends,
// or MaxTries is exhausted. Only errors classified retryable by apperr are retried.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}

	op := func() (T, error) {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, backoff.Permanent(err)
		}
		if !apperr.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(tries),
	)
}

// DoErr is Do for calls without a result.
func DoErr(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
