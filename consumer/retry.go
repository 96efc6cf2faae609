package consumer

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy wraps an adapter call with retries. Retries happen inside one
// cycle; anything still failing afterwards is left to queue redelivery.
type RetryPolicy interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type nopRetry struct{}

func (nopRetry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// Backoff retries with exponential delays between BaseDelay and MaxDelay.
//
// Retryable, when set, decides which errors are worth another attempt;
// context errors are never retried.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    bool
	Retryable func(error) bool
}

func (b Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	base := b.BaseDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	max := b.MaxDelay
	if max <= 0 {
		max = 2 * time.Second
	}
	if max < base {
		max = base
	}

	var last error
	delay := base
	for i := 0; i < attempts; i++ {
		last = fn(ctx)
		if last == nil || !b.retryable(last) || i == attempts-1 {
			break
		}

		d := delay
		if b.Jitter {
			d = time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
		}
		if d > max {
			d = max
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > max {
			delay = max
		}
	}
	return last
}

func (b Backoff) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if b.Retryable != nil {
		return b.Retryable(err)
	}
	return true
}
