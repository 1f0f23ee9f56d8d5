package chain

import (
	"context"
	"errors"
	"time"
)

const defaultBaseDelay = 100 * time.Millisecond

// Backoff retries RPC reads with a doubling delay.
type Backoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Permanent marks errors that a retry cannot fix, such as malformed feed answers.
	Permanent func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds, returns a permanent error, the retries run out or ctx is done.
// Context errors from fn are never retried.
func (b Backoff) Do(ctx context.Context, fn func(context.Context) error) error {
	maxRetries := b.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := b.BaseDelay
	if delay <= 0 {
		delay = defaultBaseDelay
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !b.retryable(err) {
			return err
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (b Backoff) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return b.Permanent == nil || !b.Permanent(err)
}
