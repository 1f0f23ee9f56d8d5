package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errMalformed = errors.New("malformed answer")

func TestBackoffEventuallySucceeds(t *testing.T) {
	calls := 0
	var retried []int
	b := Backoff{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		OnRetry:    func(attempt int, _ error) { retried = append(retried, attempt) },
	}
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls mismatch: %d", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Fatalf("retry attempts mismatch: %v", retried)
	}
}

func TestBackoffGivesUp(t *testing.T) {
	calls := 0
	want := errors.New("rpc down")
	err := Backoff{MaxRetries: 2, BaseDelay: time.Millisecond}.Do(context.Background(), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls mismatch: %d", calls)
	}
}

func TestBackoffStopsOnPermanentError(t *testing.T) {
	calls := 0
	b := Backoff{
		MaxRetries: 5,
		BaseDelay:  time.Hour,
		Permanent:  func(err error) bool { return errors.Is(err, errMalformed) },
	}
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("latestRoundData: %w", errMalformed)
	})
	if !errors.Is(err, errMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error retried: %d calls", calls)
	}
}

func TestBackoffDoesNotRetryDeadline(t *testing.T) {
	calls := 0
	err := Backoff{MaxRetries: 5, BaseDelay: time.Hour}.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("eth_getLogs: %w", context.DeadlineExceeded)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("deadline retried: %d calls", calls)
	}
}

func TestBackoffContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Backoff{MaxRetries: 5, BaseDelay: time.Hour}.Do(ctx, func(context.Context) error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
