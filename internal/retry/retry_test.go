package retry

import (
	"context"
	"errors"
	"testing"
)

func TestDoRetriesUpToPolicy(t *testing.T) {
	calls := 0
	retries := 0
	flaky := errors.New("flaky")
	_, err := Do(context.Background(), Policy{MaxRetries: 2}, func() (string, error) {
		calls++
		return "", flaky
	}, OnRetry(func() { retries++ }))
	if calls != 3 { t.Fatalf("expected 3 calls, got %d", calls) }
	if retries != 2 { t.Fatalf("expected 2 retry callbacks, got %d", retries) }
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, flaky) {
		t.Fatalf("expected exhausted flaky error, got %v", err)
	}
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Policy{MaxRetries: 3}, func() (int, error) {
		calls++
		if calls < 3 { return 0, errors.New("again") }
		return 42, nil
	})
	if err != nil || v != 42 || calls != 3 { t.Fatalf("got v=%d err=%v calls=%d", v, err, calls) }
}

func TestDoAbortsOnMatchingError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	_, err := Do(context.Background(), Policy{MaxRetries: 5}, func() (string, error) {
		calls++
		return "", stop
	}, AbortOn(stop))
	if calls != 1 { t.Fatalf("abort should prevent retries, got %d calls", calls) }
	if !errors.Is(err, stop) || errors.Is(err, ErrExhausted) {
		t.Fatalf("expected abort error, got %v", err)
	}
}

func TestNegativeRetriesMeansSingleAttempt(t *testing.T) {
	calls := 0
	_, _ = Do(context.Background(), Policy{MaxRetries: -1}, func() (string, error) {
		calls++
		return "", errors.New("x")
	})
	if calls != 1 { t.Fatalf("expected one call, got %d", calls) }
	if (Policy{MaxRetries: -4}).Attempts() != 1 { t.Fatal("attempts should clamp to 1") }
}
