package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/swarmlabs/hive/internal/ports"
)

func TestRetryEventualSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	out, err := p.Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ports.Error{Op: "llm.invoke", Retryable: true, Err: errors.New("rate limited")}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Errorf("expected success on attempt 3, got %q after %d calls", out, calls)
	}
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	_, err := p.Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", &ports.Error{Op: "llm.invoke", Err: errors.New("bad request")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	calls := 0
	_, err := p.Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", &ports.Error{Op: "llm.invoke", Retryable: true, Err: errors.New("overloaded")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if !ports.IsRetryable(err) {
		t.Error("expected the last error to surface unchanged")
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Do(ctx, func(ctx context.Context) (string, error) {
			return "", &ports.Error{Op: "llm.invoke", Retryable: true, Err: errors.New("slow")}
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}
