package llm

import (
	"context"
	"log"
	"time"

	"github.com/swarmlabs/hive/internal/ports"
)

// Policy bounds retries of a capability-port call: a fixed attempt
// budget with exponential backoff on retryable failures. Non-retryable
// failures surface immediately.
type Policy struct {
	// MaxAttempts is the total call budget, including the first try.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt; it doubles
	// on each subsequent one.
	BaseDelay time.Duration
}

// DefaultPolicy matches the engine-wide convention for port calls.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Do runs op under the policy and returns its last result.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) (string, error)) (string, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var out string
	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = op(ctx)
		if err == nil {
			return out, nil
		}
		if !ports.IsRetryable(err) || attempt == attempts {
			return "", err
		}
		log.Printf("[llm] attempt %d/%d failed (retryable): %v", attempt, attempts, err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", err
}
