package mint

import (
	"context"
	"time"

	"github.com/atomicalminer/atomicalminer/pkg/logging"
)

// RetryPolicy bounds how many times an operation is attempted and how
// long to sleep between attempts. Infinite=true models the indexer and
// fee-oracle query policy ("retried with 1-minute backoff forever");
// Infinite=false with MaxAttempts set models the broadcast policy
// (20 attempts, 15s apart).
type RetryPolicy struct {
	Infinite    bool
	MaxAttempts int
	Backoff     time.Duration
}

// QueryRetryPolicy is the indexer/fee-oracle retry policy: unbounded
// attempts, one minute between them.
func QueryRetryPolicy() RetryPolicy {
	return RetryPolicy{Infinite: true, Backoff: time.Minute}
}

// BroadcastRetryPolicy is the commit/reveal broadcast retry policy:
// 20 attempts, 15 seconds apart.
func BroadcastRetryPolicy() RetryPolicy {
	return RetryPolicy{Infinite: false, MaxAttempts: 20, Backoff: 15 * time.Second}
}

// RetryForever runs fn under the given policy, logging a warning and
// sleeping Backoff between failed attempts. For an Infinite policy it
// never gives up; for a bounded policy it returns the last error once
// MaxAttempts is exhausted. It returns early if ctx is cancelled.
//
// label is used only for log lines (e.g. "get_ft_info", "broadcast-commit").
func RetryForever(ctx context.Context, log *logging.Logger, label string, policy RetryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 1; policy.Infinite || attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !policy.Infinite && attempt >= policy.MaxAttempts {
			break
		}

		log.Warn("operation failed, retrying", "op", label, "attempt", attempt, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Backoff):
		}
	}
	return lastErr
}
