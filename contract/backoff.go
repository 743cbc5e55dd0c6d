package contract

import (
	"context"

	"github.com/cenkalti/backoff/v5"

	"github.com/gomind-labs/execrt/core"
)

// RetryWithBackoff runs fn up to contract.MaxRetries+1 times with
// exponential backoff between attempts, honoring contract.NoRetry.
// Retries are only attempted when errKind's recovery strategy is
// RETRY_AFTER_DELAY; for any other kind fn is called exactly once.
func RetryWithBackoff[T any](ctx context.Context, c *core.ExecutionContract, errKind core.ErrorKind, fn func(ctx context.Context) (T, error)) (T, error) {
	if c == nil || c.NoRetry || c.MaxRetries <= 0 {
		return fn(ctx)
	}
	if core.RecoveryStrategyFor(errKind) != core.RecoveryRetryAfterDelay {
		return fn(ctx)
	}

	operation := func() (T, error) {
		return fn(ctx)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(c.MaxRetries)+1),
	)
}
