package llm

import (
	"context"
	"time"

	perrors "github.com/dokmap/dokmap/internal/pipeline/errors"
)

const (
	// DefaultMaxAttempts bounds a model call to one initial attempt plus
	// three retries.
	DefaultMaxAttempts = 4
	// DefaultBaseDelay is the backoff before the first retry; it doubles
	// each subsequent attempt.
	DefaultBaseDelay = time.Second
)

// Sleeper waits for a backoff delay. Tests inject a no-op recorder so retry
// behavior is verifiable without real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepWithContext waits d or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy is a bounded-attempt policy with exponential backoff.
// Retryability is a property of the error, not of the policy: transport
// failures (including HTTP 5xx and 429) retry, everything else is a
// permanent request defect.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the standard model-call policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// retry runs op up to the policy's attempt bound, sleeping an exponentially
// growing delay between attempts while the returned error is retryable.
// Context cancellation aborts immediately with no further attempts.
func retry[T any](ctx context.Context, policy RetryPolicy, sleep Sleeper, op func() (T, error)) (T, error) {
	policy = policy.normalized()
	if sleep == nil {
		sleep = sleepWithContext
	}

	var zero T
	var lastErr error
	delay := policy.BaseDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, perrors.Wrap(perrors.KindTransport, "request cancelled", err)
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !perrors.KindOf(err).Retryable() {
			return zero, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		if err := sleep(ctx, delay); err != nil {
			return zero, perrors.Wrap(perrors.KindTransport, "request cancelled during backoff", err)
		}
		delay *= 2
	}

	return zero, lastErr
}
