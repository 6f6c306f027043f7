package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pcnpilot/pcnpilot/internal/draft"
)

// RetryPolicy is the explicit retry policy around the drafting stage: how
// many attempts, which backoff schedule, and which error kinds are
// retryable. Components never retry themselves; the pipeline executes this
// policy on their behalf.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to the backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps a single backoff interval.
	MaxBackoff time.Duration

	// Retryable classifies errors; non-retryable errors abort immediately.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the drafting-stage defaults: three attempts
// with exponential backoff, retrying provider unavailability and malformed
// output.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		Retryable:         DraftRetryable,
	}
}

// DraftRetryable reports whether a drafting error may be retried.
func DraftRetryable(err error) bool {
	return errors.Is(err, draft.ErrGenerationUnavailable) || errors.Is(err, draft.ErrMalformedDraft)
}

// Execute runs op under the policy and reports how many attempts were made.
// It returns nil as soon as op succeeds, the last error once attempts are
// exhausted or a non-retryable error occurs, and the context error when the
// deadline expires between attempts.
func (p RetryPolicy) Execute(ctx context.Context, op func() error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DraftRetryable
	}

	b := backoff.NewExponentialBackOff()
	if p.BackoffBase > 0 {
		b.InitialInterval = p.BackoffBase
	}
	if p.BackoffMultiplier > 0 {
		b.Multiplier = p.BackoffMultiplier
	}
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0

	attempts := 0
	wrapped := func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	schedule := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)
	err := backoff.Retry(wrapped, schedule)
	return attempts, err
}
