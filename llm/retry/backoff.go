// Package retry implements the exponential-backoff retry policy shared by
// every provider call. Only errors marked retryable by the llm error
// taxonomy are retried; permanent errors (authentication, unknown model,
// malformed request) surface after exactly one attempt.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
)

// Policy configures the backoff curve. The defaults implement exponential
// backoff with full doubling and ±25% jitter, capped at MaxDelay.
type Policy struct {
	MaxRetries   int           // additional attempts after the first (0 disables retry)
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // ceiling for the computed delay
	Multiplier   float64       // delay growth factor per attempt
	Jitter       bool          // randomize each delay by ±25%

	// RateLimitFactor scales InitialDelay for rate-limited errors so
	// throttling backs off longer than generic unavailability.
	RateLimitFactor float64

	// OnRetry, when set, observes every scheduled retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the policy used when none is configured:
// 1s initial delay, doubling, 30s cap, jitter on, 3 retries.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:      3,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		RateLimitFactor: 2.0,
	}
}

// Retryer executes functions under a retry policy.
type Retryer struct {
	policy *Policy
	logger *zap.Logger
}

// NewRetryer creates a Retryer, normalizing out-of-range policy fields.
func NewRetryer(policy *Policy, logger *zap.Logger) *Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if policy.RateLimitFactor < 1.0 {
		policy.RateLimitFactor = 1.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do runs fn until it succeeds, returns a permanent error, exhausts the
// retry budget, or ctx is cancelled. On exhaustion the last error is
// returned annotated with the total attempt count. Cancellation between
// attempts aborts immediately with ctx.Err(); no further attempts run.
func Do[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt, lastErr)
			r.logger.Debug("retrying provider call",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("provider call succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !llm.IsRetryable(err) {
			return zero, err
		}
	}

	r.logger.Warn("retry budget exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr))
	return zero, annotateAttempts(lastErr, r.policy.MaxRetries+1)
}

// delay computes the backoff before the given retry attempt (1-based).
func (r *Retryer) delay(attempt int, lastErr error) time.Duration {
	base := float64(r.policy.InitialDelay)
	if llm.CodeOf(lastErr) == llm.ErrRateLimited {
		base *= r.policy.RateLimitFactor
	}

	d := base * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := d * 0.25
		d += (rand.Float64()*2 - 1) * jitter
	}
	if d < float64(r.policy.InitialDelay) {
		d = float64(r.policy.InitialDelay)
	}
	return time.Duration(d)
}

// annotateAttempts stamps the attempt count onto a taxonomy error. Foreign
// errors are wrapped so the count is still visible to callers.
func annotateAttempts(err error, attempts int) error {
	if e, ok := llm.AsError(err); ok {
		annotated := *e
		annotated.Attempts = attempts
		return &annotated
	}
	return &llm.Error{
		Code:     llm.ErrProviderUnavailable,
		Message:  err.Error(),
		Attempts: attempts,
		Cause:    err,
	}
}
