// Package orchestrator applies uniform cross-cutting policy to provider
// calls: per-attempt timeouts, exponential-backoff retry, an optional
// fallback provider chain, optional completion caching, and metrics.
// Providers stay policy-free; callers stay provider-agnostic.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/llm/retry"
)

// Cache is the optional completion cache consulted before dispatch.
// Implementations treat storage failures as misses.
type Cache interface {
	Get(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, bool)
	Set(ctx context.Context, req *llm.CompletionRequest, result *llm.CompletionResult)
}

// Observer receives call outcomes for metrics. All methods must be safe
// for concurrent use.
type Observer interface {
	ObserveProviderCall(provider, outcome string, elapsed time.Duration)
	ObserveRetry(provider string)
}

// Config tunes the orchestrator.
type Config struct {
	// AttemptTimeout bounds each individual attempt. Zero disables the
	// per-attempt deadline (the provider's own client timeout still
	// applies).
	AttemptTimeout time.Duration

	// RetryPolicy configures backoff. Nil uses retry.DefaultPolicy.
	RetryPolicy *retry.Policy
}

// Orchestrator dispatches calls to a primary provider and, when its retry
// budget is exhausted on a retryable failure, to each fallback in order.
// All fields are set at construction; instances are safe to share.
type Orchestrator struct {
	primary   llm.Provider
	fallbacks []llm.Provider
	retryer   *retry.Retryer
	cfg       Config
	cache     Cache
	observer  Observer
	logger    *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithFallbacks configures fallback providers, tried in order after the
// primary's retry budget is exhausted.
func WithFallbacks(providers ...llm.Provider) Option {
	return func(o *Orchestrator) { o.fallbacks = providers }
}

// WithCache enables completion caching.
func WithCache(c Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithObserver registers a metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New creates an Orchestrator around a primary provider.
func New(primary llm.Provider, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		primary: primary,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}

	policy := cfg.RetryPolicy
	if o.observer != nil {
		p := *retry.DefaultPolicy()
		if policy != nil {
			p = *policy
		}
		inner := p.OnRetry
		p.OnRetry = func(attempt int, err error, delay time.Duration) {
			if perr, ok := llm.AsError(err); ok && perr.Provider != "" {
				o.observer.ObserveRetry(perr.Provider)
			} else {
				o.observer.ObserveRetry(o.primary.Name())
			}
			if inner != nil {
				inner(attempt, err, delay)
			}
		}
		policy = &p
	}
	o.retryer = retry.NewRetryer(policy, logger)
	return o
}

// Complete runs a completion under the full policy stack.
func (o *Orchestrator) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	if o.cache != nil {
		if result, ok := o.cache.Get(ctx, req); ok {
			o.logger.Debug("completion cache hit")
			return result, nil
		}
	}

	result, err := dispatch(ctx, o, req, func(ctx context.Context, p llm.Provider) (*llm.CompletionResult, error) {
		if !req.Stream {
			return p.Complete(ctx, req)
		}
		ch, err := p.Stream(ctx, req)
		if err != nil {
			return nil, err
		}
		return llm.Collect(ctx, ch)
	})
	if err != nil {
		return nil, err
	}

	if o.cache != nil {
		o.cache.Set(ctx, req, result)
	}
	return result, nil
}

// Embed runs a batch embedding under the same retry and fallback policy.
// Result order always matches input order.
func (o *Orchestrator) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return dispatch(ctx, o, nil, func(ctx context.Context, p llm.Provider) ([][]float64, error) {
		return p.Embed(ctx, texts)
	})
}

// HealthCheck probes the primary provider.
func (o *Orchestrator) HealthCheck(ctx context.Context) *llm.HealthStatus {
	return o.primary.HealthCheck(ctx)
}

// Name returns the primary provider's name.
func (o *Orchestrator) Name() string { return o.primary.Name() }

// providerChain returns primary followed by fallbacks.
func (o *Orchestrator) providerChain() []llm.Provider {
	return append([]llm.Provider{o.primary}, o.fallbacks...)
}

// dispatch walks the provider chain. Each provider gets a full retry
// budget; the chain advances only on retryable exhaustion or a provider
// error that a different backend could plausibly serve. Permanent errors
// on the primary surface immediately without touching fallbacks when no
// fallbacks are configured, and with fallbacks configured the chain still
// stops early on caller cancellation.
func dispatch[T any](ctx context.Context, o *Orchestrator, req *llm.CompletionRequest, call func(ctx context.Context, p llm.Provider) (T, error)) (T, error) {
	var zero T
	chain := o.providerChain()
	failures := make([]error, 0, len(chain))

	for i, p := range chain {
		reqID := uuid.NewString()
		start := time.Now()

		result, err := retry.Do(ctx, o.retryer, func(ctx context.Context) (T, error) {
			attemptCtx := ctx
			if o.cfg.AttemptTimeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, o.cfg.AttemptTimeout)
				defer cancel()
			}
			res, err := call(attemptCtx, p)
			if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				// An attempt deadline is provider unavailability, not a
				// caller cancellation; classify it as retryable.
				err = &llm.Error{
					Code:      llm.ErrProviderUnavailable,
					Message:   fmt.Sprintf("attempt exceeded %s timeout", o.cfg.AttemptTimeout),
					Retryable: true,
					Provider:  p.Name(),
					Cause:     err,
				}
			}
			return res, err
		})

		elapsed := time.Since(start)
		if err == nil {
			o.observe(p.Name(), "success", elapsed)
			if i > 0 {
				o.logger.Info("fallback provider served request",
					zap.String("request_id", reqID),
					zap.String("provider", p.Name()))
			}
			return result, nil
		}

		o.observe(p.Name(), "failure", elapsed)
		o.logger.Warn("provider failed",
			zap.String("request_id", reqID),
			zap.String("provider", p.Name()),
			zap.Error(err))

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return zero, err
		}
		failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))

		// A permanent error with no fallbacks surfaces as-is so callers
		// see the original classification.
		if len(chain) == 1 {
			return zero, err
		}
	}

	return zero, aggregateError(failures)
}

func (o *Orchestrator) observe(provider, outcome string, elapsed time.Duration) {
	if o.observer != nil {
		o.observer.ObserveProviderCall(provider, outcome, elapsed)
	}
}

// ExhaustedError reports that every provider in the chain failed. It
// preserves each provider's failure for inspection.
type ExhaustedError struct {
	Failures []error
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("all providers exhausted: %s", strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is/As.
func (e *ExhaustedError) Unwrap() []error { return e.Failures }

func aggregateError(failures []error) error {
	return &ExhaustedError{Failures: failures}
}
