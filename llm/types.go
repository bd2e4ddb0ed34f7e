package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies provider and configuration failures so callers can
// align retry behaviour and HTTP status without inspecting message text.
type ErrorCode string

const (
	ErrInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION" // malformed chunking or provider parameters
	ErrEmptyInput           ErrorCode = "EMPTY_INPUT"           // empty text handed to the chunker
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"       // request rejected by the backend as malformed
	ErrUnauthorized         ErrorCode = "UNAUTHORIZED"          // missing or invalid credentials
	ErrForbidden            ErrorCode = "FORBIDDEN"             // credentials valid but access denied
	ErrRateLimited          ErrorCode = "RATE_LIMITED"          // backend throttling
	ErrQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"        // credits or quota exhausted
	ErrModelNotFound        ErrorCode = "MODEL_NOT_FOUND"       // requested model unknown to the backend
	ErrModelOverloaded      ErrorCode = "MODEL_OVERLOADED"      // backend overloaded (Anthropic 529)
	ErrProviderUnavailable  ErrorCode = "PROVIDER_UNAVAILABLE"  // network failure or timeout
	ErrUnsupportedProvider  ErrorCode = "UNSUPPORTED_PROVIDER"  // factory given an unknown kind
	ErrInternal             ErrorCode = "INTERNAL"              // unclassified failure
)

// Error is the structured error returned by every provider and by the
// orchestrator. Retryable drives the retry loop; HTTPStatus is the status
// the surrounding API layer should report.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Attempts   int       `json:"attempts,omitempty"` // set by the orchestrator after retry exhaustion
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError unwraps err to a *Error if one is present in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// CodeOf returns the error code carried by err, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err is marked retryable. Foreign errors are
// not retried: an error without a classification is assumed permanent.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"   // natural end or stop sequence
	FinishLength FinishReason = "length" // max_tokens ceiling reached
	FinishError  FinishReason = "error"  // stream aborted by an error
)

// NormalizeFinishReason maps vendor-specific finish strings onto the
// common FinishReason values. Unknown non-empty values map to stop.
func NormalizeFinishReason(vendor string) FinishReason {
	switch vendor {
	case "", "stop", "end_turn", "stop_sequence":
		return FinishStop
	case "length", "max_tokens":
		return FinishLength
	case "error":
		return FinishError
	default:
		return FinishStop
	}
}

// CompletionRequest is the unified request accepted by every provider.
// Model is optional; providers fall back to their configured default.
type CompletionRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Model        string   `json:"model,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  float32  `json:"temperature,omitempty"`
	Stop         []string `json:"stop,omitempty"`
	Stream       bool     `json:"stream,omitempty"`
}

// Usage reports token consumption for a single call. Providers that omit
// usage on stream completion report an explicit zero value, never absence.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another Usage into this one.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionResult is the unified completion response. Produced fresh per
// call; this layer never caches it (llm/cache is an explicit opt-in).
type CompletionResult struct {
	Text         string       `json:"text"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`
	Model        string       `json:"model,omitempty"`
	Provider     string       `json:"provider,omitempty"`
}

// StreamChunk is one increment of a streaming completion. The final chunk
// carries FinishReason and, when the vendor reports it, Usage. A chunk
// with Err != nil terminates the stream.
type StreamChunk struct {
	Text         string       `json:"text,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	Err          *Error       `json:"error,omitempty"`
}

// HealthStatus is the result of a liveness probe. Probes never return an
// error: any failure is folded into Healthy=false with Detail set.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
	Detail    string        `json:"detail,omitempty"`
}

// Provider is the capability contract every backend adapter satisfies.
// Implementations are safe for concurrent use once constructed; no
// per-call mutable state exists beyond the shared HTTP client pool.
type Provider interface {
	// Complete performs a synchronous completion.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Stream performs a streaming completion. The channel is closed when
	// the stream ends; cancellation of ctx closes the underlying body.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error)

	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// HealthCheck probes the backend. It never fails: transport errors
	// become HealthStatus{Healthy: false}.
	HealthCheck(ctx context.Context) *HealthStatus

	// ListModels returns backend model identifiers, best-effort. Backends
	// without a listing capability return an empty slice, not an error.
	ListModels(ctx context.Context) ([]string, error)

	// Name returns the provider's unique identifier.
	Name() string
}

// Collect drains a stream into a single CompletionResult. Chunks are
// concatenated in arrival order; the folded result reports zero Usage
// when the vendor never emitted one. A chunk error aborts collection and
// is returned as-is; ctx cancellation returns ctx.Err().
func Collect(ctx context.Context, ch <-chan StreamChunk) (*CompletionResult, error) {
	result := &CompletionResult{FinishReason: FinishStop}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return result, nil
			}
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			result.Text += chunk.Text
			if chunk.FinishReason != "" {
				result.FinishReason = chunk.FinishReason
			}
			if chunk.Usage != nil {
				result.Usage = *chunk.Usage
			}
		}
	}
}
