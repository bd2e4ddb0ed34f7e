package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/llm/retry"
)

// fakeProvider returns scripted errors before succeeding.
type fakeProvider struct {
	name     string
	mu       sync.Mutex
	calls    int
	failures []error
	result   *llm.CompletionResult
	delay    time.Duration
}

func (f *fakeProvider) next(ctx context.Context) error {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if idx < len(f.failures) {
		return f.failures[idx]
	}
	return nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	if err := f.next(ctx); err != nil {
		return nil, err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &llm.CompletionResult{Text: "ok", Provider: f.name}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	if err := f.next(ctx); err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Text: "ok"}
	ch <- llm.StreamChunk{FinishReason: llm.FinishStop, Usage: &llm.Usage{}}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := f.next(ctx); err != nil {
		return nil, err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{float64(i)}
	}
	return out, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) *llm.HealthStatus {
	return &llm.HealthStatus{Healthy: true, CheckedAt: time.Now()}
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]string, error) {
	return []string{"fake-model"}, nil
}

func (f *fakeProvider) Name() string { return f.name }

func retryableErr(provider string) *llm.Error {
	return &llm.Error{
		Code:      llm.ErrProviderUnavailable,
		Message:   "backend down",
		Retryable: true,
		Provider:  provider,
	}
}

func fastPolicy(maxRetries int) *retry.Policy {
	return &retry.Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTest(p llm.Provider, opts ...Option) *Orchestrator {
	return New(p, Config{RetryPolicy: fastPolicy(2)}, zap.NewNop(), opts...)
}

func TestComplete_Success(t *testing.T) {
	p := &fakeProvider{name: "primary"}
	o := newTest(p)

	result, err := o.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, 1, p.callCount())
}

func TestComplete_RetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{
		name:     "primary",
		failures: []error{retryableErr("primary"), retryableErr("primary")},
	}
	o := newTest(p)

	result, err := o.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, 3, p.callCount())
}

func TestComplete_PermanentErrorNotRetried(t *testing.T) {
	authErr := &llm.Error{Code: llm.ErrUnauthorized, Message: "bad key", Provider: "primary"}
	p := &fakeProvider{name: "primary", failures: []error{authErr, authErr, authErr}}
	o := newTest(p)

	_, err := o.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, llm.ErrUnauthorized, llm.CodeOf(err))
	assert.Equal(t, 1, p.callCount())
}

func TestComplete_FallbackServesAfterPrimaryExhausted(t *testing.T) {
	down := retryableErr("primary")
	primary := &fakeProvider{name: "primary", failures: []error{down, down, down, down}}
	backup := &fakeProvider{name: "backup", result: &llm.CompletionResult{Text: "from backup"}}
	o := newTest(primary, WithFallbacks(backup))

	result, err := o.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from backup", result.Text)
	assert.Equal(t, 3, primary.callCount())
	assert.Equal(t, 1, backup.callCount())
}

func TestComplete_AllProvidersExhausted(t *testing.T) {
	down := retryableErr("primary")
	down2 := retryableErr("backup")
	primary := &fakeProvider{name: "primary", failures: []error{down, down, down, down}}
	backup := &fakeProvider{name: "backup", failures: []error{down2, down2, down2, down2}}
	o := newTest(primary, WithFallbacks(backup))

	_, err := o.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Len(t, exhausted.Failures, 2)
	assert.Contains(t, err.Error(), "primary")
	assert.Contains(t, err.Error(), "backup")
}

func TestComplete_AttemptTimeoutClassifiedRetryable(t *testing.T) {
	p := &fakeProvider{name: "slow", delay: 50 * time.Millisecond}
	o := New(p, Config{
		AttemptTimeout: 5 * time.Millisecond,
		RetryPolicy:    fastPolicy(0),
	}, zap.NewNop())

	_, err := o.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, llm.ErrProviderUnavailable, llm.CodeOf(err))
}

func TestComplete_CallerCancellationStopsChain(t *testing.T) {
	primary := &fakeProvider{name: "primary", delay: 50 * time.Millisecond}
	backup := &fakeProvider{name: "backup"}
	o := newTest(primary, WithFallbacks(backup))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := o.Complete(ctx, &llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, 0, backup.callCount())
}

func TestComplete_StreamRequestCollected(t *testing.T) {
	p := &fakeProvider{name: "primary"}
	o := newTest(p)

	result, err := o.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)
	assert.Equal(t, llm.FinishStop, result.FinishReason)
}

func TestEmbed_OrderPreserved(t *testing.T) {
	p := &fakeProvider{name: "primary", failures: []error{retryableErr("primary")}}
	o := newTest(p)

	vectors, err := o.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, []float64{float64(i)}, v)
	}
	assert.Equal(t, 2, p.callCount())
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]*llm.CompletionResult
}

func (m *memCache) Get(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[req.Prompt]
	return r, ok
}

func (m *memCache) Set(_ context.Context, req *llm.CompletionRequest, result *llm.CompletionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]*llm.CompletionResult{}
	}
	m.entries[req.Prompt] = result
}

func TestComplete_CacheHitSkipsProvider(t *testing.T) {
	p := &fakeProvider{name: "primary"}
	o := newTest(p, WithCache(&memCache{}))
	ctx := context.Background()
	req := &llm.CompletionRequest{Prompt: "hi"}

	first, err := o.Complete(ctx, req)
	require.NoError(t, err)

	second, err := o.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.callCount())
}

type countingObserver struct {
	mu      sync.Mutex
	calls   int
	retries int
}

func (c *countingObserver) ObserveProviderCall(_, _ string, _ time.Duration) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingObserver) ObserveRetry(string) {
	c.mu.Lock()
	c.retries++
	c.mu.Unlock()
}

func TestObserver_SeesCallsAndRetries(t *testing.T) {
	obs := &countingObserver{}
	p := &fakeProvider{name: "primary", failures: []error{retryableErr("primary")}}
	o := newTest(p, WithObserver(obs))

	_, err := o.Complete(context.Background(), &llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, 1, obs.retries)
}
