package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *CompletionCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, New(rdb, &Config{TTL: time.Minute}, zap.NewNop())
}

func sampleRequest() *llm.CompletionRequest {
	return &llm.CompletionRequest{
		Prompt:    "summarize this document",
		Model:     "gpt-4o-mini",
		MaxTokens: 256,
	}
}

func TestCompletionCache_SetAndGet(t *testing.T) {
	_, c := setupCache(t)
	ctx := context.Background()

	req := sampleRequest()
	want := &llm.CompletionResult{
		Text:         "a summary",
		FinishReason: llm.FinishStop,
		Usage:        llm.Usage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
		Model:        "gpt-4o-mini",
		Provider:     "openai",
	}

	c.Set(ctx, req, want)

	got, ok := c.Get(ctx, req)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCompletionCache_Miss(t *testing.T) {
	_, c := setupCache(t)

	got, ok := c.Get(context.Background(), sampleRequest())
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCompletionCache_KeyDependsOnRequestFields(t *testing.T) {
	_, c := setupCache(t)
	ctx := context.Background()

	req := sampleRequest()
	c.Set(ctx, req, &llm.CompletionResult{Text: "cached"})

	other := sampleRequest()
	other.Prompt = "a different prompt"
	_, ok := c.Get(ctx, other)
	assert.False(t, ok)

	other = sampleRequest()
	other.MaxTokens = 512
	_, ok = c.Get(ctx, other)
	assert.False(t, ok)
}

func TestCompletionCache_SampledRequestsNotCached(t *testing.T) {
	_, c := setupCache(t)
	ctx := context.Background()

	req := sampleRequest()
	req.Temperature = 0.7
	c.Set(ctx, req, &llm.CompletionResult{Text: "sampled"})

	_, ok := c.Get(ctx, req)
	assert.False(t, ok)
}

func TestCompletionCache_Expiry(t *testing.T) {
	mr, c := setupCache(t)
	ctx := context.Background()

	req := sampleRequest()
	c.Set(ctx, req, &llm.CompletionResult{Text: "cached"})

	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, req)
	assert.False(t, ok)
}

func TestCompletionCache_RedisFailureIsMiss(t *testing.T) {
	mr, c := setupCache(t)
	ctx := context.Background()

	req := sampleRequest()
	c.Set(ctx, req, &llm.CompletionResult{Text: "cached"})

	mr.Close()

	got, ok := c.Get(ctx, req)
	assert.False(t, ok)
	assert.Nil(t, got)
}
