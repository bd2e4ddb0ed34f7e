// Package cache provides a Redis-backed completion cache. Storage
// failures are logged and treated as misses so the cache can never make
// a request fail.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
)

const keyPrefix = "raggate:completion:"

// Config configures the completion cache.
type Config struct {
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{TTL: time.Hour}
}

type entry struct {
	Result    *llm.CompletionResult `json:"result"`
	CreatedAt time.Time             `json:"created_at"`
}

// CompletionCache caches completion results in Redis, keyed on the
// request fields that determine the response.
type CompletionCache struct {
	rdb    *redis.Client
	config *Config
	logger *zap.Logger
}

// New creates a completion cache.
func New(rdb *redis.Client, config *Config, logger *zap.Logger) *CompletionCache {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionCache{rdb: rdb, config: config, logger: logger}
}

// Get returns the cached result for req, or false on a miss. Redis
// errors and undecodable entries count as misses.
func (c *CompletionCache) Get(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, bool) {
	if !cacheable(req) {
		return nil, false
	}
	data, err := c.rdb.Get(ctx, keyPrefix+requestKey(req)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Result == nil {
		return nil, false
	}
	return e.Result, true
}

// Set stores a result for req. Errors are logged, never returned.
func (c *CompletionCache) Set(ctx context.Context, req *llm.CompletionRequest, result *llm.CompletionResult) {
	if !cacheable(req) || result == nil {
		return
	}
	data, err := json.Marshal(entry{Result: result, CreatedAt: time.Now()})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+requestKey(req), data, c.config.TTL).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err))
	}
}

// cacheable reports whether a request's response is deterministic enough
// to reuse. Sampled requests are not cached.
func cacheable(req *llm.CompletionRequest) bool {
	return req != nil && req.Temperature == 0
}

// requestKey hashes the response-determining request fields.
func requestKey(req *llm.CompletionRequest) string {
	data, _ := json.Marshal(struct {
		Model       string   `json:"model"`
		Prompt      string   `json:"prompt"`
		System      string   `json:"system"`
		MaxTokens   int      `json:"max_tokens"`
		Temperature float32  `json:"temperature"`
		Stop        []string `json:"stop"`
	}{
		Model:       req.Model,
		Prompt:      req.Prompt,
		System:      req.SystemPrompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}
