// Package config loads service configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence.
// Environment keys are the struct env tags joined with underscores under
// the RAG prefix, e.g. RAG_LLM_API_KEY.
package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/llm/factory"
	"github.com/BaSui01/raggate/rag"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	Chunking  ChunkingConfig  `yaml:"chunking" env:"CHUNKING"`
	Retry     RetryConfig     `yaml:"retry" env:"RETRY"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Auth      AuthConfig      `yaml:"auth" env:"AUTH"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// MaxDocumentsPerRequest bounds one insertion call's batch size.
	MaxDocumentsPerRequest int `yaml:"max_documents_per_request" env:"MAX_DOCUMENTS_PER_REQUEST"`
	// MaxDocumentBytes bounds one document's size. Zero disables the
	// check.
	MaxDocumentBytes int `yaml:"max_document_bytes" env:"MAX_DOCUMENT_BYTES"`
	// RateLimitPerMinute is the per-API-key request budget. Zero
	// disables rate limiting.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
}

// LLMConfig configures the completion provider chain.
type LLMConfig struct {
	// Provider is the backend kind: vllm, openai or anthropic.
	Provider string        `yaml:"provider" env:"PROVIDER"`
	Endpoint string        `yaml:"endpoint" env:"ENDPOINT"`
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	Model    string        `yaml:"model" env:"MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Fallbacks are tried in order after the primary provider's retry
	// budget is exhausted. Same shape as the primary.
	Fallbacks []FallbackConfig `yaml:"fallbacks" env:"-"`
}

// FallbackConfig is one fallback provider entry.
type FallbackConfig struct {
	Provider string        `yaml:"provider"`
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider string        `yaml:"provider" env:"PROVIDER"`
	Endpoint string        `yaml:"endpoint" env:"ENDPOINT"`
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	Model    string        `yaml:"model" env:"MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// MaxConcurrent bounds in-flight embedding calls during ingestion.
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	BatchSize     int `yaml:"batch_size" env:"BATCH_SIZE"`
}

// ChunkingConfig configures the token-window chunker.
type ChunkingConfig struct {
	ChunkTokenSize        int    `yaml:"chunk_token_size" env:"CHUNK_TOKEN_SIZE"`
	ChunkOverlapTokenSize int    `yaml:"chunk_overlap_token_size" env:"CHUNK_OVERLAP_TOKEN_SIZE"`
	Delimiter             string `yaml:"delimiter" env:"DELIMITER"`
}

// RetryConfig configures backoff for provider calls.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// CacheConfig configures the completion cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
}

// AuthConfig configures inbound API authentication.
type AuthConfig struct {
	// APIKeys are the accepted X-API-Key values. Empty disables auth.
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   9621,
			ReadTimeout:            30 * time.Second,
			WriteTimeout:           330 * time.Second,
			ShutdownTimeout:        15 * time.Second,
			MaxDocumentsPerRequest: 100,
			MaxDocumentBytes:       1 << 20,
			RateLimitPerMinute:     60,
		},
		LLM: LLMConfig{
			Provider: "vllm",
			Endpoint: "http://localhost:8000",
			Model:    "qwen2.5-14b-instruct",
			Timeout:  300 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:      "vllm",
			Endpoint:      "http://localhost:8000",
			Model:         "bge-m3",
			Timeout:       60 * time.Second,
			MaxConcurrent: 4,
			BatchSize:     16,
		},
		Chunking: ChunkingConfig{
			ChunkTokenSize:        1200,
			ChunkOverlapTokenSize: 100,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field constraints that would otherwise only
// fail at first use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &llm.Error{
			Code:    llm.ErrInvalidConfiguration,
			Message: fmt.Sprintf("server port %d out of range", c.Server.Port),
		}
	}
	if _, err := factory.ParseKind(c.LLM.Provider); err != nil {
		return err
	}
	if _, err := factory.ParseKind(c.Embedding.Provider); err != nil {
		return err
	}
	for _, fb := range c.LLM.Fallbacks {
		if _, err := factory.ParseKind(fb.Provider); err != nil {
			return err
		}
	}
	if err := c.ChunkingConfig().Validate(); err != nil {
		return err
	}
	if c.Retry.MaxRetries < 0 {
		return &llm.Error{
			Code:    llm.ErrInvalidConfiguration,
			Message: "retry max_retries must not be negative",
		}
	}
	return nil
}

// ChunkingConfig converts to the chunker's own config type.
func (c *Config) ChunkingConfig() rag.ChunkingConfig {
	return rag.ChunkingConfig{
		ChunkTokenSize:        c.Chunking.ChunkTokenSize,
		ChunkOverlapTokenSize: c.Chunking.ChunkOverlapTokenSize,
		Delimiter:             c.Chunking.Delimiter,
	}
}

// ProviderConfig converts the LLM section to a factory config.
func (c *Config) ProviderConfig() factory.ProviderConfig {
	return factory.ProviderConfig{
		Kind:    factory.Kind(c.LLM.Provider),
		APIKey:  c.LLM.APIKey,
		BaseURL: c.LLM.Endpoint,
		Model:   c.LLM.Model,
		Timeout: c.LLM.Timeout,
	}
}

// EmbeddingProviderConfig converts the embedding section to a factory
// config.
func (c *Config) EmbeddingProviderConfig() factory.ProviderConfig {
	return factory.ProviderConfig{
		Kind:           factory.Kind(c.Embedding.Provider),
		APIKey:         c.Embedding.APIKey,
		BaseURL:        c.Embedding.Endpoint,
		Model:          c.Embedding.Model,
		EmbeddingModel: c.Embedding.Model,
		Timeout:        c.Embedding.Timeout,
	}
}

// FallbackProviderConfigs converts the fallback entries.
func (c *Config) FallbackProviderConfigs() []factory.ProviderConfig {
	out := make([]factory.ProviderConfig, 0, len(c.LLM.Fallbacks))
	for _, fb := range c.LLM.Fallbacks {
		out = append(out, factory.ProviderConfig{
			Kind:    factory.Kind(fb.Provider),
			APIKey:  fb.APIKey,
			BaseURL: fb.Endpoint,
			Model:   fb.Model,
			Timeout: fb.Timeout,
		})
	}
	return out
}
