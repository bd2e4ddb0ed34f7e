package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/raggate/llm"
)

func TestDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 9621, cfg.Server.Port)
	assert.Equal(t, 60, cfg.Server.RateLimitPerMinute)
	assert.Equal(t, 100, cfg.Server.MaxDocumentsPerRequest)
	assert.Equal(t, 1<<20, cfg.Server.MaxDocumentBytes)
	assert.Equal(t, "vllm", cfg.LLM.Provider)
	assert.Equal(t, 300*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 1200, cfg.Chunking.ChunkTokenSize)
	assert.Equal(t, 100, cfg.Chunking.ChunkOverlapTokenSize)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
}

func TestYAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
llm:
  provider: anthropic
  api_key: sk-test
  model: claude-sonnet-4-5
  fallbacks:
    - provider: vllm
      endpoint: http://backup:8000
      model: qwen2.5-14b-instruct
chunking:
  chunk_token_size: 800
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	require.Len(t, cfg.LLM.Fallbacks, 1)
	assert.Equal(t, "http://backup:8000", cfg.LLM.Fallbacks[0].Endpoint)
	assert.Equal(t, 800, cfg.Chunking.ChunkTokenSize)
	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Chunking.ChunkOverlapTokenSize)
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 9621, cfg.Server.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  provider: openai\n"), 0o600))

	t.Setenv("RAG_LLM_PROVIDER", "anthropic")
	t.Setenv("RAG_LLM_API_KEY", "sk-from-env")
	t.Setenv("RAG_LLM_TIMEOUT", "120s")
	t.Setenv("RAG_EMBEDDING_TIMEOUT", "45")
	t.Setenv("RAG_CHUNKING_CHUNK_TOKEN_SIZE", "600")
	t.Setenv("RAG_AUTH_API_KEYS", "key-a, key-b")
	t.Setenv("RAG_CACHE_ENABLED", "false")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	// Bare numbers are read as seconds.
	assert.Equal(t, 45*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 600, cfg.Chunking.ChunkTokenSize)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.Auth.APIKeys)
	assert.False(t, cfg.Cache.Enabled)
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bedrock" }},
		{"unknown fallback provider", func(c *Config) {
			c.LLM.Fallbacks = []FallbackConfig{{Provider: "cohere"}}
		}},
		{"overlap not below chunk size", func(c *Config) {
			c.Chunking.ChunkOverlapTokenSize = c.Chunking.ChunkTokenSize
		}},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			code := llm.CodeOf(err)
			assert.Contains(t, []llm.ErrorCode{llm.ErrInvalidConfiguration, llm.ErrUnsupportedProvider}, code)
		})
	}
}

func TestProviderConfigConversion(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = "sk-test"

	pc := cfg.ProviderConfig()
	assert.Equal(t, "anthropic", string(pc.Kind))
	assert.Equal(t, "sk-test", pc.APIKey)
	assert.Equal(t, cfg.LLM.Model, pc.Model)

	ec := cfg.EmbeddingProviderConfig()
	assert.Equal(t, cfg.Embedding.Model, ec.EmbeddingModel)
}
