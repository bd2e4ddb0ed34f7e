// Package vllm adapts a self-hosted OpenAI-compatible inference server
// (vLLM, Ollama's OpenAI endpoint, llama.cpp server). Authentication is
// optional: local deployments typically run without API keys.
package vllm

import (
	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm/providers"
	"github.com/BaSui01/raggate/llm/providers/openaicompat"
)

// Provider is the local-inference adapter.
type Provider struct {
	*openaicompat.Provider
}

// New creates a vLLM provider. BaseURL defaults to the conventional local
// vLLM port when unset.
func New(cfg providers.VLLMConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	return &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:   "vllm",
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			DefaultModel:   cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        cfg.Timeout,
		}, logger),
	}
}
