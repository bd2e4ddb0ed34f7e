// Package openai adapts the cloud OpenAI chat completions API. It embeds
// the openaicompat base and overrides only headers (Organization support)
// and defaults.
package openai

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm/providers"
	"github.com/BaSui01/raggate/llm/providers/openaicompat"
)

// Provider is the cloud OpenAI adapter.
type Provider struct {
	*openaicompat.Provider
	cfg providers.OpenAIConfig
}

// New creates an OpenAI provider.
func New(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}

	p := &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:   "openai",
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			DefaultModel:   cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
			Timeout:        cfg.Timeout,
		}, logger),
		cfg: cfg,
	}

	p.SetBuildHeaders(func(req *http.Request, apiKey string) {
		req.Header.Set("Authorization", "Bearer "+apiKey)
		if cfg.Organization != "" {
			req.Header.Set("OpenAI-Organization", cfg.Organization)
		}
		req.Header.Set("Content-Type", "application/json")
	})

	return p
}
