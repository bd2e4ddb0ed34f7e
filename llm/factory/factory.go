// Package factory maps a configured provider kind to a concrete Provider
// instance. It imports all adapter sub-packages so the mapping lives in
// one place, breaking the import cycle that would occur if construction
// lived in the llm package directly.
//
// Construction is pure: no network call is made here. The first network
// activity happens on the first Complete/Embed/HealthCheck invocation.
package factory

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/llm/providers"
	"github.com/BaSui01/raggate/llm/providers/anthropic"
	"github.com/BaSui01/raggate/llm/providers/openai"
	"github.com/BaSui01/raggate/llm/providers/vllm"
)

// Kind enumerates the supported provider kinds.
type Kind string

const (
	KindVLLM      Kind = "vllm"      // local OpenAI-compatible inference server
	KindOpenAI    Kind = "openai"    // cloud chat completions API
	KindAnthropic Kind = "anthropic" // cloud messages API
)

// ProviderConfig is the generic configuration accepted by the factory.
type ProviderConfig struct {
	Kind           Kind          `json:"kind" yaml:"kind"`
	APIKey         string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL        string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model          string        `json:"model,omitempty" yaml:"model,omitempty"`
	EmbeddingModel string        `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	Organization   string        `json:"organization,omitempty" yaml:"organization,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// New constructs the Provider implementation matching cfg.Kind. Unknown
// kinds fail with an UNSUPPORTED_PROVIDER error.
func New(cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}

	switch cfg.Kind {
	case KindVLLM, "local", "ollama":
		return vllm.New(providers.VLLMConfig{
			BaseConfig:     base,
			EmbeddingModel: cfg.EmbeddingModel,
		}, logger), nil

	case KindOpenAI:
		return openai.New(providers.OpenAIConfig{
			BaseConfig:     base,
			Organization:   cfg.Organization,
			EmbeddingModel: cfg.EmbeddingModel,
		}, logger), nil

	case KindAnthropic, "claude":
		return anthropic.New(providers.AnthropicConfig{
			BaseConfig: base,
		}, logger), nil

	default:
		return nil, &llm.Error{
			Code:    llm.ErrUnsupportedProvider,
			Message: fmt.Sprintf("unknown provider kind %q (supported: %v)", cfg.Kind, SupportedKinds()),
		}
	}
}

// ParseKind normalizes a provider kind string, resolving accepted
// aliases to their canonical kind. Unknown values fail with an
// UNSUPPORTED_PROVIDER error.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindVLLM, "local", "ollama":
		return KindVLLM, nil
	case KindOpenAI:
		return KindOpenAI, nil
	case KindAnthropic, "claude":
		return KindAnthropic, nil
	default:
		return "", &llm.Error{
			Code:    llm.ErrUnsupportedProvider,
			Message: fmt.Sprintf("unknown provider kind %q (supported: %v)", s, SupportedKinds()),
		}
	}
}

// SupportedKinds returns the built-in provider kinds.
func SupportedKinds() []Kind {
	return []Kind{KindVLLM, KindOpenAI, KindAnthropic}
}

// NewRegistry builds a ProviderRegistry from a map of named configs,
// setting the default when specified. A config that fails construction
// aborts the whole build: a misconfigured provider is fatal at startup.
func NewRegistry(configs map[string]ProviderConfig, defaultName string, logger *zap.Logger) (*llm.ProviderRegistry, error) {
	reg := llm.NewProviderRegistry()
	for name, cfg := range configs {
		p, err := New(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		reg.Register(name, p)
	}
	if defaultName != "" {
		if err := reg.SetDefault(defaultName); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
