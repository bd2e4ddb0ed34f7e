package providers

import "time"

// BaseConfig holds the fields common to every provider adapter. It is
// immutable once constructed; the factory owns the instance it builds
// each provider from.
type BaseConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig configures the cloud OpenAI adapter.
type OpenAIConfig struct {
	BaseConfig     `yaml:",inline"`
	Organization   string `json:"organization,omitempty" yaml:"organization,omitempty"`
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
}

// AnthropicConfig configures the Anthropic messages-API adapter.
type AnthropicConfig struct {
	BaseConfig       `yaml:",inline"`
	AnthropicVersion string `json:"anthropic_version,omitempty" yaml:"anthropic_version,omitempty"`
}

// VLLMConfig configures the local OpenAI-compatible inference adapter
// (vLLM, Ollama's OpenAI endpoint, llama.cpp server). No API key is
// required by default; one is sent when configured.
type VLLMConfig struct {
	BaseConfig     `yaml:",inline"`
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
}
