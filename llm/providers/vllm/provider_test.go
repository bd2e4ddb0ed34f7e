package vllm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/raggate/llm/providers"
)

func TestNew_Defaults(t *testing.T) {
	p := New(providers.VLLMConfig{}, nil)
	assert.Equal(t, "vllm", p.Name())
	assert.Equal(t, "http://localhost:8000", p.Cfg.BaseURL)
}

func TestNew_ConfiguredBaseURLKept(t *testing.T) {
	p := New(providers.VLLMConfig{
		BaseConfig: providers.BaseConfig{
			BaseURL: "http://gpu-box:8000",
			Model:   "qwen2.5-14b-instruct",
		},
		EmbeddingModel: "bge-m3",
	}, nil)
	assert.Equal(t, "http://gpu-box:8000", p.Cfg.BaseURL)
	assert.Equal(t, "qwen2.5-14b-instruct", p.Cfg.DefaultModel)
	assert.Equal(t, "bge-m3", p.Cfg.EmbeddingModel)
}
