package providers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/raggate/llm"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid api key", llm.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, "access denied", llm.ErrForbidden, false},
		{"model 404", http.StatusNotFound, "no such model", llm.ErrModelNotFound, false},
		{"rate limited", http.StatusTooManyRequests, "slow down", llm.ErrRateLimited, true},
		{"quota wording", http.StatusBadRequest, "you exceeded your current quota", llm.ErrQuotaExceeded, false},
		{"billing wording", http.StatusBadRequest, "billing hard limit reached", llm.ErrQuotaExceeded, false},
		{"model wording", http.StatusBadRequest, "the model `gpt-9` does not exist", llm.ErrModelNotFound, false},
		{"plain bad request", http.StatusBadRequest, "messages is required", llm.ErrInvalidRequest, false},
		{"bad gateway", http.StatusBadGateway, "upstream error", llm.ErrProviderUnavailable, true},
		{"service unavailable", http.StatusServiceUnavailable, "maintenance", llm.ErrProviderUnavailable, true},
		{"gateway timeout", http.StatusGatewayTimeout, "timed out", llm.ErrProviderUnavailable, true},
		{"overloaded 529", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"unknown 5xx", http.StatusInsufficientStorage, "disk full", llm.ErrProviderUnavailable, true},
		{"unknown 4xx", http.StatusTeapot, "short and stout", llm.ErrProviderUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := MapHTTPError(tt.status, tt.msg, "vllm")
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, "vllm", e.Provider)
			assert.Equal(t, tt.msg, e.Message)
		})
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")
	e := TransportError(cause, "vllm")
	assert.Equal(t, llm.ErrProviderUnavailable, e.Code)
	assert.True(t, e.Retryable)
	assert.Equal(t, "vllm", e.Provider)
	assert.ErrorIs(t, e, cause)
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"openai shape with type",
			`{"error":{"message":"invalid key","type":"invalid_request_error"}}`,
			"invalid key (type: invalid_request_error)",
		},
		{
			"message only",
			`{"error":{"message":"overloaded"}}`,
			"overloaded",
		},
		{
			"non-json body passes through",
			"502 Bad Gateway",
			"502 Bad Gateway",
		},
		{
			"empty error object falls back to raw",
			`{"error":{}}`,
			`{"error":{}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadErrorMessage(strings.NewReader(tt.body)))
		})
	}
}

func TestChooseModel(t *testing.T) {
	req := &llm.CompletionRequest{Model: "from-request"}
	assert.Equal(t, "from-request", ChooseModel(req, "from-config", "fallback"))
	assert.Equal(t, "from-config", ChooseModel(&llm.CompletionRequest{}, "from-config", "fallback"))
	assert.Equal(t, "fallback", ChooseModel(nil, "", "fallback"))
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages(&llm.CompletionRequest{Prompt: "hi"})
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)

	msgs = BuildMessages(&llm.CompletionRequest{Prompt: "hi", SystemPrompt: "be brief"})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "be brief", msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "hi", msgs[1].Content)
}

func TestToCompletionResult(t *testing.T) {
	resp := OpenAICompatResponse{
		Model: "qwen2.5-14b-instruct",
		Choices: []OpenAICompatChoice{{
			FinishReason: "length",
			Message:      OpenAICompatMessage{Role: "assistant", Content: "partial answer"},
		}},
		Usage: &OpenAICompatUsage{PromptTokens: 10, CompletionTokens: 7, TotalTokens: 17},
	}
	result := ToCompletionResult(resp, "vllm")
	assert.Equal(t, "partial answer", result.Text)
	assert.Equal(t, llm.FinishLength, result.FinishReason)
	assert.Equal(t, 17, result.Usage.TotalTokens)
	assert.Equal(t, "vllm", result.Provider)

	empty := ToCompletionResult(OpenAICompatResponse{Model: "m"}, "vllm")
	assert.Equal(t, "", empty.Text)
	assert.Equal(t, llm.FinishStop, empty.FinishReason)
}
