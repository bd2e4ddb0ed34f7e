// Package providers holds the wire types and error mapping shared by all
// backend adapters. Each adapter translates the common llm contract into
// its vendor's documented request/response JSON shape; everything that is
// identical across OpenAI-compatible vendors lives here.
package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/raggate/llm"
)

// MapHTTPError maps an HTTP status code to a classified llm.Error with the
// proper retryable flag. This is the single error-normalization point used
// by every provider.
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	switch status {
	case http.StatusUnauthorized:
		return &llm.Error{Code: llm.ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusForbidden:
		return &llm.Error{Code: llm.ErrForbidden, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusNotFound:
		// Vendors report unknown models as 404 on the completions path.
		return &llm.Error{Code: llm.ErrModelNotFound, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &llm.Error{Code: llm.ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") ||
			strings.Contains(msgLower, "credit") ||
			strings.Contains(msgLower, "billing") {
			return &llm.Error{Code: llm.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		if strings.Contains(msgLower, "model") &&
			(strings.Contains(msgLower, "not found") || strings.Contains(msgLower, "does not exist")) {
			return &llm.Error{Code: llm.ErrModelNotFound, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &llm.Error{Code: llm.ErrProviderUnavailable, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case 529: // overloaded, used by Anthropic
		return &llm.Error{Code: llm.ErrModelOverloaded, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &llm.Error{
			Code: llm.ErrProviderUnavailable, Message: msg, HTTPStatus: status,
			Retryable: status >= 500, Provider: provider,
		}
	}
}

// TransportError wraps a network-level failure (connection refused, DNS,
// client timeout) as a retryable unavailability error.
func TransportError(err error, provider string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrProviderUnavailable,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
		Cause:      err,
	}
}

// ReadErrorMessage extracts the error message from a vendor error body,
// falling back to the raw text when it is not the common JSON shape.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}

// ChooseModel selects the model by priority: request, configured default,
// provider fallback.
func ChooseModel(req *llm.CompletionRequest, configModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if configModel != "" {
		return configModel
	}
	return fallbackModel
}

// OpenAI-compatible wire types, shared by the local-inference and cloud
// chat adapters.

type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type OpenAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []OpenAICompatMessage `json:"messages"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Temperature float32               `json:"temperature,omitempty"`
	Stop        []string              `json:"stop,omitempty"`
	Stream      bool                  `json:"stream,omitempty"`
}

type OpenAICompatChoice struct {
	Index        int                  `json:"index"`
	FinishReason string               `json:"finish_reason"`
	Message      OpenAICompatMessage  `json:"message"`
	Delta        *OpenAICompatMessage `json:"delta,omitempty"`
}

type OpenAICompatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAICompatResponse struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []OpenAICompatChoice `json:"choices"`
	Usage   *OpenAICompatUsage   `json:"usage,omitempty"`
	Created int64                `json:"created,omitempty"`
}

type OpenAICompatEmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type OpenAICompatEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string             `json:"model"`
	Usage *OpenAICompatUsage `json:"usage,omitempty"`
}

type OpenAICompatModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// BuildMessages converts the unified request to the OpenAI message array,
// emitting the system prompt as a leading system-role message.
func BuildMessages(req *llm.CompletionRequest) []OpenAICompatMessage {
	msgs := make([]OpenAICompatMessage, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, OpenAICompatMessage{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, OpenAICompatMessage{Role: "user", Content: req.Prompt})
	return msgs
}

// ToCompletionResult converts an OpenAI-compatible response to the unified
// result type. Responses without choices yield an empty stop result.
func ToCompletionResult(resp OpenAICompatResponse, provider string) *llm.CompletionResult {
	result := &llm.CompletionResult{
		FinishReason: llm.FinishStop,
		Model:        resp.Model,
		Provider:     provider,
	}
	if len(resp.Choices) > 0 {
		result.Text = resp.Choices[0].Message.Content
		result.FinishReason = llm.NormalizeFinishReason(resp.Choices[0].FinishReason)
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result
}
