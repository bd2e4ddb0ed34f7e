// Package anthropic adapts the Anthropic messages API. It differs from the
// OpenAI-compatible adapters in three ways that the base provider cannot
// absorb: authentication uses the x-api-key header, the system prompt is a
// top-level request field rather than a system-role message, and streaming
// uses event-framed SSE (message_start / content_block_delta / message_delta
// / message_stop) instead of bare data lines.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/internal/tlsutil"
	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/llm/providers"
)

const defaultAnthropicVersion = "2023-06-01"

// Provider is the Anthropic messages-API adapter.
type Provider struct {
	cfg    providers.AnthropicConfig
	client *http.Client
	logger *zap.Logger
}

// New creates an Anthropic provider.
func New(cfg providers.AnthropicConfig, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = defaultAnthropicVersion
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
		logger: logger,
	}
}

func (p *Provider) Name() string { return "anthropic" }

// Wire types for the messages API.

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"` // system prompt is top-level
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
	StopSeq     []string           `json:"stop_sequences,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      *anthropicUsage    `json:"usage,omitempty"`
}

type anthropicStreamEvent struct {
	Type    string             `json:"type"`
	Index   int                `json:"index,omitempty"`
	Delta   *anthropicDelta    `json:"delta,omitempty"`
	Message *anthropicResponse `json:"message,omitempty"`
	Usage   *anthropicUsage    `json:"usage,omitempty"`
}

type anthropicDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

type anthropicErrorResp struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", p.cfg.AnthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.cfg.BaseURL, "/"), path)
}

func (p *Provider) buildRequest(req *llm.CompletionRequest, stream bool) anthropicRequest {
	return anthropicRequest{
		Model: providers.ChooseModel(req, p.cfg.Model, "claude-3-5-sonnet-20241022"),
		Messages: []anthropicMessage{{
			Role:    "user",
			Content: []anthropicContent{{Type: "text", Text: req.Prompt}},
		}},
		System:      req.SystemPrompt,
		MaxTokens:   chooseMaxTokens(req),
		Temperature: req.Temperature,
		StopSeq:     req.Stop,
		Stream:      stream,
	}
}

// Complete performs a synchronous messages call.
func (p *Provider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	payload, err := json.Marshal(p.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		return nil, mapError(resp.StatusCode, msg, p.Name())
	}

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	return toCompletionResult(aResp, p.Name()), nil
}

// Stream performs a streaming messages call, translating Anthropic's
// event-framed SSE into the common chunk stream.
func (p *Provider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	payload, err := json.Marshal(p.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrMsg(resp.Body)
		return nil, mapError(resp.StatusCode, msg, p.Name())
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		sawUsage := false

		send := func(chunk llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- chunk:
				return true
			}
		}

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					send(llm.StreamChunk{Err: providers.TransportError(err, p.Name())})
					return
				}
				if !sawUsage {
					send(llm.StreamChunk{Usage: &llm.Usage{}})
				}
				return
			}
			line = strings.TrimSpace(line)
			// Anthropic SSE framing: "event: <type>" then "data: <json>".
			// The event type is repeated inside the JSON, so event lines
			// are skipped.
			if line == "" || strings.HasPrefix(line, "event:") {
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				send(llm.StreamChunk{Err: providers.TransportError(err, p.Name())})
				return
			}

			switch event.Type {
			case "content_block_delta":
				if event.Delta != nil && event.Delta.Type == "text_delta" {
					if !send(llm.StreamChunk{Text: event.Delta.Text}) {
						return
					}
				}

			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					if !send(llm.StreamChunk{FinishReason: llm.NormalizeFinishReason(event.Delta.StopReason)}) {
						return
					}
				}
				if event.Usage != nil {
					sawUsage = true
					usage := llm.Usage{
						PromptTokens:     event.Usage.InputTokens,
						CompletionTokens: event.Usage.OutputTokens,
						TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
					}
					if !send(llm.StreamChunk{Usage: &usage}) {
						return
					}
				}

			case "message_stop":
				if !sawUsage {
					send(llm.StreamChunk{Usage: &llm.Usage{}})
				}
				return
			}
		}
	}()
	return ch, nil
}

// Embed is unsupported: the messages API exposes no embeddings endpoint.
// Callers needing embeddings configure an OpenAI-compatible provider.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, &llm.Error{
		Code:       llm.ErrInvalidRequest,
		Message:    "anthropic does not expose an embeddings endpoint",
		HTTPStatus: http.StatusBadRequest,
		Provider:   p.Name(),
	}
}

// HealthCheck probes the models endpoint. Never fails.
func (p *Provider) HealthCheck(ctx context.Context) *llm.HealthStatus {
	start := time.Now()
	status := &llm.HealthStatus{CheckedAt: start}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	status.Latency = time.Since(start)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Detail = fmt.Sprintf("status=%d msg=%s", resp.StatusCode, readErrMsg(resp.Body))
		return status
	}
	status.Healthy = true
	return status
}

// ListModels returns the available model identifiers.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapError(resp.StatusCode, readErrMsg(resp.Body), p.Name())
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func toCompletionResult(aResp anthropicResponse, provider string) *llm.CompletionResult {
	result := &llm.CompletionResult{
		FinishReason: llm.NormalizeFinishReason(aResp.StopReason),
		Model:        aResp.Model,
		Provider:     provider,
	}
	for _, content := range aResp.Content {
		if content.Type == "text" {
			result.Text += content.Text
		}
	}
	if aResp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     aResp.Usage.InputTokens,
			CompletionTokens: aResp.Usage.OutputTokens,
			TotalTokens:      aResp.Usage.InputTokens + aResp.Usage.OutputTokens,
		}
	}
	return result
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp anthropicErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
	}
	return string(data)
}

// mapError maps Anthropic error statuses onto the common taxonomy. The
// vendor-specific cases are 529 (overloaded) and quota wording on 400;
// everything else follows the shared map.
func mapError(status int, msg, provider string) *llm.Error {
	switch status {
	case http.StatusBadRequest:
		if strings.Contains(msg, "credit") || strings.Contains(msg, "quota") {
			return &llm.Error{Code: llm.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusNotFound:
		return &llm.Error{Code: llm.ErrModelNotFound, Message: msg, HTTPStatus: status, Provider: provider}
	case 529:
		return &llm.Error{Code: llm.ErrModelOverloaded, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return providers.MapHTTPError(status, msg, provider)
	}
}

func chooseMaxTokens(req *llm.CompletionRequest) int {
	if req != nil && req.MaxTokens > 0 {
		return req.MaxTokens
	}
	// The messages API requires max_tokens.
	return 4096
}
