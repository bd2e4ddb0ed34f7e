// Package openaicompat implements the shared base for every provider that
// speaks the OpenAI chat-completions wire protocol. The local-inference
// and cloud OpenAI adapters embed this provider and override only what
// differs (name, base URL, default models, headers).
package openaicompat

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

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider.
	ProviderName string

	// APIKey authenticates requests. Empty suppresses the Authorization
	// header (local inference servers accept anonymous requests).
	APIKey string

	// BaseURL is the server root, e.g. "http://localhost:8000".
	BaseURL string

	// DefaultModel is used when the request names no model.
	DefaultModel string

	// EmbeddingModel is the model used for Embed calls. Defaults to
	// DefaultModel when empty.
	EmbeddingModel string

	// Timeout bounds every network call. Defaults to 30s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions path. Defaults to "/v1/chat/completions".
	EndpointPath string

	// EmbeddingsPath is the embeddings path. Defaults to "/v1/embeddings".
	EmbeddingsPath string

	// ModelsPath is the model listing path. Defaults to "/v1/models".
	ModelsPath string

	// BuildHeaders optionally sets custom headers on each request. When
	// nil, "Authorization: Bearer <apiKey>" is sent if APIKey is set.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider is the base implementation for OpenAI-compatible backends.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates an OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.EmbeddingsPath == "" {
		cfg.EmbeddingsPath = "/v1/embeddings"
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = "/v1/models"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = cfg.DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(timeout),
		Logger: logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// SetBuildHeaders sets a custom header builder.
func (p *Provider) SetBuildHeaders(fn func(req *http.Request, apiKey string)) {
	p.Cfg.BuildHeaders = fn
}

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, p.Cfg.APIKey)
		return
	}
	if p.Cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.Cfg.BaseURL, "/"), path)
}

// Complete performs a non-streaming chat completion.
func (p *Provider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	body := providers.OpenAICompatRequest{
		Model:       providers.ChooseModel(req, p.Cfg.DefaultModel, p.Cfg.DefaultModel),
		Messages:    providers.BuildMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	return providers.ToCompletionResult(oaResp, p.Name()), nil
}

// Stream performs a streaming chat completion over SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	body := providers.OpenAICompatRequest{
		Model:       providers.ChooseModel(req, p.Cfg.DefaultModel, p.Cfg.DefaultModel),
		Messages:    providers.BuildMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		Stream:      true,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	return StreamSSE(ctx, resp.Body, p.Name()), nil
}

// StreamSSE parses an OpenAI-compatible SSE body into a chunk channel.
// The goroutine owns body and closes it on exit, so caller cancellation
// aborts the underlying stream promptly.
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		sawUsage := false
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					select {
					case <-ctx.Done():
					case ch <- llm.StreamChunk{Err: providers.TransportError(err, providerName)}:
					}
					return
				}
				if !sawUsage {
					// Vendors that omit usage on stream end still report an
					// explicit zero value.
					select {
					case <-ctx.Done():
					case ch <- llm.StreamChunk{Usage: &llm.Usage{}}:
					}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				if !sawUsage {
					select {
					case <-ctx.Done():
					case ch <- llm.StreamChunk{Usage: &llm.Usage{}}:
					}
				}
				return
			}

			var oaResp providers.OpenAICompatResponse
			if err := json.Unmarshal([]byte(data), &oaResp); err != nil {
				select {
				case <-ctx.Done():
				case ch <- llm.StreamChunk{Err: providers.TransportError(err, providerName)}:
				}
				return
			}

			if oaResp.Usage != nil {
				sawUsage = true
				usage := llm.Usage{
					PromptTokens:     oaResp.Usage.PromptTokens,
					CompletionTokens: oaResp.Usage.CompletionTokens,
					TotalTokens:      oaResp.Usage.TotalTokens,
				}
				select {
				case <-ctx.Done():
					return
				case ch <- llm.StreamChunk{Usage: &usage}:
				}
			}

			for _, choice := range oaResp.Choices {
				chunk := llm.StreamChunk{}
				if choice.Delta != nil {
					chunk.Text = choice.Delta.Content
				}
				if choice.FinishReason != "" {
					chunk.FinishReason = llm.NormalizeFinishReason(choice.FinishReason)
				}
				if chunk.Text == "" && chunk.FinishReason == "" {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
		}
	}()
	return ch
}

// Embed returns one vector per input text via the embeddings endpoint.
// The response is re-ordered by index so results always match input order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, llm.NewError(llm.ErrEmptyInput, "no texts to embed")
	}

	body := providers.OpenAICompatEmbeddingRequest{
		Input: texts,
		Model: p.Cfg.EmbeddingModel,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EmbeddingsPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var embResp providers.OpenAICompatEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, providers.TransportError(err, p.Name())
	}

	vectors := make([][]float64, len(texts))
	for _, d := range embResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, providers.TransportError(
				fmt.Errorf("embedding index %d out of range for %d inputs", d.Index, len(texts)), p.Name())
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, providers.TransportError(
				fmt.Errorf("no embedding returned for input %d", i), p.Name())
		}
	}
	return vectors, nil
}

// HealthCheck probes the models endpoint. It never fails: any transport
// or status error is folded into an unhealthy status with detail.
func (p *Provider) HealthCheck(ctx context.Context) *llm.HealthStatus {
	start := time.Now()
	status := &llm.HealthStatus{CheckedAt: start}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsPath), nil)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	status.Latency = time.Since(start)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Detail = fmt.Sprintf("status=%d msg=%s", resp.StatusCode, providers.ReadErrorMessage(resp.Body))
		return status
	}
	status.Healthy = true
	return status
}

// ListModels returns the backend's model identifiers.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var list providers.OpenAICompatModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return models, nil
}
