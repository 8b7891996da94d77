// Package backend provides an OpenAI-compatible client for metered cloud
// backends (OpenRouter, Z.AI, and anything else speaking chat completions).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/quorum-ai/quorum/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // e.g. https://openrouter.ai/api/v1
	Timeout time.Duration

	// RequestsPerMinute throttles calls client-side so we back off before
	// the server does. 0 disables the limiter.
	RequestsPerMinute int

	// Retry controls wire-level retries for transient failures.
	Retry *errors.Policy
}

// DefaultOpenAIConfig returns default configuration.
func DefaultOpenAIConfig(apiKey string) *OpenAIConfig {
	return &OpenAIConfig{
		APIKey:            apiKey,
		BaseURL:           "https://openrouter.ai/api/v1",
		Timeout:           120 * time.Second,
		RequestsPerMinute: 60,
		Retry:             errors.DefaultPolicy(),
	}
}

// OpenAIClient implements Adapter against an OpenAI-compatible API.
type OpenAIClient struct {
	desc    Descriptor
	cfg     *OpenAIConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAIClient creates a remote backend adapter.
func NewOpenAIClient(desc Descriptor, cfg *OpenAIConfig) *OpenAIClient {
	if cfg == nil {
		cfg = DefaultOpenAIConfig("")
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute/6+1)
	}
	return &OpenAIClient{
		desc: desc,
		cfg:  cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
	}
}

// Descriptor returns the backend identity.
func (c *OpenAIClient) Descriptor() Descriptor {
	return c.desc
}

// Invoke sends a prompt to the backend and returns the completion.
func (c *OpenAIClient) Invoke(ctx context.Context, prompt string, params Params) (*Invocation, error) {
	if c.cfg.APIKey == "" {
		return nil, errors.New(errors.CodeBackendInvalidRequest,
			fmt.Sprintf("backend %s has no API key configured", c.desc.Name), errors.KindInvalid)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Unavailable(c.desc.Name, err)
		}
	}

	body := map[string]any{
		"model": c.desc.ModelID,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if params.Temperature > 0 {
		body["temperature"] = params.Temperature
	}
	if params.MaxOutputTokens > 0 {
		body["max_tokens"] = params.MaxOutputTokens
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Invalid(c.desc.Name, fmt.Errorf("marshal request: %w", err))
	}

	return errors.DoWithResult(ctx, c.cfg.Retry, func() (*Invocation, error) {
		return c.doRequest(ctx, jsonBody)
	})
}

// doRequest performs a single wire call and maps the HTTP status to an
// error kind the dispatcher understands.
func (c *OpenAIClient) doRequest(ctx context.Context, jsonBody []byte) (*Invocation, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errors.Invalid(c.desc.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Unavailable(c.desc.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Unavailable(c.desc.Name, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parse
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.RateLimited(c.desc.Name, parseRetryAfter(resp))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, errors.Invalid(c.desc.Name, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	default:
		return nil, errors.Unavailable(c.desc.Name, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Unavailable(c.desc.Name, fmt.Errorf("parse response: %w", err))
	}
	if len(out.Choices) == 0 {
		return nil, errors.Unavailable(c.desc.Name, fmt.Errorf("no choices in response"))
	}

	return &Invocation{
		Text:      out.Choices[0].Message.Content,
		TokensIn:  out.Usage.PromptTokens,
		TokensOut: out.Usage.CompletionTokens,
	}, nil
}

// parseRetryAfter reads the Retry-After header, defaulting to 10s.
func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 10 * time.Second
}

// ============================================================
// Chat Completions API Types
// ============================================================

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
