// Package backend provides an Ollama-compatible client for local inference.
// The same wire format is served by llama.cpp's server in Ollama mode.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quorum-ai/quorum/internal/errors"
)

// LocalConfig configures the local inference client.
type LocalConfig struct {
	BaseURL string // Default: http://localhost:11434
	Model   string // e.g. "qwen2.5:7b"
	Timeout time.Duration
}

// DefaultLocalConfig returns default configuration for a local backend.
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		BaseURL: "http://localhost:11434",
		Model:   "qwen2.5:7b",
		Timeout: 120 * time.Second,
	}
}

// LocalClient implements Adapter against an Ollama-compatible HTTP server.
type LocalClient struct {
	desc   Descriptor
	cfg    *LocalConfig
	client *http.Client
}

// NewLocalClient creates a local backend adapter.
func NewLocalClient(desc Descriptor, cfg *LocalConfig) *LocalClient {
	if cfg == nil {
		cfg = DefaultLocalConfig()
	}
	if cfg.Model == "" {
		cfg.Model = desc.ModelID
	}
	return &LocalClient{
		desc: desc,
		cfg:  cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Descriptor returns the backend identity.
func (c *LocalClient) Descriptor() Descriptor {
	return c.desc
}

// Invoke sends a prompt to the local server and returns the completion.
func (c *LocalClient) Invoke(ctx context.Context, prompt string, params Params) (*Invocation, error) {
	body := map[string]any{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
	}
	options := map[string]any{}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}
	if params.MaxOutputTokens > 0 {
		options["num_predict"] = params.MaxOutputTokens
	}
	if len(options) > 0 {
		body["options"] = options
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Invalid(c.desc.Name, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errors.Invalid(c.desc.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return nil, errors.Invalid(c.desc.Name, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	default:
		return nil, errors.Unavailable(c.desc.Name, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var out ollamaResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Unavailable(c.desc.Name, fmt.Errorf("parse response: %w", err))
	}

	tokensIn := out.PromptEvalCount
	if tokensIn == 0 {
		tokensIn = EstimateTokens(prompt)
	}
	tokensOut := out.EvalCount
	if tokensOut == 0 {
		tokensOut = EstimateTokens(out.Response)
	}

	return &Invocation{
		Text:      out.Response,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}, nil
}

type ollamaResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
