// Package anthropic implements the Client interface for Anthropic. Chat goes
// through Anthropic's OpenAI-compatible endpoint; key validation uses the
// native models API, which also backs the model listing with a static
// fallback when it cannot be reached.
package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/openai"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// fallbackModels are served when the native models API is unreachable
var fallbackModels = []llm.Model{
	{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4"},
	{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku"},
	{ID: "claude-opus-4-20250514", Name: "Claude Opus 4"},
}

// Client implements the LLM client interface for Anthropic
type Client struct {
	*openai.Client

	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Anthropic client
func NewClient(config llm.ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}

	logging.LogDebugf("Initialized Anthropic client with URL: %s (model: %s)", config.BaseURL, config.Model)

	return &Client{
		Client:  openai.NewClient(config),
		baseURL: openai.NormalizeBaseURL(config.BaseURL),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// ListModels returns available models from the native models API, falling
// back to a static list when it cannot be reached.
func (c *Client) ListModels(ctx context.Context) ([]llm.Model, error) {
	models, err := c.listNativeModels(ctx)
	if err != nil {
		if ue, ok := llm.AsUpstreamError(err); ok && ue.StatusCode == http.StatusUnauthorized {
			return nil, err
		}
		logging.LogDebugf("Anthropic model listing failed, serving static list: %v", err)
		return fallbackModels, nil
	}
	return models, nil
}

// TestKey reports whether the configured credentials are accepted upstream
func (c *Client) TestKey(ctx context.Context) bool {
	_, err := c.listNativeModels(ctx)
	if err != nil {
		logging.LogDebugf("Anthropic API key test failed: %v", err)
		return false
	}
	return true
}

func (c *Client) listNativeModels(ctx context.Context) ([]llm.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(llm.ErrConnectionFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &llm.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var modelsResp struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}

	models := make([]llm.Model, len(modelsResp.Data))
	for i, m := range modelsResp.Data {
		models[i] = llm.Model{
			ID:   m.ID,
			Name: m.DisplayName,
		}
	}

	return models, nil
}
