// Package gemini implements the Client interface for Google Gemini. Chat
// goes through Google's OpenAI-compatible endpoint; model listing and key
// validation use the native Generative Language API.
package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/openai"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	defaultNativeBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	compatPathSuffix     = "/openai"
)

// Client implements the LLM client interface for Google Gemini
type Client struct {
	*openai.Client

	nativeBaseURL string
	apiKey        string
	httpClient    *http.Client
}

// NewClient creates a new Gemini client
func NewClient(config llm.ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultNativeBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}

	nativeBaseURL := strings.TrimRight(strings.TrimSuffix(strings.TrimRight(config.BaseURL, "/"), compatPathSuffix), "/")

	compatConfig := config
	compatConfig.BaseURL = nativeBaseURL + compatPathSuffix

	logging.LogDebugf("Initialized Gemini client with URL: %s (model: %s)", nativeBaseURL, config.Model)

	return &Client{
		Client:        openai.NewClient(compatConfig),
		nativeBaseURL: nativeBaseURL,
		apiKey:        config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// ListModels returns available models from the Generative Language API,
// filtered to models supporting content generation.
func (c *Client) ListModels(ctx context.Context) ([]llm.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.nativeBaseURL+"/models", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

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
		Models []struct {
			Name                       string   `json:"name"`
			DisplayName                string   `json:"displayName"`
			Description                string   `json:"description"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}

	var models []llm.Model
	for _, m := range modelsResp.Models {
		if !supportsGeneration(m.SupportedGenerationMethods) {
			continue
		}
		models = append(models, llm.Model{
			ID:          strings.TrimPrefix(m.Name, "models/"),
			Name:        m.DisplayName,
			Description: m.Description,
		})
	}

	return models, nil
}

// TestKey reports whether the configured credentials are accepted upstream
func (c *Client) TestKey(ctx context.Context) bool {
	_, err := c.ListModels(ctx)
	if err != nil {
		logging.LogDebugf("Gemini API key test failed: %v", err)
		return false
	}
	return true
}

func supportsGeneration(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}
