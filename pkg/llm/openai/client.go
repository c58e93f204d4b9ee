// Package openai implements the Client interface against the
// OpenAI-compatible chat-completions API. Custom providers that speak the
// same wire shape reuse this client unchanged.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/d4l-data4life/go-chat-gateway/pkg/llm"
	"github.com/d4l-data4life/go-chat-gateway/pkg/llm/sse"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
	streamReadBufSize  = 4096
)

// Client implements the LLM client interface for OpenAI-compatible providers
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a new OpenAI-compatible client
func NewClient(config llm.ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}

	baseURL := NormalizeBaseURL(config.BaseURL)

	logging.LogDebugf("Initialized OpenAI-compatible client with URL: %s (model: %s, timeout: %s)",
		baseURL, config.Model, config.Timeout)

	return &Client{
		baseURL: baseURL,
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// NormalizeBaseURL strips a trailing slash and appends the /v1 path segment
// when the stored base URL does not carry a versioned path yet.
func NormalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.Contains(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return baseURL
}

// Chat sends a chat request and returns the complete response
func (c *Client) Chat(ctx context.Context, request llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := c.postCompletion(ctx, request, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	var completion completionResponse
	if err := json.Unmarshal(respData, &completion); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	if len(completion.Choices) == 0 {
		return nil, llm.ErrEmptyResponse
	}

	response := &llm.ChatResponse{
		ID:    completion.ID,
		Model: completion.Model,
		Message: llm.Message{
			Role:    completion.Choices[0].Message.Role,
			Content: completion.Choices[0].Message.Content,
		},
		Usage: llm.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}

	logging.LogDebugf("Received chat response: model=%s content_len=%d",
		response.Model, len(response.Message.Content))

	return response, nil
}

// ChatStream sends a chat request and returns a channel for streaming responses.
// The returned error covers establishing the stream only; failures after the
// first byte arrive as an error chunk on the channel.
func (c *Client) ChatStream(ctx context.Context, request llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := c.postCompletion(ctx, request, true)
	if err != nil {
		return nil, err
	}

	chunkChan := make(chan llm.StreamChunk, 10)
	go c.streamResponse(resp.Body, request.Model, chunkChan)

	return chunkChan, nil
}

// postCompletion builds and sends the chat-completions request, returning the
// response with an open body. Non-2xx answers are drained and surfaced as an
// UpstreamError.
func (c *Client) postCompletion(ctx context.Context, request llm.ChatRequest, stream bool) (*http.Response, error) {
	if request.Model == "" {
		request.Model = c.model
	}
	if request.Temperature == nil {
		temp := defaultTemperature
		request.Temperature = &temp
	}
	if request.MaxTokens == nil {
		tokens := defaultMaxTokens
		request.MaxTokens = &tokens
	}
	request.Stream = stream

	reqData, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(llm.ErrRequestFailed, err.Error())
	}

	logging.LogDebugf("Sending chat request: model=%s messages=%d stream=%t",
		request.Model, len(request.Messages), stream)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(reqData))
	if err != nil {
		return nil, errors.Wrap(llm.ErrRequestFailed, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(llm.ErrConnectionFailed, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &llm.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp, nil
}

// streamResponse pumps the SSE body through the frame decoder into the
// channel. The channel is always closed, after a final Done chunk.
func (c *Client) streamResponse(body io.ReadCloser, model string, chunkChan chan<- llm.StreamChunk) {
	defer close(chunkChan)
	defer body.Close()

	decoder := sse.NewDecoder()
	buf := make([]byte, streamReadBufSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, delta := range decoder.Decode(buf[:n]) {
				chunkChan <- llm.StreamChunk{
					Model:   model,
					Content: delta,
				}
			}
			if decoder.Done() {
				logging.LogDebugf("Chat streaming complete")
				chunkChan <- llm.StreamChunk{Model: model, Done: true}
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				// Stream ended without the [DONE] sentinel, still a
				// natural end of output.
				logging.LogDebugf("Chat stream closed without DONE sentinel")
				chunkChan <- llm.StreamChunk{Model: model, Done: true}
				return
			}
			chunkChan <- llm.StreamChunk{
				Error: errors.Wrap(err, "error reading stream"),
				Done:  true,
			}
			return
		}
	}
}

// ListModels returns available models from the provider
func (c *Client) ListModels(ctx context.Context) ([]llm.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return nil, errors.Wrap(llm.ErrRequestFailed, err.Error())
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

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
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}

	models := make([]llm.Model, len(modelsResp.Data))
	for i, m := range modelsResp.Data {
		models[i] = llm.Model{
			ID:   m.ID,
			Name: m.ID,
		}
	}

	return models, nil
}

// TestKey reports whether the configured credentials are accepted upstream
func (c *Client) TestKey(ctx context.Context) bool {
	_, err := c.ListModels(ctx)
	if err != nil {
		logging.LogDebugf("API key test failed: %v", err)
		return false
	}
	return true
}

// Helper types for the OpenAI wire format

type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
