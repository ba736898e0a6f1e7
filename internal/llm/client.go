// Package llm provides a client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"blogforge/internal/middleware"
	"blogforge/internal/models"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second
)

// Message is a single chat turn sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces a chat completion for the given messages. The API key
// is passed per call because each user brings their own key.
type Completer interface {
	Complete(ctx context.Context, apiKey string, messages []Message) (string, error)
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a completion client for the given endpoint and model.
func NewClient(baseURL, model string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		model:      model,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends the messages and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, apiKey string, messages []Message) (string, error) {
	reqBody := chatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		middleware.UpstreamRequests.WithLabelValues("completion", "error").Inc()
		return "", models.NewUpstreamError("completion", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		middleware.UpstreamRequests.WithLabelValues("completion", "error").Inc()
		return "", models.NewUpstreamError("completion", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		middleware.UpstreamRequests.WithLabelValues("completion", "error").Inc()
		return "", models.NewUpstreamError("completion", resp.StatusCode, fmt.Errorf("%s", string(body)))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		middleware.UpstreamRequests.WithLabelValues("completion", "error").Inc()
		return "", models.NewUpstreamError("completion", resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	if chatResp.Error != nil {
		middleware.UpstreamRequests.WithLabelValues("completion", "error").Inc()
		return "", models.NewUpstreamError("completion", resp.StatusCode, fmt.Errorf("%s", chatResp.Error.Message))
	}

	if len(chatResp.Choices) == 0 {
		middleware.UpstreamRequests.WithLabelValues("completion", "error").Inc()
		return "", models.NewUpstreamError("completion", resp.StatusCode, fmt.Errorf("no response choices returned"))
	}

	middleware.UpstreamRequests.WithLabelValues("completion", "ok").Inc()
	return chatResp.Choices[0].Message.Content, nil
}

// Model returns the configured completion model name.
func (c *Client) Model() string {
	return c.model
}
