// Package embedding provides a client for OpenAI-compatible embedding APIs
// and cosine similarity over the returned vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"blogforge/internal/middleware"
	"blogforge/internal/models"
)

const (
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 30 * time.Second
)

// Embedder turns text into a vector. The API key is passed per call because
// each user brings their own key.
type Embedder interface {
	Embed(ctx context.Context, apiKey, text string) ([]float64, error)
}

// Client calls an OpenAI-compatible /embeddings endpoint.
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

// NewClient creates an embedding client for the given endpoint and model.
func NewClient(baseURL, model string, opts ...Option) *Client {
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

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, apiKey, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	body, err := json.Marshal(embedRequest{Input: text, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		middleware.UpstreamRequests.WithLabelValues("embedding", "error").Inc()
		return nil, models.NewUpstreamError("embedding", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		middleware.UpstreamRequests.WithLabelValues("embedding", "error").Inc()
		return nil, models.NewUpstreamError("embedding", resp.StatusCode, fmt.Errorf("%s", string(respBody)))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		middleware.UpstreamRequests.WithLabelValues("embedding", "error").Inc()
		return nil, models.NewUpstreamError("embedding", resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	if embedResp.Error != nil {
		middleware.UpstreamRequests.WithLabelValues("embedding", "error").Inc()
		return nil, models.NewUpstreamError("embedding", resp.StatusCode, fmt.Errorf("%s", embedResp.Error.Message))
	}

	if len(embedResp.Data) == 0 {
		middleware.UpstreamRequests.WithLabelValues("embedding", "error").Inc()
		return nil, models.NewUpstreamError("embedding", resp.StatusCode, fmt.Errorf("no embeddings returned"))
	}

	middleware.UpstreamRequests.WithLabelValues("embedding", "ok").Inc()
	return embedResp.Data[0].Embedding, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
