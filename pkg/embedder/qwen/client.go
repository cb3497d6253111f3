// Package qwen provides Qwen Embedder implementation using Alibaba Cloud DashScope Text Embedding API.
//
// Qwen Embedder converts text into vector embeddings for similarity search.
// This package implements the embedder.Provider interface.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/embedder"
)

// Client implements embedder.Provider using Alibaba Cloud DashScope Text Embedding API.
//
// It provides text-to-vector conversion capabilities using Qwen embedding models.
type Client struct {
	// client is the HTTP client for API requests.
	client *http.Client

	// apiKey is the DashScope API key.
	apiKey string

	// model is the Qwen embedding model name to use.
	model string

	// baseURL is the base URL for DashScope API.
	baseURL string

	// dimensions is the dimension of embedding vectors.
	dimensions int

	// pricePerMillionTokens is used by EstimateCost.
	pricePerMillionTokens float64
}

// Config contains configuration for creating a Qwen Embedder client.
type Config struct {
	// APIKey is the DashScope API key (required).
	APIKey string

	// Model is the model name to use (default: "text-embedding-v4").
	Model string

	// BaseURL is the API base URL (default: DashScope official address).
	BaseURL string

	// Dimensions is the vector dimension (default: 1536 for text-embedding-v4).
	Dimensions int

	// HTTPClient is a custom HTTP client (uses default if nil).
	HTTPClient *http.Client

	// PricePerMillionTokens is used by EstimateCost.
	PricePerMillionTokens float64
}

// NewClient creates a new Qwen Embedder client.
//
// Parameters:
//   - cfg: Qwen Embedder configuration containing APIKey, Model, BaseURL, Dimensions, etc.
//
// Returns:
//   - *Client: Qwen Embedder client instance
//   - error: Error if configuration is invalid (e.g., missing APIKey) or initialization fails
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v4"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536 // text-embedding-v4 default dimension
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		client:                client,
		apiKey:                cfg.APIKey,
		model:                 model,
		baseURL:               baseURL,
		dimensions:            dimensions,
		pricePerMillionTokens: cfg.PricePerMillionTokens,
	}, nil
}

// Embed converts a single text string into a vector embedding.
func (c *Client) Embed(ctx context.Context, text string) (embedder.Result, error) {
	if text == "" {
		return embedder.Result{}, core.NewKindError("Embed", core.KindInvalidArgument, core.ErrInvalidInput)
	}
	start := time.Now()
	vec, err := c.embedRaw(ctx, text)
	if err != nil {
		return embedder.Result{}, core.NewKindError("Embed", core.KindProviderError, err)
	}
	return embedder.Result{
		Vector:     vec,
		Tokens:     c.EstimateTokens(text),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// embedRaw performs the DashScope request/response cycle for a single text.
func (c *Client) embedRaw(ctx context.Context, text string) ([]float64, error) {
	// Build request
	reqBody := map[string]interface{}{
		"model": c.model,
		"input": map[string]interface{}{
			"texts": []string{text},
		},
	}

	// Add dimension parameter
	if c.dimensions > 0 {
		reqBody["parameters"] = map[string]interface{}{
			"dimension": c.dimensions,
		}
	}

	// Default to document type
	reqBody["text_type"] = "document"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Create HTTP request
	url := fmt.Sprintf("%s/services/embeddings/text-embedding/text-embedding", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	// Send request
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	// Parse response
	var response struct {
		Output struct {
			Embeddings []struct {
				Embedding []float64 `json:"embedding"`
			} `json:"embeddings"`
		} `json:"output"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(response.Output.Embeddings) == 0 {
		return nil, errors.New("embedding generation failed: no embeddings returned from Qwen API")
	}

	return response.Output.Embeddings[0].Embedding, nil
}

// EmbedBatch converts multiple text strings into vector embeddings in a single batch.
//
// This method is more efficient than calling Embed multiple times,
// as it can batch process requests.
//
// Parameters:
//   - ctx: Context for controlling request lifecycle
//   - texts: List of texts to embed
//
// Returns:
//   - []embedder.Result: One result (vector and token estimate) per text (order matches input texts)
//   - error: Error if embedding fails or number of results doesn't match input
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]embedder.Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()
	vecs, err := c.embedBatchRaw(ctx, texts)
	if err != nil {
		return nil, core.NewKindError("EmbedBatch", core.KindProviderError, err)
	}
	elapsed := time.Since(start).Milliseconds()
	results := make([]embedder.Result, len(texts))
	for i, v := range vecs {
		results[i] = embedder.Result{Vector: v, Tokens: c.EstimateTokens(texts[i]), DurationMs: elapsed}
	}
	return results, nil
}

// embedBatchRaw performs the DashScope request/response cycle for a batch of texts.
func (c *Client) embedBatchRaw(ctx context.Context, texts []string) ([][]float64, error) {
	// Build request
	reqBody := map[string]interface{}{
		"model": c.model,
		"input": map[string]interface{}{
			"texts": texts,
		},
	}

	// Add dimension parameter
	if c.dimensions > 0 {
		reqBody["parameters"] = map[string]interface{}{
			"dimension": c.dimensions,
		}
	}

	// Default to document type
	reqBody["text_type"] = "document"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Create HTTP request
	url := fmt.Sprintf("%s/services/embeddings/text-embedding/text-embedding", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	// Send request
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	// Parse response
	var response struct {
		Output struct {
			Embeddings []struct {
				Embedding []float64 `json:"embedding"`
			} `json:"embeddings"`
		} `json:"output"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(response.Output.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results from Qwen API (got %d, expected %d)", len(response.Output.Embeddings), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for i, emb := range response.Output.Embeddings {
		embeddings[i] = emb.Embedding
	}

	return embeddings, nil
}

// Dimensions returns the dimension of embedding vectors produced by this provider.
//
// Returns:
//   - int: Vector dimension number
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EstimateTokens approximates token count at ~4 characters per token.
func (c *Client) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateCost applies pricePerMillionTokens to the estimated token count.
func (c *Client) EstimateCost(text string) float64 {
	return float64(c.EstimateTokens(text)) * c.pricePerMillionTokens / 1_000_000
}

// Close closes the client connection.
//
// HTTP clients do not need explicit closing, this method is retained for interface compatibility.
//
// Returns:
//   - error: Always returns nil
func (c *Client) Close() error {
	return nil
}
