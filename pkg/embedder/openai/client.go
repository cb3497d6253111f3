// Package openai implements the embedder.Provider interface against the
// OpenAI Embeddings API.
package openai

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/embedder"
)

// Client is an OpenAI embedding client implementing embedder.Provider.
type Client struct {
	client               *openai.Client
	model                openai.EmbeddingModel
	dimensions           int
	pricePerMillionTokens float64
}

// Config configures an OpenAI embedder client.
type Config struct {
	APIKey                string
	Model                 string
	BaseURL               string
	Dimensions            int
	PricePerMillionTokens float64
}

// NewClient builds an embedder.Provider backed by OpenAI. Defaults to the
// Ada v2 embedding model and its 1536-dimension output when unconfigured.
func NewClient(cfg *Config) (*Client, error) {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	model := openai.AdaEmbeddingV2
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}

	return &Client{
		client:               openai.NewClientWithConfig(config),
		model:                model,
		dimensions:           dimensions,
		pricePerMillionTokens: cfg.PricePerMillionTokens,
	}, nil
}

// Embed converts text into a vector, retrying transient provider failures
// with exponential backoff (spec §5 timeouts/retries).
func (c *Client) Embed(ctx context.Context, text string) (embedder.Result, error) {
	if text == "" {
		return embedder.Result{}, core.NewKindError("Embed", core.KindInvalidArgument, core.ErrInvalidInput)
	}

	start := time.Now()
	var vec64 []float64
	op := func() error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: c.model,
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 {
			return core.ErrEmbeddingFailed
		}
		vec64 = toFloat64(resp.Data[0].Embedding)
		return nil
	}

	boff := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(boff, ctx)); err != nil {
		return embedder.Result{}, core.NewKindError("Embed", core.KindProviderError, err)
	}

	return embedder.Result{
		Vector:     vec64,
		Tokens:     c.EstimateTokens(text),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// EmbedBatch embeds multiple texts in a single request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]embedder.Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, core.NewKindError("EmbedBatch", core.KindProviderError, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, core.NewKindError("EmbedBatch", core.KindProviderError, core.ErrEmbeddingFailed)
	}

	elapsed := time.Since(start).Milliseconds()
	results := make([]embedder.Result, len(texts))
	for i, data := range resp.Data {
		results[i] = embedder.Result{
			Vector:     toFloat64(data.Embedding),
			Tokens:     c.EstimateTokens(texts[i]),
			DurationMs: elapsed,
		}
	}
	return results, nil
}

// Dimensions returns D.
func (c *Client) Dimensions() int { return c.dimensions }

// EstimateTokens approximates token count at ~4 characters per token, the
// same rough heuristic used when a real tokenizer isn't loaded.
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

// Close is a no-op; the OpenAI SDK client needs no explicit teardown.
func (c *Client) Close() error { return nil }

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
