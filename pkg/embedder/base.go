// Package embedder implements the Embedding Service (component C2): text to
// fixed-length vector, token/cost estimation, and the pure similarity math
// the Retrieval Engine ranks candidates with.
package embedder

import (
	"context"
	"math"
	"time"
)

// Result is the outcome of a successful Embed call.
type Result struct {
	Vector     []float64
	Tokens     int
	DurationMs int64
}

// Provider converts text to vectors. All implementations (OpenAI, Qwen,
// ...) satisfy this interface.
type Provider interface {
	// Embed converts text into a vector embedding, failing with
	// core.KindInvalidArgument for empty input or core.KindProviderError on
	// transport failure.
	Embed(ctx context.Context, text string) (Result, error)

	// EmbedBatch embeds multiple texts in one round trip where the backend
	// supports it.
	EmbedBatch(ctx context.Context, texts []string) ([]Result, error)

	// Dimensions returns D, the fixed vector length this provider produces.
	Dimensions() int

	// EstimateTokens is a deterministic, no-network token estimate for text.
	EstimateTokens(text string) int

	// EstimateCost is a deterministic, no-network cost estimate for text,
	// in USD, given the provider's configured price per million tokens.
	EstimateCost(text string) float64

	Close() error
}

// CosineSimilarity computes (a·b)/(‖a‖·‖b‖), in [-1, 1]. Dimension mismatch
// or a zero-norm vector yields 0, never a panic or NaN.
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

// Scored pairs a candidate item with its similarity to a query vector.
type Scored[T any] struct {
	Similarity float64
	Item       T
}

// RankBySimilarity filters candidates by cosine similarity to query at or
// above threshold, sorts descending by similarity, and truncates to limit.
// limit <= 0 means unbounded.
func RankBySimilarity[T any](query []float64, candidates []T, embeddingOf func(T) []float64, threshold float64, limit int) []Scored[T] {
	scored := make([]Scored[T], 0, len(candidates))
	for _, c := range candidates {
		s := CosineSimilarity(query, embeddingOf(c))
		if s >= threshold {
			scored = append(scored, Scored[T]{Similarity: s, Item: c})
		}
	}
	// Insertion sort descending: candidate sets here are bounded by a
	// single user's memory count, not a shared-across-tenants corpus, so
	// O(n^2) stays cheap — the same trade the teacher's sqlite client makes
	// with its own bubble sort over per-user rows.
	for i := 1; i < len(scored); i++ {
		j := i
		for j > 0 && scored[j-1].Similarity < scored[j].Similarity {
			scored[j-1], scored[j] = scored[j], scored[j-1]
			j--
		}
	}
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// durationSince renders a start time as whole milliseconds elapsed.
func durationSince(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
