package embedder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/memvault/pkg/embedder"
)

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	assert.InDelta(t, 1.0, embedder.CosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	assert.Equal(t, 0.0, embedder.CosineSimilarity([]float64{1, 0}, []float64{0, 1}))
}

func TestCosineSimilarityDimensionMismatchReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, embedder.CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
}

func TestCosineSimilarityZeroVectorReturnsZeroNotNaN(t *testing.T) {
	got := embedder.CosineSimilarity([]float64{0, 0}, []float64{1, 1})
	assert.Equal(t, 0.0, got)
}

func TestRankBySimilarityFiltersSortsAndTruncates(t *testing.T) {
	type item struct {
		name string
		vec  []float64
	}
	candidates := []item{
		{"far", []float64{0, 1}},
		{"close", []float64{1, 0}},
		{"mid", []float64{0.7, 0.7}},
	}
	ranked := embedder.RankBySimilarity([]float64{1, 0}, candidates, func(i item) []float64 { return i.vec }, 0.5, 1)
	assert.Len(t, ranked, 1)
	assert.Equal(t, "close", ranked[0].Item.name)
}

func TestRankBySimilarityUnboundedLimit(t *testing.T) {
	type item struct{ vec []float64 }
	candidates := []item{{[]float64{1, 0}}, {[]float64{0.9, 0.1}}}
	ranked := embedder.RankBySimilarity([]float64{1, 0}, candidates, func(i item) []float64 { return i.vec }, 0, 0)
	assert.Len(t, ranked, 2)
	assert.GreaterOrEqual(t, ranked[0].Similarity, ranked[1].Similarity)
}
