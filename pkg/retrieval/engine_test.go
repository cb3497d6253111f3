package retrieval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/embedder"
	"github.com/corvidlabs/memvault/pkg/retrieval"
	"github.com/corvidlabs/memvault/pkg/storage/sqlite"
)

// stubEmbedder returns a fixed vector regardless of input text, so tests
// control similarity purely through the stored embeddings.
type stubEmbedder struct {
	vector []float64
}

func (s stubEmbedder) Embed(ctx context.Context, text string) (embedder.Result, error) {
	return embedder.Result{Vector: s.vector}, nil
}
func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embedder.Result, error) {
	out := make([]embedder.Result, len(texts))
	for i := range texts {
		out[i] = embedder.Result{Vector: s.vector}
	}
	return out, nil
}
func (s stubEmbedder) Dimensions() int                  { return len(s.vector) }
func (s stubEmbedder) EstimateTokens(text string) int   { return len(text) }
func (s stubEmbedder) EstimateCost(text string) float64 { return 0 }
func (s stubEmbedder) Close() error                     { return nil }

func newTestStore(t *testing.T) core.Store {
	t.Helper()
	c, err := sqlite.NewClient(&sqlite.Config{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSearchRanksClosestVectorFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	close := &core.Memory{ID: "m-close", UserID: "u1", Content: "close match", Type: core.MemoryTypeMemory, Importance: core.ImportanceMedium, Embedding: []float64{1, 0}, CreatedAt: now, UpdatedAt: now}
	far := &core.Memory{ID: "m-far", UserID: "u1", Content: "far match", Type: core.MemoryTypeMemory, Importance: core.ImportanceMedium, Embedding: []float64{0, 1}, CreatedAt: now, UpdatedAt: now}
	_, err := store.CreateMemory(ctx, close)
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, far)
	require.NoError(t, err)

	eng := retrieval.New(store, stubEmbedder{vector: []float64{1, 0}})
	result, err := eng.Search(ctx, "u1", "query text", &core.SearchMemoriesOptions{Limit: 10, Strategy: core.StrategySimilarity})
	require.NoError(t, err)
	require.Len(t, result.Memories, 2)
	assert.Equal(t, "m-close", result.Memories[0].ID)
}

func TestSearchEmptyQueryReturnsRecencyOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := &core.Memory{ID: "m-old", UserID: "u1", Content: "old", Type: core.MemoryTypeMemory, CreatedAt: time.Now().Add(-time.Hour), UpdatedAt: time.Now().Add(-time.Hour)}
	newer := &core.Memory{ID: "m-new", UserID: "u1", Content: "new", Type: core.MemoryTypeMemory, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	_, err := store.CreateMemory(ctx, older)
	require.NoError(t, err)
	_, err = store.CreateMemory(ctx, newer)
	require.NoError(t, err)

	eng := retrieval.New(store, stubEmbedder{vector: []float64{1, 0}})
	result, err := eng.Search(ctx, "u1", "", &core.SearchMemoriesOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Memories, 2)
	assert.Equal(t, core.MethodText, result.Method)
	assert.Equal(t, "m-new", result.Memories[0].ID)
}

func TestSearchFieldValueQueryDispatchesToMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	m := &core.Memory{ID: "m-type", UserID: "u1", Content: "typed", Type: core.MemoryTypeProfessional, Metadata: map[string]interface{}{"project": "atlas"}, CreatedAt: now, UpdatedAt: now}
	_, err := store.CreateMemory(ctx, m)
	require.NoError(t, err)

	eng := retrieval.New(store, stubEmbedder{vector: []float64{1, 0}})
	result, err := eng.Search(ctx, "u1", "project:atlas", &core.SearchMemoriesOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, core.MethodMetadata, result.Method)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "m-type", result.Memories[0].ID)
}
