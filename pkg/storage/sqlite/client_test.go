package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/storage/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	c, err := sqlite.NewClient(&sqlite.Config{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCRUDIsScopedByUser(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	m := &core.Memory{
		ID: "mem-1", UserID: "user-a", Title: "t", Content: "likes espresso",
		Type: core.MemoryTypeMemory, Importance: core.ImportanceMedium,
		Tags: []string{"coffee"}, CreatedAt: now, UpdatedAt: now,
	}
	_, err := c.CreateMemory(ctx, m)
	require.NoError(t, err)

	got, err := c.GetMemoryByID(ctx, "user-a", "mem-1")
	require.NoError(t, err)
	assert.Equal(t, "likes espresso", got.Content)

	_, err = c.GetMemoryByID(ctx, "user-b", "mem-1")
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
}

func TestUpdateMemoryPatchAppliesOnlySetFields(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	m := &core.Memory{ID: "mem-2", UserID: "user-a", Content: "original", Type: core.MemoryTypeMemory, Importance: core.ImportanceLow, CreatedAt: now, UpdatedAt: now}
	_, err := c.CreateMemory(ctx, m)
	require.NoError(t, err)

	newContent := "updated"
	updated, err := c.UpdateMemory(ctx, "user-a", "mem-2", core.MemoryPatch{Content: &newContent})
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Content)
	assert.Equal(t, core.ImportanceLow, updated.Importance)
}

func TestGetMemoriesWithAndMissingEmbedding(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	withEmbedding := &core.Memory{ID: "mem-e1", UserID: "user-a", Content: "a", Type: core.MemoryTypeMemory, Embedding: []float64{0.1, 0.2}, CreatedAt: now, UpdatedAt: now}
	withoutEmbedding := &core.Memory{ID: "mem-e2", UserID: "user-a", Content: "b", Type: core.MemoryTypeMemory, CreatedAt: now, UpdatedAt: now}
	_, err := c.CreateMemory(ctx, withEmbedding)
	require.NoError(t, err)
	_, err = c.CreateMemory(ctx, withoutEmbedding)
	require.NoError(t, err)

	have, err := c.GetMemoriesWithEmbedding(ctx, "user-a", core.UnboundedLimit)
	require.NoError(t, err)
	require.Len(t, have, 1)
	assert.Equal(t, "mem-e1", have[0].ID)

	missing, err := c.GetMemoriesMissingEmbedding(ctx, "user-a", core.UnboundedLimit)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "mem-e2", missing[0].ID)
}

func TestEntityUpdateAndSearchByText(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e := &core.Entity{ID: "ent-1", UserID: "user-a", Name: "Grace Hopper", Type: core.EntityTypePerson, CreatedAt: now, UpdatedAt: now}
	_, err := c.CreateEntity(ctx, e)
	require.NoError(t, err)

	newTitle := "Rear Admiral"
	updated, err := c.UpdateEntity(ctx, "user-a", "ent-1", core.EntityPatch{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "Rear Admiral", updated.Title)

	found, err := c.SearchEntitiesByText(ctx, "user-a", "Hopper", core.UnboundedLimit)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ent-1", found[0].ID)
}

func TestAppendUsageRecordAndAggregate(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	today := time.Now().UTC().Format("2006-01-02")

	rec := &core.UsageRecord{ID: "u1", UserID: "user-a", Provider: core.ProviderEmbedding, Model: "text-embedding-3-small", Tokens: 100, CostUSD: 0.002, OperationType: "embed", Date: today, Timestamp: time.Now()}
	require.NoError(t, c.AppendUsageRecord(ctx, rec))

	agg, err := c.AggregateUsage(ctx, core.UsageFilter{UserID: "user-a", DateFrom: today, DateTo: today})
	require.NoError(t, err)
	assert.Equal(t, 100, agg.Total.Tokens)
	assert.InDelta(t, 0.002, agg.Total.CostUSD, 1e-9)
}
