package usage_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/storage/sqlite"
	"github.com/corvidlabs/memvault/pkg/usage"
)

func newTestStore(t *testing.T) core.Store {
	t.Helper()
	c, err := sqlite.NewClient(&sqlite.Config{DBPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLedgerRecordAndReporterSummary(t *testing.T) {
	store := newTestStore(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledger := usage.New(store, node)
	reporter := usage.NewReporter(store)

	ctx := context.Background()
	require.NoError(t, ledger.Record(ctx, "user-a", core.ProviderEmbedding, "text-embedding-3-small", 100, 0.002, "embed"))
	require.NoError(t, ledger.Record(ctx, "user-a", core.ProviderEmbedding, "text-embedding-3-small", 50, 0.001, "embed"))
	require.NoError(t, ledger.Record(ctx, "user-b", core.ProviderEmbedding, "text-embedding-3-small", 999, 1, "embed"))

	today := time.Now().Format("2006-01-02")
	agg, err := reporter.Summary(ctx, "user-a", today, today, nil)
	require.NoError(t, err)
	assert.Equal(t, 150, agg.Total.Tokens)
	assert.InDelta(t, 0.003, agg.Total.CostUSD, 1e-9)
	assert.Equal(t, 2, agg.Total.RequestCount)
}

func TestReporterCurrentMonthAndDayScopeToUser(t *testing.T) {
	store := newTestStore(t)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	ledger := usage.New(store, node)
	reporter := usage.NewReporter(store)
	ctx := context.Background()

	require.NoError(t, ledger.Record(ctx, "user-a", core.ProviderEmbedding, "m", 10, 0.0001, "embed"))

	month, err := reporter.CurrentMonth(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 10, month.Total.Tokens)

	day, err := reporter.CurrentDay(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 10, day.Total.Tokens)

	other, err := reporter.CurrentDay(ctx, "user-c")
	require.NoError(t, err)
	assert.Equal(t, 0, other.Total.Tokens)
}
