// Package usage implements the Usage Ledger (component C3) and Cost
// Reporter (component C7): an append-only record of every billable
// embedding/LLM call and the aggregate summaries built from it. Grounded on
// the embedding-usage-repository pattern from the example corpus's
// developer-mesh project — Ledger.Record and Reporter.Summary here play the
// role its TrackUsage/GetUsageSummary do, with the per-model breakdown its
// GetUsageByModel gives carried in UsageAggregate.PerModel, adapted onto
// this service's per-user (rather than per-tenant) Store.
package usage

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/corvidlabs/memvault/pkg/core"
)

// Ledger appends UsageRecords to the Store and assigns their ids.
type Ledger struct {
	store core.Store
	node  *snowflake.Node
}

// New builds a Ledger backed by store, generating record ids from node.
func New(store core.Store, node *snowflake.Node) *Ledger {
	return &Ledger{store: store, node: node}
}

// Record appends a usage entry for a single provider call.
func (l *Ledger) Record(ctx context.Context, userID string, provider core.Provider, model string, tokens int, costUSD float64, operationType string) error {
	now := time.Now()
	rec := &core.UsageRecord{
		ID:            l.node.Generate().String(),
		UserID:        userID,
		Provider:      provider,
		Model:         model,
		Tokens:        tokens,
		CostUSD:       costUSD,
		OperationType: operationType,
		Date:          now.Format("2006-01-02"),
		Timestamp:     now,
	}
	if err := l.store.AppendUsageRecord(ctx, rec); err != nil {
		return core.NewMemoryError("recordUsage", err)
	}
	return nil
}
