package usage

import (
	"context"
	"time"

	"github.com/corvidlabs/memvault/pkg/core"
)

// Reporter builds cost/usage summaries from the ledger (component C7).
type Reporter struct {
	store core.Store
}

// NewReporter builds a Reporter over store.
func NewReporter(store core.Store) *Reporter {
	return &Reporter{store: store}
}

// Summary reports a user's usage between [from, to], inclusive, bucketed
// YYYY-MM-DD, optionally scoped to one provider.
func (r *Reporter) Summary(ctx context.Context, userID, from, to string, provider *core.Provider) (*core.UsageAggregate, error) {
	agg, err := r.store.AggregateUsage(ctx, core.UsageFilter{
		UserID:   userID,
		DateFrom: from,
		DateTo:   to,
		Provider: provider,
	})
	if err != nil {
		return nil, core.NewMemoryError("getUsageSummary", err)
	}
	return agg, nil
}

// CurrentMonth reports usage since the first of the current calendar month.
func (r *Reporter) CurrentMonth(ctx context.Context, userID string) (*core.UsageAggregate, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return r.Summary(ctx, userID, start.Format("2006-01-02"), now.Format("2006-01-02"), nil)
}

// CurrentDay reports usage for the current calendar day.
func (r *Reporter) CurrentDay(ctx context.Context, userID string) (*core.UsageAggregate, error) {
	today := time.Now().Format("2006-01-02")
	return r.Summary(ctx, userID, today, today, nil)
}
