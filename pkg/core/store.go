package core

import (
	"context"
	"time"
)

// UnboundedLimit is passed to Store list/search methods that take a SQL
// LIMIT when a caller wants "all rows" — a literal 0 would produce LIMIT 0
// (zero rows) on every backend, so callers use this sentinel instead.
const UnboundedLimit = 1 << 30

// MemoryPatch carries only the fields to change on an UpdateMemory call.
// Nil pointers mean "leave unchanged". A non-nil Embedding with a nil slice
// inside it requests the embedding be cleared pending regeneration.
type MemoryPatch struct {
	Title      *string
	Content    *string
	Type       *MemoryType
	Importance *Importance
	Tags       *[]string
	EntityIDs  *[]string
	Metadata   map[string]interface{}
	Embedding  *[]float64
	IsArchived *bool
	ExpiresAt  **time.Time
}

// TouchesRegenerationFields reports whether this patch changes title,
// content, or tags — the fields whose change must invalidate and
// regenerate a memory's embedding (spec §4.4, property P6).
func (p MemoryPatch) TouchesRegenerationFields() bool {
	return p.Title != nil || p.Content != nil || p.Tags != nil
}

// UserPatch carries only the fields to change on an UpdateUser call.
type UserPatch struct {
	Name     *string
	Metadata map[string]interface{}
	IsActive *bool
}

// EntityPatch carries only the fields to change on an UpdateEntity call.
type EntityPatch struct {
	Name        *string
	Type        *EntityType
	Description *string
	Company     *string
	Title       *string
	Email       *string
	Phone       *string
	Website     *string
	Importance  *Importance
	Tags        *[]string
	Notes       *string
	Metadata    map[string]interface{}
}

// UsageFilter scopes an aggregation query over the Usage Ledger.
type UsageFilter struct {
	UserID   string
	DateFrom string // inclusive, YYYY-MM-DD
	DateTo   string // inclusive, YYYY-MM-DD
	Provider *Provider
}

// ProviderUsage is a tokens/cost/count rollup for one provider, or a grand total.
type ProviderUsage struct {
	Tokens       int
	CostUSD      float64
	RequestCount int
}

// ModelUsage is a tokens/cost/count rollup for one model.
type ModelUsage struct {
	Model        string
	Tokens       int
	CostUSD      float64
	RequestCount int
}

// UsageAggregate is the result of an AggregateUsage call.
type UsageAggregate struct {
	PerProvider map[Provider]ProviderUsage
	PerModel    map[string]ModelUsage
	Total       ProviderUsage
}

// Store is the persistence boundary (component C1) — the only component
// that knows the on-disk schema. All tenanted operations take userID as an
// explicit argument (never derived from ambient context) so every call site
// is forced to supply it — invariant I2. A missing/empty userID must fail
// with KindInvalidArgument, never silently scan all tenants.
//
// Backend implementations live under pkg/storage/{sqlite,postgres,mysqlstore}
// and import this package; this interface is defined here, rather than in
// pkg/storage, so that both core and the backends can depend on it without a
// import cycle.
type Store interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error)

	CreateMemory(ctx context.Context, m *Memory) (*Memory, error)
	GetMemoryByID(ctx context.Context, userID, id string) (*Memory, error)
	UpdateMemory(ctx context.Context, userID, id string, patch MemoryPatch) (*Memory, error)
	DeleteMemory(ctx context.Context, userID, id string) error
	ListMemories(ctx context.Context, userID string, limit int) ([]*Memory, error)
	SearchMemoriesLexical(ctx context.Context, userID, query string, limit int) ([]*Memory, error)
	SearchMemoriesByMetadata(ctx context.Context, userID, field, value string, limit int) ([]*Memory, error)
	GetMemoriesWithEmbedding(ctx context.Context, userID string, limit int) ([]*Memory, error)
	GetMemoriesMissingEmbedding(ctx context.Context, userID string, limit int) ([]*Memory, error)

	CreateEntity(ctx context.Context, e *Entity) (*Entity, error)
	GetEntityByID(ctx context.Context, userID, id string) (*Entity, error)
	UpdateEntity(ctx context.Context, userID, id string, patch EntityPatch) (*Entity, error)
	DeleteEntity(ctx context.Context, userID, id string) error
	ListEntities(ctx context.Context, userID string, limit int) ([]*Entity, error)
	SearchEntitiesByText(ctx context.Context, userID, query string, limit int) ([]*Entity, error)

	CreateInteraction(ctx context.Context, i *Interaction) (*Interaction, error)
	ListRecentInteractions(ctx context.Context, userID string, limit int) ([]*Interaction, error)

	AppendUsageRecord(ctx context.Context, rec *UsageRecord) error
	AggregateUsage(ctx context.Context, filter UsageFilter) (*UsageAggregate, error)

	CreateIndex(ctx context.Context, cfg *VectorIndexConfig) error
	Close() error
}
