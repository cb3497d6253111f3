package core

import "context"

// tenantGuardedStore wraps a Store and enforces invariant I2: a missing or
// empty userID on a tenanted call fails with KindInvalidArgument instead of
// reaching the backend, where it would otherwise silently match zero rows
// (see Store's doc comment).
type tenantGuardedStore struct {
	Store
}

// NewTenantGuardedStore wraps store so every tenanted method rejects an
// empty userID before it reaches the backend. Methods that aren't scoped by
// an existing tenant's userID (CreateUser, GetUserByEmail, CreateIndex,
// Close) pass through unchanged.
func NewTenantGuardedStore(store Store) Store {
	return &tenantGuardedStore{Store: store}
}

func requireUserID(op, userID string) error {
	if userID == "" {
		return NewKindError(op, KindInvalidArgument, ErrInvalidInput)
	}
	return nil
}

func (s *tenantGuardedStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	if err := requireUserID("GetUserByID", id); err != nil {
		return nil, err
	}
	return s.Store.GetUserByID(ctx, id)
}

func (s *tenantGuardedStore) UpdateUser(ctx context.Context, id string, patch UserPatch) (*User, error) {
	if err := requireUserID("UpdateUser", id); err != nil {
		return nil, err
	}
	return s.Store.UpdateUser(ctx, id, patch)
}

func (s *tenantGuardedStore) CreateMemory(ctx context.Context, m *Memory) (*Memory, error) {
	if err := requireUserID("CreateMemory", m.UserID); err != nil {
		return nil, err
	}
	return s.Store.CreateMemory(ctx, m)
}

func (s *tenantGuardedStore) GetMemoryByID(ctx context.Context, userID, id string) (*Memory, error) {
	if err := requireUserID("GetMemoryByID", userID); err != nil {
		return nil, err
	}
	return s.Store.GetMemoryByID(ctx, userID, id)
}

func (s *tenantGuardedStore) UpdateMemory(ctx context.Context, userID, id string, patch MemoryPatch) (*Memory, error) {
	if err := requireUserID("UpdateMemory", userID); err != nil {
		return nil, err
	}
	return s.Store.UpdateMemory(ctx, userID, id, patch)
}

func (s *tenantGuardedStore) DeleteMemory(ctx context.Context, userID, id string) error {
	if err := requireUserID("DeleteMemory", userID); err != nil {
		return err
	}
	return s.Store.DeleteMemory(ctx, userID, id)
}

func (s *tenantGuardedStore) ListMemories(ctx context.Context, userID string, limit int) ([]*Memory, error) {
	if err := requireUserID("ListMemories", userID); err != nil {
		return nil, err
	}
	return s.Store.ListMemories(ctx, userID, limit)
}

func (s *tenantGuardedStore) SearchMemoriesLexical(ctx context.Context, userID, query string, limit int) ([]*Memory, error) {
	if err := requireUserID("SearchMemoriesLexical", userID); err != nil {
		return nil, err
	}
	return s.Store.SearchMemoriesLexical(ctx, userID, query, limit)
}

func (s *tenantGuardedStore) SearchMemoriesByMetadata(ctx context.Context, userID, field, value string, limit int) ([]*Memory, error) {
	if err := requireUserID("SearchMemoriesByMetadata", userID); err != nil {
		return nil, err
	}
	return s.Store.SearchMemoriesByMetadata(ctx, userID, field, value, limit)
}

func (s *tenantGuardedStore) GetMemoriesWithEmbedding(ctx context.Context, userID string, limit int) ([]*Memory, error) {
	if err := requireUserID("GetMemoriesWithEmbedding", userID); err != nil {
		return nil, err
	}
	return s.Store.GetMemoriesWithEmbedding(ctx, userID, limit)
}

func (s *tenantGuardedStore) GetMemoriesMissingEmbedding(ctx context.Context, userID string, limit int) ([]*Memory, error) {
	if err := requireUserID("GetMemoriesMissingEmbedding", userID); err != nil {
		return nil, err
	}
	return s.Store.GetMemoriesMissingEmbedding(ctx, userID, limit)
}

func (s *tenantGuardedStore) CreateEntity(ctx context.Context, e *Entity) (*Entity, error) {
	if err := requireUserID("CreateEntity", e.UserID); err != nil {
		return nil, err
	}
	return s.Store.CreateEntity(ctx, e)
}

func (s *tenantGuardedStore) GetEntityByID(ctx context.Context, userID, id string) (*Entity, error) {
	if err := requireUserID("GetEntityByID", userID); err != nil {
		return nil, err
	}
	return s.Store.GetEntityByID(ctx, userID, id)
}

func (s *tenantGuardedStore) UpdateEntity(ctx context.Context, userID, id string, patch EntityPatch) (*Entity, error) {
	if err := requireUserID("UpdateEntity", userID); err != nil {
		return nil, err
	}
	return s.Store.UpdateEntity(ctx, userID, id, patch)
}

func (s *tenantGuardedStore) DeleteEntity(ctx context.Context, userID, id string) error {
	if err := requireUserID("DeleteEntity", userID); err != nil {
		return err
	}
	return s.Store.DeleteEntity(ctx, userID, id)
}

func (s *tenantGuardedStore) ListEntities(ctx context.Context, userID string, limit int) ([]*Entity, error) {
	if err := requireUserID("ListEntities", userID); err != nil {
		return nil, err
	}
	return s.Store.ListEntities(ctx, userID, limit)
}

func (s *tenantGuardedStore) SearchEntitiesByText(ctx context.Context, userID, query string, limit int) ([]*Entity, error) {
	if err := requireUserID("SearchEntitiesByText", userID); err != nil {
		return nil, err
	}
	return s.Store.SearchEntitiesByText(ctx, userID, query, limit)
}

func (s *tenantGuardedStore) CreateInteraction(ctx context.Context, i *Interaction) (*Interaction, error) {
	if err := requireUserID("CreateInteraction", i.UserID); err != nil {
		return nil, err
	}
	return s.Store.CreateInteraction(ctx, i)
}

func (s *tenantGuardedStore) ListRecentInteractions(ctx context.Context, userID string, limit int) ([]*Interaction, error) {
	if err := requireUserID("ListRecentInteractions", userID); err != nil {
		return nil, err
	}
	return s.Store.ListRecentInteractions(ctx, userID, limit)
}

func (s *tenantGuardedStore) AppendUsageRecord(ctx context.Context, rec *UsageRecord) error {
	if err := requireUserID("AppendUsageRecord", rec.UserID); err != nil {
		return err
	}
	return s.Store.AppendUsageRecord(ctx, rec)
}

func (s *tenantGuardedStore) AggregateUsage(ctx context.Context, filter UsageFilter) (*UsageAggregate, error) {
	if err := requireUserID("AggregateUsage", filter.UserID); err != nil {
		return nil, err
	}
	return s.Store.AggregateUsage(ctx, filter)
}
