package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/memvault/pkg/core"
)

// recordingStore is a bare-bones core.Store that records whether it was
// reached, so tests can confirm tenantGuardedStore short-circuits before
// the backend ever sees an empty userID.
type recordingStore struct{ called bool }

func (s *recordingStore) CreateUser(ctx context.Context, u *core.User) (*core.User, error) {
	s.called = true
	return u, nil
}
func (s *recordingStore) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	s.called = true
	return &core.User{ID: id}, nil
}
func (s *recordingStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.called = true
	return &core.User{Email: email}, nil
}
func (s *recordingStore) UpdateUser(ctx context.Context, id string, patch core.UserPatch) (*core.User, error) {
	s.called = true
	return &core.User{ID: id}, nil
}
func (s *recordingStore) CreateMemory(ctx context.Context, m *core.Memory) (*core.Memory, error) {
	s.called = true
	return m, nil
}
func (s *recordingStore) GetMemoryByID(ctx context.Context, userID, id string) (*core.Memory, error) {
	s.called = true
	return &core.Memory{ID: id, UserID: userID}, nil
}
func (s *recordingStore) UpdateMemory(ctx context.Context, userID, id string, patch core.MemoryPatch) (*core.Memory, error) {
	s.called = true
	return &core.Memory{ID: id, UserID: userID}, nil
}
func (s *recordingStore) DeleteMemory(ctx context.Context, userID, id string) error {
	s.called = true
	return nil
}
func (s *recordingStore) ListMemories(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	s.called = true
	return nil, nil
}
func (s *recordingStore) SearchMemoriesLexical(ctx context.Context, userID, query string, limit int) ([]*core.Memory, error) {
	s.called = true
	return nil, nil
}
func (s *recordingStore) SearchMemoriesByMetadata(ctx context.Context, userID, field, value string, limit int) ([]*core.Memory, error) {
	s.called = true
	return nil, nil
}
func (s *recordingStore) GetMemoriesWithEmbedding(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	s.called = true
	return nil, nil
}
func (s *recordingStore) GetMemoriesMissingEmbedding(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	s.called = true
	return nil, nil
}
func (s *recordingStore) CreateEntity(ctx context.Context, e *core.Entity) (*core.Entity, error) {
	s.called = true
	return e, nil
}
func (s *recordingStore) GetEntityByID(ctx context.Context, userID, id string) (*core.Entity, error) {
	s.called = true
	return &core.Entity{ID: id, UserID: userID}, nil
}
func (s *recordingStore) UpdateEntity(ctx context.Context, userID, id string, patch core.EntityPatch) (*core.Entity, error) {
	s.called = true
	return &core.Entity{ID: id, UserID: userID}, nil
}
func (s *recordingStore) DeleteEntity(ctx context.Context, userID, id string) error {
	s.called = true
	return nil
}
func (s *recordingStore) ListEntities(ctx context.Context, userID string, limit int) ([]*core.Entity, error) {
	s.called = true
	return nil, nil
}
func (s *recordingStore) SearchEntitiesByText(ctx context.Context, userID, query string, limit int) ([]*core.Entity, error) {
	s.called = true
	return nil, nil
}
func (s *recordingStore) CreateInteraction(ctx context.Context, i *core.Interaction) (*core.Interaction, error) {
	s.called = true
	return i, nil
}
func (s *recordingStore) ListRecentInteractions(ctx context.Context, userID string, limit int) ([]*core.Interaction, error) {
	s.called = true
	return nil, nil
}
func (s *recordingStore) AppendUsageRecord(ctx context.Context, rec *core.UsageRecord) error {
	s.called = true
	return nil
}
func (s *recordingStore) AggregateUsage(ctx context.Context, filter core.UsageFilter) (*core.UsageAggregate, error) {
	s.called = true
	return &core.UsageAggregate{}, nil
}
func (s *recordingStore) CreateIndex(ctx context.Context, cfg *core.VectorIndexConfig) error {
	s.called = true
	return nil
}
func (s *recordingStore) Close() error { s.called = true; return nil }

func TestTenantGuardedStoreRejectsEmptyUserIDBeforeReachingBackend(t *testing.T) {
	backend := &recordingStore{}
	store := core.NewTenantGuardedStore(backend)

	_, err := store.GetMemoryByID(context.Background(), "", "m1")
	require.Error(t, err)
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(err))
	assert.False(t, backend.called, "the backend must never be reached with an empty userID")

	_, err = store.ListEntities(context.Background(), "", 10)
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(err))
	assert.False(t, backend.called)

	err = store.AppendUsageRecord(context.Background(), &core.UsageRecord{})
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(err))
	assert.False(t, backend.called)
}

func TestTenantGuardedStorePassesThroughWithUserID(t *testing.T) {
	backend := &recordingStore{}
	store := core.NewTenantGuardedStore(backend)

	_, err := store.GetMemoryByID(context.Background(), "user-1", "m1")
	require.NoError(t, err)
	assert.True(t, backend.called)
}

func TestTenantGuardedStoreLeavesUnscopedMethodsUnguarded(t *testing.T) {
	backend := &recordingStore{}
	store := core.NewTenantGuardedStore(backend)

	_, err := store.CreateUser(context.Background(), &core.User{})
	require.NoError(t, err)
	assert.True(t, backend.called)
}
