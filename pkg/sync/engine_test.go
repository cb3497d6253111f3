package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/llm"
)

// fakeLLM always reports a duplicate at a fixed confidence, for exercising
// phase 4's auto-merge path without a real provider.
type fakeLLM struct{ confidence int }

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return "", nil
}
func (f *fakeLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return fmt.Sprintf(`{"confidence": %d, "reasoning": "same person", "isDuplicate": true}`, f.confidence), nil
}
func (f *fakeLLM) Close() error { return nil }

// fakeStore is a minimal core.Store covering only what Engine touches;
// every other method is unused by these tests and returns zero values.
type fakeStore struct {
	users    map[string]*core.User
	entities map[string]*core.Entity
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*core.User{}, entities: map[string]*core.Entity{}}
}

func (s *fakeStore) CreateUser(ctx context.Context, u *core.User) (*core.User, error) { return u, nil }
func (s *fakeStore) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return &core.User{ID: id}, nil
}
func (s *fakeStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return nil, core.NewKindError("GetUserByEmail", core.KindNotFound, core.ErrNotFound)
}
func (s *fakeStore) UpdateUser(ctx context.Context, id string, patch core.UserPatch) (*core.User, error) {
	u := s.users[id]
	if u == nil {
		u = &core.User{ID: id}
	}
	if patch.Metadata != nil {
		u.Metadata = patch.Metadata
	}
	s.users[id] = u
	return u, nil
}

func (s *fakeStore) CreateMemory(ctx context.Context, m *core.Memory) (*core.Memory, error) { return m, nil }
func (s *fakeStore) GetMemoryByID(ctx context.Context, userID, id string) (*core.Memory, error) {
	return nil, core.NewKindError("GetMemoryByID", core.KindNotFound, core.ErrNotFound)
}
func (s *fakeStore) UpdateMemory(ctx context.Context, userID, id string, patch core.MemoryPatch) (*core.Memory, error) {
	return nil, nil
}
func (s *fakeStore) DeleteMemory(ctx context.Context, userID, id string) error { return nil }
func (s *fakeStore) ListMemories(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	return nil, nil
}
func (s *fakeStore) SearchMemoriesLexical(ctx context.Context, userID, query string, limit int) ([]*core.Memory, error) {
	return nil, nil
}
func (s *fakeStore) SearchMemoriesByMetadata(ctx context.Context, userID, field, value string, limit int) ([]*core.Memory, error) {
	return nil, nil
}
func (s *fakeStore) GetMemoriesWithEmbedding(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	return nil, nil
}
func (s *fakeStore) GetMemoriesMissingEmbedding(ctx context.Context, userID string, limit int) ([]*core.Memory, error) {
	return nil, nil
}

func (s *fakeStore) CreateEntity(ctx context.Context, e *core.Entity) (*core.Entity, error) {
	s.nextID++
	e.ID = "generated-" + string(rune('a'+s.nextID))
	s.entities[e.ID] = e
	return e, nil
}
func (s *fakeStore) GetEntityByID(ctx context.Context, userID, id string) (*core.Entity, error) {
	if e, ok := s.entities[id]; ok {
		return e, nil
	}
	return nil, core.NewKindError("GetEntityByID", core.KindNotFound, core.ErrNotFound)
}
func (s *fakeStore) UpdateEntity(ctx context.Context, userID, id string, patch core.EntityPatch) (*core.Entity, error) {
	e, ok := s.entities[id]
	if !ok {
		return nil, core.NewKindError("UpdateEntity", core.KindNotFound, core.ErrNotFound)
	}
	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.Email != nil {
		e.Email = *patch.Email
	}
	if patch.Phone != nil {
		e.Phone = *patch.Phone
	}
	if patch.Notes != nil {
		e.Notes = *patch.Notes
	}
	if patch.Metadata != nil {
		e.Metadata = patch.Metadata
	}
	return e, nil
}
func (s *fakeStore) DeleteEntity(ctx context.Context, userID, id string) error {
	delete(s.entities, id)
	return nil
}
func (s *fakeStore) ListEntities(ctx context.Context, userID string, limit int) ([]*core.Entity, error) {
	out := make([]*core.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	return out, nil
}
func (s *fakeStore) SearchEntitiesByText(ctx context.Context, userID, query string, limit int) ([]*core.Entity, error) {
	return nil, nil
}

func (s *fakeStore) CreateInteraction(ctx context.Context, i *core.Interaction) (*core.Interaction, error) {
	return i, nil
}
func (s *fakeStore) ListRecentInteractions(ctx context.Context, userID string, limit int) ([]*core.Interaction, error) {
	return nil, nil
}

func (s *fakeStore) AppendUsageRecord(ctx context.Context, rec *core.UsageRecord) error { return nil }
func (s *fakeStore) AggregateUsage(ctx context.Context, filter core.UsageFilter) (*core.UsageAggregate, error) {
	return &core.UsageAggregate{}, nil
}

func (s *fakeStore) CreateIndex(ctx context.Context, cfg *core.VectorIndexConfig) error { return nil }
func (s *fakeStore) Close() error                                                      { return nil }

// fakeSource is an in-memory ContactSource.
type fakeSource struct {
	contacts map[string]*ExternalContact
}

func newFakeSource(contacts ...*ExternalContact) *fakeSource {
	s := &fakeSource{contacts: map[string]*ExternalContact{}}
	for _, c := range contacts {
		s.contacts[c.UID] = c
	}
	return s
}

func (s *fakeSource) List(ctx context.Context, syncToken string) (*ListPage, error) {
	out := make([]*ExternalContact, 0, len(s.contacts))
	for _, c := range s.contacts {
		out = append(out, c)
	}
	return &ListPage{Contacts: out, SyncToken: "token-1"}, nil
}
func (s *fakeSource) Create(ctx context.Context, c *ExternalContact) (string, string, error) {
	uid := "new-" + c.Name
	c.UID, c.ETag = uid, "etag-1"
	s.contacts[uid] = c
	return uid, "etag-1", nil
}
func (s *fakeSource) Update(ctx context.Context, uid string, c *ExternalContact, ifMatchEtag string) (string, error) {
	existing, ok := s.contacts[uid]
	if !ok {
		return "", core.NewKindError("Update", core.KindNotFound, core.ErrNotFound)
	}
	if ifMatchEtag != existing.ETag {
		return "", core.NewKindError("Update", core.KindExternalConflict, core.ErrExternalConflict)
	}
	updated := *c
	updated.UID = uid
	updated.ETag = existing.ETag + "+1"
	s.contacts[uid] = &updated
	return updated.ETag, nil
}
func (s *fakeSource) Get(ctx context.Context, uid string) (*ExternalContact, error) {
	if c, ok := s.contacts[uid]; ok {
		return c, nil
	}
	return nil, core.NewKindError("Get", core.KindNotFound, core.ErrNotFound)
}

func TestEngineRunImportsUnmatchedContact(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource(&ExternalContact{UID: "c1", ETag: "e1", Name: "Imported Person", UpdatedAt: time.Now()})

	eng := New(store, source, nil, core.SyncConfig{EnableLLM: false, ConflictStrategy: "newest"}, nil)
	report, err := eng.Run(context.Background(), "user-1", false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, "token-1", report.SyncToken)

	var found bool
	for _, e := range store.entities {
		if e.Name == "Imported Person" {
			found = true
			assert.Contains(t, e.Tags, "imported-from-external")
			uid, ok := e.ExternalUID()
			assert.True(t, ok)
			assert.Equal(t, "c1", uid)
		}
	}
	assert.True(t, found)
}

func TestEngineRunExportsUnmatchedEntity(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &core.Entity{ID: "e1", UserID: "user-1", Name: "Export Me", Type: core.EntityTypePerson, UpdatedAt: time.Now()}
	source := newFakeSource()

	eng := New(store, source, nil, core.SyncConfig{EnableLLM: false, ConflictStrategy: "newest"}, nil)
	report, err := eng.Run(context.Background(), "user-1", false)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Exported)

	uid, ok := store.entities["e1"].ExternalUID()
	assert.True(t, ok)
	assert.Contains(t, source.contacts, uid)
}

func TestEngineRunDryRunIssuesNoWrites(t *testing.T) {
	store := newFakeStore()
	source := newFakeSource(&ExternalContact{UID: "c1", ETag: "e1", Name: "Should Not Import", UpdatedAt: time.Now()})

	eng := New(store, source, nil, core.SyncConfig{EnableLLM: false, ConflictStrategy: "newest"}, nil)
	report, err := eng.Run(context.Background(), "user-1", true)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Empty(t, store.entities)
	assert.Empty(t, store.users["user-1"])
}

func TestEngineRunRejectsEmptyUserID(t *testing.T) {
	eng := New(newFakeStore(), newFakeSource(), nil, core.SyncConfig{}, nil)
	_, err := eng.Run(context.Background(), "", false)
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(err))
}

// TestEngineRunMatchedPullRefreshesETagAndKeepsUnpopulatedFields reproduces
// spec scenario S5 end to end: E1 (externalEtag "v1") matches C1 (etag "v2",
// newer, only an email) by UID. The pull must land the newer email, leave
// E1's name untouched, and bump the stored etag to "v2".
func TestEngineRunMatchedPullRefreshesETagAndKeepsUnpopulatedFields(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &core.Entity{
		ID: "e1", UserID: "user-1", Name: "John Smith", Type: core.EntityTypePerson,
		UpdatedAt: time.Now().Add(-time.Hour),
		Metadata:  map[string]interface{}{"externalUid": "c1", "externalEtag": "v1"},
	}
	source := newFakeSource(&ExternalContact{
		UID: "c1", ETag: "v2", Emails: []string{"john@acme.com"}, UpdatedAt: time.Now(),
	})

	eng := New(store, source, nil, core.SyncConfig{EnableLLM: false, ConflictStrategy: "newest"}, nil)
	report, err := eng.Run(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)

	e := store.entities["e1"]
	assert.Equal(t, "John Smith", e.Name)
	assert.Equal(t, "john@acme.com", e.Email)
	etag, ok := e.ExternalETag()
	require.True(t, ok)
	assert.Equal(t, "v2", etag)
}

// TestEngineRunPushToExternalPersistsReturnedETag covers comment 2: after a
// push-to-external resolution, the etag fakeSource.Update returns must be
// the one stored on the entity, not the stale pre-push value.
func TestEngineRunPushToExternalPersistsReturnedETag(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &core.Entity{
		ID: "e1", UserID: "user-1", Name: "Newer Name", Type: core.EntityTypePerson,
		UpdatedAt: time.Now(),
		Metadata:  map[string]interface{}{"externalUid": "c1", "externalEtag": "stale-etag"},
	}
	source := newFakeSource(&ExternalContact{
		UID: "c1", ETag: "stale-etag", Name: "Older Name", UpdatedAt: time.Now().Add(-time.Hour),
	})

	eng := New(store, source, nil, core.SyncConfig{EnableLLM: false, ConflictStrategy: "newest"}, nil)
	_, err := eng.Run(context.Background(), "user-1", false)
	require.NoError(t, err)

	pushedEtag := source.contacts["c1"].ETag
	assert.NotEqual(t, "stale-etag", pushedEtag)

	etag, ok := store.entities["e1"].ExternalETag()
	require.True(t, ok)
	assert.Equal(t, pushedEtag, etag, "the etag persisted on the entity must match what the source actually assigned")
}

// TestEngineRunDedupAutoMergeUnionsEmails reproduces spec scenario S6: an
// unmatched entity/contact pair clears the dedup threshold and auto-merges.
// Even with the default newest-wins conflict strategy configured, the merge
// must union both emails rather than keep only one side's value.
func TestEngineRunDedupAutoMergeUnionsEmails(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &core.Entity{
		ID: "e1", UserID: "user-1", Name: "John Smith", Type: core.EntityTypePerson,
		Email: "john@acme.com", Phone: "15551234567", UpdatedAt: time.Now(),
	}
	source := newFakeSource(&ExternalContact{
		UID: "c1", ETag: "e1", Name: "John Q Smith", Emails: []string{"jsmith@acme.com"},
		Phones: []string{"5551234567"}, UpdatedAt: time.Now(),
	})

	eng := New(store, source, &fakeLLM{confidence: 95}, core.SyncConfig{
		EnableLLM: true, ConflictStrategy: "newest", DedupThreshold: 80, AutoMerge: true,
	}, nil)
	report, err := eng.Run(context.Background(), "user-1", false)
	require.NoError(t, err)

	var merged bool
	for _, o := range report.Outcomes {
		if o.State == "merged" {
			merged = true
		}
	}
	assert.True(t, merged)

	emails, ok := store.entities["e1"].Metadata["emails"].([]string)
	require.True(t, ok)
	assert.Contains(t, emails, "john@acme.com")
	assert.Contains(t, emails, "jsmith@acme.com")
}
