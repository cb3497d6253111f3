package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/memvault/pkg/core"
)

func TestResolvePairIdenticalNoConflict(t *testing.T) {
	e := &core.Entity{Name: "Ann Arbor", Email: "ann@example.com", Phone: "5551234567", Company: "Acme"}
	c := &ExternalContact{Name: "Ann Arbor", Emails: []string{"ann@example.com"}, Phones: []string{"555-123-4567"}, Organization: "Acme"}

	res := resolvePair(e, c, StrategyNewest)
	assert.Equal(t, ActionIdentical, res.Action)
}

func TestResolvePairNewestWinsPullsFromExternal(t *testing.T) {
	now := time.Now()
	e := &core.Entity{Name: "Old Name", UpdatedAt: now.Add(-time.Hour)}
	c := &ExternalContact{Name: "New Name", UpdatedAt: now}

	res := resolvePair(e, c, StrategyNewest)
	require.Equal(t, ActionUpdateEntity, res.Action)
	require.NotNil(t, res.EntityPatch.Name)
	assert.Equal(t, "New Name", *res.EntityPatch.Name)
}

func TestResolvePairNewestWinsPushesToExternal(t *testing.T) {
	now := time.Now()
	e := &core.Entity{Name: "New Name", UpdatedAt: now}
	c := &ExternalContact{Name: "Old Name", UpdatedAt: now.Add(-time.Hour)}

	res := resolvePair(e, c, StrategyNewest)
	require.Equal(t, ActionUpdateExternal, res.Action)
	assert.Equal(t, "New Name", res.ContactUpdate.Name)
}

func TestResolvePairOldestWinsIsSymmetric(t *testing.T) {
	now := time.Now()
	e := &core.Entity{Name: "New Name", UpdatedAt: now}
	c := &ExternalContact{Name: "Old Name", UpdatedAt: now.Add(-time.Hour)}

	res := resolvePair(e, c, StrategyOldest)
	require.Equal(t, ActionUpdateEntity, res.Action)
	assert.Equal(t, "Old Name", *res.EntityPatch.Name)
}

func TestResolvePairNewestWinsStampsETagAndPreservesUnpopulatedFields(t *testing.T) {
	// Mirrors spec scenario S5: E1 carries a name the external side never
	// set, C1 only carries a (newer) email. The pull must not blank the
	// name, and must refresh the entity's externalEtag to the contact's.
	now := time.Now()
	e := &core.Entity{
		Name:      "John Smith",
		UpdatedAt: now.Add(-time.Hour),
		Metadata:  map[string]interface{}{"externalUid": "c1", "externalEtag": "v1"},
	}
	c := &ExternalContact{UID: "c1", ETag: "v2", Emails: []string{"john@acme.com"}, UpdatedAt: now}

	res := resolvePair(e, c, StrategyNewest)
	require.Equal(t, ActionUpdateEntity, res.Action)
	require.NotNil(t, res.EntityPatch.Name)
	assert.Equal(t, "John Smith", *res.EntityPatch.Name, "a field the contact never populated must survive the pull")
	require.NotNil(t, res.EntityPatch.Email)
	assert.Equal(t, "john@acme.com", *res.EntityPatch.Email)

	require.NotNil(t, res.EntityPatch.Metadata)
	etag, ok := (&core.Entity{Metadata: res.EntityPatch.Metadata}).ExternalETag()
	require.True(t, ok)
	assert.Equal(t, "v2", etag)
	uid, ok := (&core.Entity{Metadata: res.EntityPatch.Metadata}).ExternalUID()
	require.True(t, ok)
	assert.Equal(t, "c1", uid)
}

func TestResolvePairMergeUnionsEmailsAndPhones(t *testing.T) {
	e := &core.Entity{Name: "Carl Carlson", Email: "carl@work.com", Phone: "5551112222", Notes: "met at conference"}
	c := &ExternalContact{Name: "Carl Carlson", Emails: []string{"carl@home.com"}, Phones: []string{"555-333-4444"}, Notes: "likes golf"}

	res := resolvePair(e, c, StrategyMerge)
	require.Equal(t, ActionMerge, res.Action)
	require.NotNil(t, res.EntityPatch.Email)
	assert.Equal(t, "carl@work.com", *res.EntityPatch.Email)
	assert.Contains(t, res.ContactUpdate.Emails, "carl@home.com")
	assert.Contains(t, res.ContactUpdate.Emails, "carl@work.com")
	assert.Contains(t, res.ContactUpdate.Phones, "555-333-4444")
	assert.Contains(t, res.ContactUpdate.Phones, "5551112222")
	assert.Contains(t, *res.EntityPatch.Notes, "met at conference")
	assert.Contains(t, *res.EntityPatch.Notes, "likes golf")

	// Entity.Email only holds one address; the full union must still be
	// recoverable from the patch's metadata so no address is dropped.
	require.NotNil(t, res.EntityPatch.Metadata)
	emails, ok := res.EntityPatch.Metadata["emails"].([]string)
	require.True(t, ok)
	assert.Contains(t, emails, "carl@home.com")
	assert.Contains(t, emails, "carl@work.com")
}

func TestPreliminaryScoreRewardsSharedSignals(t *testing.T) {
	e := &core.Entity{Name: "Dana Diamond", Email: "dana@acme.com", Company: "Acme"}
	c := &ExternalContact{Name: "Dana Diamond", Emails: []string{"dana@acme.com"}, Organization: "Acme"}

	assert.Greater(t, preliminaryScore(e, c), preliminaryScoreFloor)
}
