package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/memvault/pkg/core"
)

func TestMatchEntitiesCascade(t *testing.T) {
	uidEntity := &core.Entity{ID: "e-uid", Name: "Zed Zephyr", Metadata: map[string]interface{}{"externalUid": "c-uid"}}
	emailEntity := &core.Entity{ID: "e-email", Name: "Someone Else", Email: "Alice@Example.com"}
	phoneEntity := &core.Entity{ID: "e-phone", Name: "Phone Person", Phone: "(555) 123-4567"}
	nameEntity := &core.Entity{ID: "e-name", Name: "Bob Builder"}
	loneEntity := &core.Entity{ID: "e-lone", Name: "Nobody Matches"}

	uidContact := &ExternalContact{UID: "c-uid", Name: "Zed Zephyr Contact"}
	emailContact := &ExternalContact{UID: "c-email", Name: "Different Name", Emails: []string{"alice@example.com"}}
	phoneContact := &ExternalContact{UID: "c-phone", Name: "Phone Contact", Phones: []string{"5551234567"}}
	nameContact := &ExternalContact{UID: "c-name", Name: "bob builder"}
	loneContact := &ExternalContact{UID: "c-lone", Name: "Nothing In Common"}

	entities := []*core.Entity{uidEntity, emailEntity, phoneEntity, nameEntity, loneEntity}
	contacts := []*ExternalContact{uidContact, emailContact, phoneContact, nameContact, loneContact}

	matches, unmatchedEntities, unmatchedContacts := matchEntities(entities, contacts)

	assert.Len(t, matches, 4)
	levels := map[string]MatchLevel{}
	for _, m := range matches {
		levels[m.Entity.ID] = m.Level
	}
	assert.Equal(t, MatchUID, levels["e-uid"])
	assert.Equal(t, MatchEmail, levels["e-email"])
	assert.Equal(t, MatchPhone, levels["e-phone"])
	assert.Equal(t, MatchName, levels["e-name"])

	assert.Len(t, unmatchedEntities, 1)
	assert.Equal(t, "e-lone", unmatchedEntities[0].ID)
	assert.Len(t, unmatchedContacts, 1)
	assert.Equal(t, "c-lone", unmatchedContacts[0].UID)
}

func TestMatchEntitiesFirstCascadeLevelWinsOnce(t *testing.T) {
	// Entity matches one contact on UID; it must not also be paired via
	// name with a different contact, and each contact matches at most once.
	e := &core.Entity{ID: "e1", Name: "Same Name", Metadata: map[string]interface{}{"externalUid": "c1"}}
	c1 := &ExternalContact{UID: "c1", Name: "Same Name"}
	c2 := &ExternalContact{UID: "c2", Name: "Same Name"}

	matches, _, unmatchedContacts := matchEntities([]*core.Entity{e}, []*ExternalContact{c1, c2})

	assert.Len(t, matches, 1)
	assert.Equal(t, MatchUID, matches[0].Level)
	assert.Equal(t, "c1", matches[0].Contact.UID)
	assert.Len(t, unmatchedContacts, 1)
	assert.Equal(t, "c2", unmatchedContacts[0].UID)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "15551234567", normalizePhone("+1 (555) 123-4567"))
	assert.Equal(t, "", normalizePhone("n/a"))
}
