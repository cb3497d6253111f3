package sync

import (
	"strings"

	"github.com/corvidlabs/memvault/pkg/core"
)

// ConflictStrategy is one of the three phase-3 conflict-resolution policies.
type ConflictStrategy string

const (
	StrategyNewest ConflictStrategy = "newest"
	StrategyOldest ConflictStrategy = "oldest"
	StrategyMerge  ConflictStrategy = "merge"
)

func parseConflictStrategy(s string) ConflictStrategy {
	switch ConflictStrategy(s) {
	case StrategyOldest:
		return StrategyOldest
	case StrategyMerge:
		return StrategyMerge
	default:
		return StrategyNewest
	}
}

// PairAction is the outcome a resolved pair needs applied.
type PairAction string

const (
	ActionIdentical      PairAction = "identical"
	ActionUpdateEntity   PairAction = "update-entity"   // pull external values onto the entity
	ActionUpdateExternal PairAction = "update-external" // push entity values onto the external contact
	ActionMerge          PairAction = "merge"           // both sides updated, field-level union
)

// Resolution is what resolvePair decided for one matched pair.
type Resolution struct {
	Action        PairAction
	EntityPatch   core.EntityPatch
	ContactUpdate *ExternalContact
}

// hasConflict reports whether name/email/phone/organization differ between
// the two sides of a match.
func hasConflict(e *core.Entity, c *ExternalContact) bool {
	if !strings.EqualFold(strings.TrimSpace(e.Name), strings.TrimSpace(c.Name)) {
		return true
	}
	if !containsFold(c.Emails, e.Email) {
		return true
	}
	if !containsPhone(c.Phones, e.Phone) {
		return true
	}
	if !strings.EqualFold(strings.TrimSpace(e.Company), strings.TrimSpace(c.Organization)) {
		return true
	}
	return false
}

func containsFold(values []string, want string) bool {
	if want == "" {
		return true
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}

func containsPhone(values []string, want string) bool {
	if want == "" {
		return true
	}
	wantN := normalizePhone(want)
	for _, v := range values {
		if normalizePhone(v) == wantN {
			return true
		}
	}
	return false
}

// resolvePair applies strategy to one matched entity/contact pair, per
// spec §4.6 phase 3. When there's no conflict it reports ActionIdentical.
func resolvePair(e *core.Entity, c *ExternalContact, strategy ConflictStrategy) Resolution {
	if !hasConflict(e, c) {
		return Resolution{Action: ActionIdentical}
	}

	switch strategy {
	case StrategyOldest:
		if c.UpdatedAt.Before(e.UpdatedAt) {
			return Resolution{Action: ActionUpdateEntity, EntityPatch: patchFromContact(e, c)}
		}
		return Resolution{Action: ActionUpdateExternal, ContactUpdate: contactFromEntity(e, c)}

	case StrategyMerge:
		return Resolution{
			Action:        ActionMerge,
			EntityPatch:   mergeIntoEntityPatch(e, c),
			ContactUpdate: mergeIntoContact(e, c),
		}

	default: // StrategyNewest
		if c.UpdatedAt.After(e.UpdatedAt) {
			return Resolution{Action: ActionUpdateEntity, EntityPatch: patchFromContact(e, c)}
		}
		return Resolution{Action: ActionUpdateExternal, ContactUpdate: contactFromEntity(e, c)}
	}
}

// patchFromContact overwrites the entity's syncable fields with the
// external contact's values (external wins), but only where the contact
// actually carries a value — a field the external side never populated
// must not null out what the entity already has. Also stamps the contact's
// current uid/etag onto the entity's metadata, since a successful pull
// means the entity is now current as of that etag (spec §4.6 phase 3, P9).
func patchFromContact(e *core.Entity, c *ExternalContact) core.EntityPatch {
	name := c.Name
	if name == "" {
		name = e.Name
	}
	company := c.Organization
	if company == "" {
		company = e.Company
	}
	title := c.Title
	if title == "" {
		title = e.Title
	}
	email := e.Email
	if len(c.Emails) > 0 {
		email = c.Emails[0]
	}
	phone := e.Phone
	if len(c.Phones) > 0 {
		phone = c.Phones[0]
	}
	return core.EntityPatch{
		Name: &name, Company: &company, Title: &title, Email: &email, Phone: &phone,
		Metadata: syncStampedMetadata(e.Metadata, c.UID, c.ETag),
	}
}

// contactFromEntity overwrites the external contact's fields with the
// entity's values (entity wins), preserving the contact's UID/ETag.
func contactFromEntity(e *core.Entity, c *ExternalContact) *ExternalContact {
	out := *c
	out.Name = e.Name
	out.Organization = e.Company
	out.Title = e.Title
	if e.Email != "" {
		out.Emails = []string{e.Email}
	}
	if e.Phone != "" {
		out.Phones = []string{e.Phone}
	}
	return &out
}

// mergeIntoEntityPatch applies the merge-strategy field rules (spec §4.6):
// name/address prefer the external value when non-empty (the user likely
// edited it in their contacts app); organization/title prefer whichever
// side is non-empty; notes concatenate when distinct; internal-only fields
// (importance, notes.mcpLinks) are never touched here.
func mergeIntoEntityPatch(e *core.Entity, c *ExternalContact) core.EntityPatch {
	patch := core.EntityPatch{}

	if c.Name != "" {
		name := c.Name
		patch.Name = &name
	}
	if c.Organization != "" {
		org := c.Organization
		patch.Company = &org
	} else if e.Company != "" {
		org := e.Company
		patch.Company = &org
	}
	if c.Title != "" {
		title := c.Title
		patch.Title = &title
	} else if e.Title != "" {
		title := e.Title
		patch.Title = &title
	}

	emails := unionStrings(valueOrNil(e.Email), c.Emails)
	if email := unionFirst(e.Email, c.Emails); email != "" {
		patch.Email = &email
	}
	if phone := unionFirstPhone(e.Phone, c.Phones); phone != "" {
		patch.Phone = &phone
	}

	notes := mergeNotes(e.Notes, c.Notes)
	patch.Notes = &notes

	// Entity.Email holds one string, so the merged union can't live there in
	// full; the complete union is recorded in metadata alongside it so no
	// address is lost. The sync uid/etag are stamped by the caller once the
	// external push (if any) has returned its new etag.
	if len(emails) > 0 {
		patch.Metadata = map[string]interface{}{"emails": emails}
	}

	return patch
}

// mergeIntoContact mirrors mergeIntoEntityPatch onto the external side:
// emails/phones become the union of both sides' unique values, consistent
// with what gets written back to the entity.
func mergeIntoContact(e *core.Entity, c *ExternalContact) *ExternalContact {
	out := *c
	if e.Name != "" && c.Name == "" {
		out.Name = e.Name
	}
	out.Emails = unionStrings(c.Emails, valueOrNil(e.Email))
	out.Phones = unionStrings(c.Phones, valueOrNil(e.Phone))
	if out.Organization == "" {
		out.Organization = e.Company
	}
	if out.Title == "" {
		out.Title = e.Title
	}
	out.Notes = mergeNotes(e.Notes, c.Notes)
	return &out
}

// syncStampedMetadata clones existing and stamps the external source's
// uid/etag onto it via Entity.SetExternalSync, leaving every other key
// (e.g. a merge's "emails" union) untouched.
func syncStampedMetadata(existing map[string]interface{}, uid, etag string) map[string]interface{} {
	tmp := &core.Entity{Metadata: cloneMeta(existing)}
	tmp.SetExternalSync(uid, etag)
	return tmp.Metadata
}

func valueOrNil(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func unionFirst(entityVal string, contactVals []string) string {
	merged := unionStrings(valueOrNil(entityVal), contactVals)
	if len(merged) == 0 {
		return ""
	}
	return merged[0]
}

func unionFirstPhone(entityVal string, contactVals []string) string {
	return unionFirst(entityVal, contactVals)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string{}, a...), b...) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func mergeNotes(entityNotes, contactNotes string) string {
	entityNotes = strings.TrimSpace(entityNotes)
	contactNotes = strings.TrimSpace(contactNotes)
	switch {
	case entityNotes == "":
		return contactNotes
	case contactNotes == "":
		return entityNotes
	case strings.EqualFold(entityNotes, contactNotes):
		return entityNotes
	default:
		return entityNotes + "\n" + contactNotes
	}
}
