package sync

import (
	"strings"

	"github.com/corvidlabs/memvault/pkg/core"
)

// MatchLevel names which cascade rule produced a Match.
type MatchLevel string

const (
	MatchUID   MatchLevel = "uid"
	MatchEmail MatchLevel = "email"
	MatchPhone MatchLevel = "phone"
	MatchName  MatchLevel = "name"
)

// confidence for each cascade level, in the order the cascade is tried.
var levelConfidence = map[MatchLevel]float64{
	MatchUID:   1.0,
	MatchEmail: 0.95,
	MatchPhone: 0.90,
	MatchName:  0.70,
}

// Match pairs one entity with one external contact.
type Match struct {
	Entity     *core.Entity
	Contact    *ExternalContact
	Level      MatchLevel
	Confidence float64
}

// matchEntities runs the four-level cascade over entities and contacts. A
// given entity or contact participates in at most one match — the first
// cascade level that pairs it wins. Returns the matches plus the entities
// and contacts left unmatched on each side.
func matchEntities(entities []*core.Entity, contacts []*ExternalContact) (matches []Match, unmatchedEntities []*core.Entity, unmatchedContacts []*ExternalContact) {
	matchedEntity := make(map[string]bool, len(entities))
	matchedContact := make(map[string]bool, len(contacts))

	tryLevel := func(level MatchLevel, key func(*core.Entity) string, contactKey func(*ExternalContact) string) {
		index := make(map[string]*ExternalContact, len(contacts))
		for _, c := range contacts {
			if matchedContact[c.UID] {
				continue
			}
			if k := contactKey(c); k != "" {
				if _, exists := index[k]; !exists {
					index[k] = c
				}
			}
		}
		for _, e := range entities {
			if matchedEntity[e.ID] {
				continue
			}
			k := key(e)
			if k == "" {
				continue
			}
			c, ok := index[k]
			if !ok || matchedContact[c.UID] {
				continue
			}
			matches = append(matches, Match{Entity: e, Contact: c, Level: level, Confidence: levelConfidence[level]})
			matchedEntity[e.ID] = true
			matchedContact[c.UID] = true
			delete(index, k)
		}
	}

	tryLevel(MatchUID,
		func(e *core.Entity) string { uid, _ := e.ExternalUID(); return uid },
		func(c *ExternalContact) string { return c.UID })

	tryLevel(MatchEmail,
		func(e *core.Entity) string { return strings.ToLower(strings.TrimSpace(e.Email)) },
		func(c *ExternalContact) string {
			for _, em := range c.Emails {
				return strings.ToLower(strings.TrimSpace(em))
			}
			return ""
		})

	tryLevel(MatchPhone,
		func(e *core.Entity) string { return normalizePhone(e.Phone) },
		func(c *ExternalContact) string {
			for _, ph := range c.Phones {
				if n := normalizePhone(ph); n != "" {
					return n
				}
			}
			return ""
		})

	tryLevel(MatchName,
		func(e *core.Entity) string { return strings.ToLower(strings.TrimSpace(e.Name)) },
		func(c *ExternalContact) string { return strings.ToLower(strings.TrimSpace(c.Name)) })

	for _, e := range entities {
		if !matchedEntity[e.ID] {
			unmatchedEntities = append(unmatchedEntities, e)
		}
	}
	for _, c := range contacts {
		if !matchedContact[c.UID] {
			unmatchedContacts = append(unmatchedContacts, c)
		}
	}
	return matches, unmatchedEntities, unmatchedContacts
}

// normalizePhone strips everything but digits, so "(555) 123-4567" and
// "555-123-4567" compare equal. A country-code prefix is kept, so
// "+1 (555) 123-4567" does not equal "5551234567".
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
