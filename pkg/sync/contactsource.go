// Package sync implements the Deduplication & Bidirectional Sync Engine
// (component C6): reconciling a user's person-entities against an external
// contact source in the six idempotent phases described in the service's
// design (load, match, sync matched pairs, LLM dedup, import new, export
// new). Grounded on pkg/intelligence/dedup.go's similarity-threshold
// merge pattern, generalized from in-process memory dedup to cross-system
// contact reconciliation with optimistic-concurrency and retry handling.
package sync

import (
	"context"
	"time"
)

// ExternalContact is one record from the external contact source, addressed
// by the source's own UID and carrying its optimistic-concurrency tag.
type ExternalContact struct {
	UID          string
	ETag         string
	Name         string
	Emails       []string
	Phones       []string
	Organization string
	Title        string
	Address      string
	Notes        string
	UpdatedAt    time.Time
}

// ListPage is one page of a ContactSource.List call.
type ListPage struct {
	Contacts  []*ExternalContact
	SyncToken string
}

// ContactSource is the external system person-entities are reconciled
// against (a CardDAV server, a cloud contacts API, ...). Implementations
// live behind this interface so the Engine never depends on a concrete
// transport.
type ContactSource interface {
	// List returns contacts changed since syncToken (incremental mode), or
	// the complete set when syncToken is empty. A syncToken the source no
	// longer recognizes fails with core.KindSyncTokenExpired; the caller
	// falls back to a full List with an empty token.
	List(ctx context.Context, syncToken string) (*ListPage, error)

	// Create adds a new external contact and returns its assigned UID and
	// ETag.
	Create(ctx context.Context, c *ExternalContact) (uid, etag string, err error)

	// Update pushes a field-level patch to an existing external contact,
	// enforcing ifMatchEtag as an optimistic-concurrency precondition.
	// A tag mismatch fails with core.KindExternalConflict.
	Update(ctx context.Context, uid string, c *ExternalContact, ifMatchEtag string) (newEtag string, err error)

	// Get re-reads a single contact by UID, used to refresh a stale ETag
	// after an Update conflict.
	Get(ctx context.Context, uid string) (*ExternalContact, error)
}
