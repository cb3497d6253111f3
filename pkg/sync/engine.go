package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/llm"
)

// PairOutcome records what happened to one matched or candidate pair in a
// run, for the returned Report — the state machine spec §4.6 names:
// unmatched -> matched -> identical | conflict -> resolved | error
//
//	                    -> duplicate-candidate -> merged | review | rejected
type PairOutcome struct {
	EntityID   string
	ContactUID string
	State      string // "identical", "resolved", "error", "merged", "review", "rejected", "imported", "exported"
	Detail     string
}

// Report is the outcome of one Engine.Run call.
type Report struct {
	RequestID       string
	DryRun          bool
	Matched         int
	Imported        int
	Exported        int
	ReviewCandidates []DuplicateCandidate
	Outcomes        []PairOutcome
	SyncToken       string
}

// Engine runs the six-phase reconciliation (component C6) for one user at
// a time against a single ContactSource.
type Engine struct {
	store  core.Store
	source ContactSource
	llm    llm.Provider
	cfg    core.SyncConfig
	log    *zap.SugaredLogger
}

// New builds an Engine. cfg.EnableLLM false (or a nil llmProvider) disables
// phase 4's LLM step entirely; candidates are still collected and reported
// as review candidates under rule-only scoring.
func New(store core.Store, source ContactSource, llmProvider llm.Provider, cfg core.SyncConfig, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{store: store, source: source, llm: llmProvider, cfg: cfg, log: log}
}

// Run executes all six phases for userID. dryRun computes every phase's
// intent but issues no writes to either side.
func (eng *Engine) Run(ctx context.Context, userID string, dryRun bool) (*Report, error) {
	if userID == "" {
		return nil, core.NewKindError("sync.Run", core.KindInvalidArgument, core.ErrInvalidInput)
	}

	report := &Report{RequestID: uuid.NewString(), DryRun: dryRun}

	user, err := eng.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, core.NewMemoryError("sync.Run", err)
	}

	// Phase 1 — Load.
	entities, err := eng.store.ListEntities(ctx, userID, core.UnboundedLimit)
	if err != nil {
		return nil, core.NewMemoryError("sync.Run", err)
	}
	personEntities := filterPersons(entities)

	syncToken := stringMeta(user.Metadata, "syncToken")
	page, err := eng.source.List(ctx, syncToken)
	if err != nil {
		if core.KindOf(err) == core.KindSyncTokenExpired {
			page, err = eng.source.List(ctx, "")
		}
		if err != nil {
			return nil, core.NewMemoryError("sync.Run", err)
		}
	}

	// Phase 2 — Match.
	matches, unmatchedEntities, unmatchedContacts := matchEntities(personEntities, page.Contacts)
	report.Matched = len(matches)

	strategy := parseConflictStrategy(eng.cfg.ConflictStrategy)

	// Phase 3 — Sync matched pairs.
	for _, m := range matches {
		outcome := eng.syncPair(ctx, userID, m, strategy, dryRun)
		report.Outcomes = append(report.Outcomes, outcome)
	}

	// Phase 4 — LLM deduplicate, among items still unmatched on both sides.
	candidates := candidatePairs(unmatchedEntities, unmatchedContacts)
	if len(candidates) > 0 {
		cl := newClassifier(eng.pickLLM(), eng.cfg.MaxRetries, eng.cfg.RetryDelayMs)
		for i := range candidates {
			if !eng.cfg.EnableLLM {
				candidates[i].RuleOnly = true
				continue
			}
			cl.Classify(ctx, &candidates[i])
		}
		for _, cand := range candidates {
			outcome, merged := eng.resolveDuplicate(ctx, userID, cand, dryRun)
			report.Outcomes = append(report.Outcomes, outcome)
			if merged {
				unmatchedEntities = removeEntity(unmatchedEntities, cand.Entity.ID)
				unmatchedContacts = removeContact(unmatchedContacts, cand.Contact.UID)
			} else if outcome.State == "review" {
				report.ReviewCandidates = append(report.ReviewCandidates, cand)
			}
		}
	}

	// Phase 5 — Import new.
	for _, c := range unmatchedContacts {
		report.Outcomes = append(report.Outcomes, eng.importContact(ctx, userID, c, dryRun))
		report.Imported++
	}

	// Phase 6 — Export new.
	for _, e := range unmatchedEntities {
		report.Outcomes = append(report.Outcomes, eng.exportEntity(ctx, userID, e, dryRun))
		report.Exported++
	}

	// Persistence of progress.
	report.SyncToken = page.SyncToken
	if !dryRun && page.SyncToken != "" {
		meta := cloneMeta(user.Metadata)
		meta["syncToken"] = page.SyncToken
		meta["lastSyncAt"] = time.Now().Format(time.RFC3339)
		if _, err := eng.store.UpdateUser(ctx, userID, core.UserPatch{Metadata: meta}); err != nil {
			eng.log.Warnw("sync: failed to persist sync token", "userID", userID, "error", err)
		}
	}

	return report, nil
}

// pickLLM returns nil (forcing rule-only classification) when the LLM step
// is disabled by config.
func (eng *Engine) pickLLM() llm.Provider {
	if !eng.cfg.EnableLLM {
		return nil
	}
	return eng.llm
}

func (eng *Engine) syncPair(ctx context.Context, userID string, m Match, strategy ConflictStrategy, dryRun bool) PairOutcome {
	res := resolvePair(m.Entity, m.Contact, strategy)
	out := PairOutcome{EntityID: m.Entity.ID, ContactUID: m.Contact.UID}

	switch res.Action {
	case ActionIdentical:
		out.State = "identical"
		return out
	case ActionUpdateEntity:
		if !dryRun {
			if _, err := eng.store.UpdateEntity(ctx, userID, m.Entity.ID, res.EntityPatch); err != nil {
				out.State, out.Detail = "error", err.Error()
				return out
			}
		}
		out.State = "resolved"
		return out
	case ActionUpdateExternal:
		if !dryRun {
			newEtag, err := eng.pushExternalUpdate(ctx, m.Entity, m.Contact, res.ContactUpdate)
			if err != nil {
				out.State, out.Detail = "error", err.Error()
				return out
			}
			patch := core.EntityPatch{Metadata: syncStampedMetadata(m.Entity.Metadata, m.Contact.UID, newEtag)}
			if _, err := eng.store.UpdateEntity(ctx, userID, m.Entity.ID, patch); err != nil {
				out.State, out.Detail = "error", err.Error()
				return out
			}
		}
		out.State = "resolved"
		return out
	case ActionMerge:
		if !dryRun {
			newEtag, err := eng.pushExternalUpdate(ctx, m.Entity, m.Contact, res.ContactUpdate)
			if err != nil {
				out.State, out.Detail = "error", err.Error()
				return out
			}
			patch := res.EntityPatch
			patch.Metadata = syncStampedMetadata(patch.Metadata, m.Contact.UID, newEtag)
			if _, err := eng.store.UpdateEntity(ctx, userID, m.Entity.ID, patch); err != nil {
				out.State, out.Detail = "error", err.Error()
				return out
			}
		}
		out.State = "resolved"
		return out
	}
	out.State = "error"
	out.Detail = fmt.Sprintf("unrecognized action %q", res.Action)
	return out
}

// pushExternalUpdate writes an update to the external source, retrying once
// after refreshing the stale ETag on an optimistic-concurrency conflict
// (spec §4.6 phase 3), and returns the etag the source assigned the write so
// the caller can persist it onto the entity (P9: the engine stores both uid
// and etag on the matched entity's metadata after every write).
func (eng *Engine) pushExternalUpdate(ctx context.Context, e *core.Entity, original *ExternalContact, update *ExternalContact) (string, error) {
	etag, _ := e.ExternalETag()
	if etag == "" {
		etag = original.ETag
	}
	newEtag, err := eng.source.Update(ctx, original.UID, update, etag)
	if err == nil {
		return newEtag, nil
	}
	if core.KindOf(err) != core.KindExternalConflict {
		return "", err
	}
	fresh, getErr := eng.source.Get(ctx, original.UID)
	if getErr != nil {
		return "", err
	}
	newEtag, err = eng.source.Update(ctx, original.UID, update, fresh.ETag)
	if err != nil {
		return "", err
	}
	return newEtag, nil
}

func (eng *Engine) resolveDuplicate(ctx context.Context, userID string, cand DuplicateCandidate, dryRun bool) (PairOutcome, bool) {
	out := PairOutcome{EntityID: cand.Entity.ID, ContactUID: cand.Contact.UID}

	if cand.RuleOnly {
		out.State = "review"
		out.Detail = "LLM unavailable; rule-only preliminary score reported for manual review"
		return out, false
	}
	if cand.Confidence < eng.cfg.DedupThreshold {
		out.State = "review"
		out.Detail = cand.Reasoning
		return out, false
	}
	if !cand.IsDuplicate {
		out.State = "rejected"
		out.Detail = cand.Reasoning
		return out, false
	}
	if !eng.cfg.AutoMerge {
		out.State = "review"
		out.Detail = cand.Reasoning
		return out, false
	}

	// A confirmed duplicate always merges by field-level union, regardless
	// of the configured phase-3 conflict strategy — spec §4.6 says
	// above-threshold pairs "are merged under the configured merge
	// strategy," not resolved newest/oldest-wins, which would silently
	// drop one side's data (S6: merged emails union both sides).
	res := resolvePair(cand.Entity, cand.Contact, StrategyMerge)
	if !dryRun {
		patch := res.EntityPatch
		patch.Metadata = syncStampedMetadata(patch.Metadata, cand.Contact.UID, cand.Contact.ETag)
		if _, err := eng.store.UpdateEntity(ctx, userID, cand.Entity.ID, patch); err != nil {
			out.State, out.Detail = "error", err.Error()
			return out, false
		}
	}
	out.State = "merged"
	return out, true
}

func (eng *Engine) importContact(ctx context.Context, userID string, c *ExternalContact, dryRun bool) PairOutcome {
	out := PairOutcome{ContactUID: c.UID, State: "imported"}
	if dryRun {
		return out
	}
	var email, phone string
	if len(c.Emails) > 0 {
		email = c.Emails[0]
	}
	if len(c.Phones) > 0 {
		phone = c.Phones[0]
	}
	e := &core.Entity{
		UserID:     userID,
		Name:       c.Name,
		Type:       core.EntityTypePerson,
		Company:    c.Organization,
		Title:      c.Title,
		Email:      email,
		Phone:      phone,
		Notes:      c.Notes,
		Tags:       []string{"imported-from-external"},
		Importance: core.ImportanceMedium,
	}
	e.SetExternalSync(c.UID, c.ETag)
	created, err := eng.store.CreateEntity(ctx, e)
	if err != nil {
		out.State, out.Detail = "error", err.Error()
		return out
	}
	out.EntityID = created.ID
	return out
}

func (eng *Engine) exportEntity(ctx context.Context, userID string, e *core.Entity, dryRun bool) PairOutcome {
	out := PairOutcome{EntityID: e.ID, State: "exported"}
	if dryRun {
		return out
	}
	contact := &ExternalContact{
		Name:         e.Name,
		Organization: e.Company,
		Title:        e.Title,
		Emails:       valueOrNil(e.Email),
		Phones:       valueOrNil(e.Phone),
		Notes:        fmt.Sprintf("%s\n[memvault:%s]", e.Notes, e.ID),
	}
	uid, etag, err := eng.source.Create(ctx, contact)
	if err != nil {
		out.State, out.Detail = "error", err.Error()
		return out
	}
	patch := core.EntityPatch{Metadata: syncStampedMetadata(e.Metadata, uid, etag)}
	if _, err := eng.store.UpdateEntity(ctx, userID, e.ID, patch); err != nil {
		out.State, out.Detail = "error", err.Error()
		return out
	}
	out.ContactUID = uid
	return out
}

func filterPersons(entities []*core.Entity) []*core.Entity {
	out := entities[:0:0]
	for _, e := range entities {
		if e.Type == core.EntityTypePerson {
			out = append(out, e)
		}
	}
	return out
}

func removeEntity(entities []*core.Entity, id string) []*core.Entity {
	out := entities[:0:0]
	for _, e := range entities {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

func removeContact(contacts []*ExternalContact, uid string) []*ExternalContact {
	out := contacts[:0:0]
	for _, c := range contacts {
		if c.UID != uid {
			out = append(out, c)
		}
	}
	return out
}

func stringMeta(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	v, _ := meta[key].(string)
	return v
}

func cloneMeta(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
