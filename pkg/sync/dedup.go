package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/llm"
)

// preliminaryScoreFloor is the rule-based score a cross-pair must clear
// before it's worth an LLM call (spec §4.6 phase 4: "keep pairs with score > 20").
const preliminaryScoreFloor = 20

// DuplicateCandidate is one cross-pair from phase 4, carrying both the
// rule-based preliminary score and, if the LLM ran, its classification.
type DuplicateCandidate struct {
	Entity      *core.Entity
	Contact     *ExternalContact
	Preliminary int
	Confidence  int
	Reasoning   string
	IsDuplicate bool
	RuleOnly    bool
}

// verdict is the shape the LLM is asked to return for one candidate pair.
type verdict struct {
	Confidence  int    `json:"confidence"`
	Reasoning   string `json:"reasoning"`
	IsDuplicate bool   `json:"isDuplicate"`
}

// preliminaryScore rates how alike an unmatched entity and contact look,
// per spec §4.6 phase 4's rule-based signals: name overlap, shared email
// domain, phone similarity, org, title.
func preliminaryScore(e *core.Entity, c *ExternalContact) int {
	score := 0
	if tokenOverlap(e.Name, c.Name) {
		score += 10
	}
	if sameEmailDomain(e.Email, c.Emails) {
		score += 8
	}
	if phoneOverlap(e.Phone, c.Phones) {
		score += 8
	}
	if e.Company != "" && strings.EqualFold(e.Company, c.Organization) {
		score += 6
	}
	if e.Title != "" && strings.EqualFold(e.Title, c.Title) {
		score += 4
	}
	return score
}

func tokenOverlap(a, b string) bool {
	aTok := strings.Fields(strings.ToLower(a))
	bSet := make(map[string]bool, len(strings.Fields(b)))
	for _, t := range strings.Fields(strings.ToLower(b)) {
		bSet[t] = true
	}
	for _, t := range aTok {
		if len(t) > 1 && bSet[t] {
			return true
		}
	}
	return false
}

func sameEmailDomain(email string, contactEmails []string) bool {
	domain := emailDomain(email)
	if domain == "" {
		return false
	}
	for _, ce := range contactEmails {
		if emailDomain(ce) == domain {
			return true
		}
	}
	return false
}

func emailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[i+1:])
}

func phoneOverlap(phone string, contactPhones []string) bool {
	n := normalizePhone(phone)
	if len(n) < 7 {
		return false
	}
	suffix := n[len(n)-7:]
	for _, p := range contactPhones {
		pn := normalizePhone(p)
		if len(pn) >= 7 && pn[len(pn)-7:] == suffix {
			return true
		}
	}
	return false
}

// candidatePairs builds every unmatched-entity/unmatched-contact cross
// pair whose preliminary score clears the floor.
func candidatePairs(entities []*core.Entity, contacts []*ExternalContact) []DuplicateCandidate {
	var out []DuplicateCandidate
	for _, e := range entities {
		for _, c := range contacts {
			score := preliminaryScore(e, c)
			if score > preliminaryScoreFloor {
				out = append(out, DuplicateCandidate{Entity: e, Contact: c, Preliminary: score})
			}
		}
	}
	return out
}

// classifier runs phase 4's LLM classification step with spec §4.6's
// rate-limit/retry/degrade policy: sequential calls with a fixed delay,
// up to maxRetries with exponential backoff on provider errors, and a
// permanent fall-back to rule-only matching once the LLM is unusable.
type classifier struct {
	provider     llm.Provider
	maxRetries   int
	retryDelay   time.Duration
	degraded     bool
}

func newClassifier(provider llm.Provider, maxRetries int, retryDelayMs int) *classifier {
	return &classifier{provider: provider, maxRetries: maxRetries, retryDelay: time.Duration(retryDelayMs) * time.Millisecond}
}

// Classify fills in Confidence/Reasoning/IsDuplicate for one candidate. If
// the LLM has already degraded (persistent failure on an earlier pair in
// this run) it marks the candidate RuleOnly and returns immediately rather
// than spending further retries.
func (cl *classifier) Classify(ctx context.Context, cand *DuplicateCandidate) {
	if cl.degraded || cl.provider == nil {
		cand.RuleOnly = true
		return
	}

	prompt := classifyPrompt(cand.Entity, cand.Contact)
	var v verdict
	op := func() error {
		raw, err := cl.provider.GenerateWithMessages(ctx, []llm.Message{
			{Role: "system", Content: "You classify whether two contact records refer to the same real person. Respond with JSON only: {\"confidence\": 0-100, \"reasoning\": \"...\", \"isDuplicate\": true|false}. Use the scale 100=exact, 90-99=very likely, 70-89=likely, 50-69=possible, below 50=different."},
			{Role: "user", Content: prompt},
		})
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(extractJSON(raw)), &v)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cl.maxRetries))
	if err := backoff.Retry(op, bo); err != nil {
		cl.degraded = true
		cand.RuleOnly = true
		return
	}

	cand.Confidence = v.Confidence
	cand.Reasoning = v.Reasoning
	cand.IsDuplicate = v.IsDuplicate

	if cl.retryDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(cl.retryDelay):
		}
	}
}

func classifyPrompt(e *core.Entity, c *ExternalContact) string {
	return fmt.Sprintf(
		"Record A (internal): name=%q, email=%q, phone=%q, organization=%q, title=%q\nRecord B (external): name=%q, email=%v, phone=%v, organization=%q, title=%q",
		e.Name, e.Email, e.Phone, e.Company, e.Title,
		c.Name, c.Emails, c.Phones, c.Organization, c.Title,
	)
}

// extractJSON trims any leading/trailing prose a model adds around the
// JSON object it was asked to return verbatim.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
