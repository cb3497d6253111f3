// Package retrieval implements the Retrieval Engine (component C5): query
// parsing, the vector + lexical hybrid search, and the ranking strategies
// described in the memory service's search behavior. Scoring is always done
// in Go over rows the Store hands back, so scoring stays uniform across
// every backend (see the pkg/storage/postgres package doc).
package retrieval

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/embedder"
)

// fieldValuePattern recognizes "field:value" and "metadata.path:value" query syntax.
var fieldValuePattern = regexp.MustCompile(`^(metadata\.)?([A-Za-z0-9_]+):(.+)$`)

var topLevelFields = map[string]bool{
	"memoryType": true,
	"importance": true,
	"userId":     true,
}

// Engine runs hybrid search over one user's memories at a time.
type Engine struct {
	store    core.Store
	embedder embedder.Provider
}

// New builds an Engine over store, embedding queries with embedder.
func New(store core.Store, emb embedder.Provider) *Engine {
	return &Engine{store: store, embedder: emb}
}

// Search resolves query against userID's memories per opts and returns a
// SearchResult labeled with the method that produced it.
func (e *Engine) Search(ctx context.Context, userID, query string, opts *core.SearchMemoriesOptions) (*core.SearchResult, error) {
	if field, value, ok := parseFieldQuery(query); ok {
		results, err := e.store.SearchMemoriesByMetadata(ctx, userID, field, value, opts.Limit)
		if err != nil {
			return nil, core.NewMemoryError("searchMemories", err)
		}
		results = filterMemories(results, opts)
		return &core.SearchResult{Memories: results, Method: core.MethodMetadata, Count: len(results)}, nil
	}

	if strings.TrimSpace(query) == "" {
		recent, err := e.store.ListMemories(ctx, userID, opts.Limit)
		if err != nil {
			return nil, core.NewMemoryError("searchMemories", err)
		}
		recent = filterMemories(recent, opts)
		rankRecency(recent)
		return &core.SearchResult{Memories: recent, Method: core.MethodText, Count: len(recent)}, nil
	}

	candidates, err := e.store.GetMemoriesWithEmbedding(ctx, userID, core.UnboundedLimit)
	if err != nil {
		return nil, core.NewMemoryError("searchMemories", err)
	}
	candidates = filterMemories(candidates, opts)

	// Threshold 0 disables the similarity filter per spec: it is widened to
	// -Inf so candidates with a negative cosine similarity are kept too.
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = math.Inf(-1)
	}
	var vectorResults []*core.Memory
	queryEmbedding, embErr := e.embedder.Embed(ctx, query)
	if embErr == nil {
		scored := embedder.RankBySimilarity(queryEmbedding.Vector, candidates, func(m *core.Memory) []float64 { return m.Embedding }, threshold, 0)
		vectorResults = make([]*core.Memory, len(scored))
		for i, s := range scored {
			s.Item.Score = s.Similarity
			vectorResults[i] = s.Item
		}
	}

	method := core.MethodSemantic
	results := vectorResults
	if len(results) < opts.Limit {
		need := opts.Limit - len(results)
		lexical, err := e.store.SearchMemoriesLexical(ctx, userID, query, need)
		if err != nil {
			return nil, core.NewMemoryError("searchMemories", err)
		}
		lexical = filterMemories(lexical, opts)

		seen := make(map[string]bool, len(results))
		for _, m := range results {
			seen[m.ID] = true
		}
		added := false
		for _, m := range lexical {
			if !seen[m.ID] {
				results = append(results, m)
				seen[m.ID] = true
				added = true
			}
		}
		if added {
			if len(vectorResults) > 0 {
				method = core.MethodHybrid
			} else {
				method = core.MethodText
			}
		}
	}

	applyStrategy(results, opts.Strategy)
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return &core.SearchResult{Memories: results, Method: method, Count: len(results)}, nil
}

// UnifiedSearch searches memories, entities, and interactions with the same
// parsing rules, capping each category at opts.Limit.
func (e *Engine) UnifiedSearch(ctx context.Context, userID, query string, opts *core.SearchMemoriesOptions) (*core.UnifiedSearchResult, error) {
	memResult, err := e.Search(ctx, userID, query, opts)
	if err != nil {
		return nil, err
	}

	entities, err := e.store.SearchEntitiesByText(ctx, userID, query, opts.Limit)
	if err != nil {
		return nil, core.NewMemoryError("unifiedSearch", err)
	}

	interactions, err := e.store.ListRecentInteractions(ctx, userID, opts.Limit)
	if err != nil {
		return nil, core.NewMemoryError("unifiedSearch", err)
	}

	return &core.UnifiedSearchResult{
		Memories:     memResult.Memories,
		Entities:     entities,
		Interactions: interactions,
		Method:       memResult.Method,
	}, nil
}

// parseFieldQuery recognizes "field:value" / "metadata.path:value" syntax
// (spec §4.5) and returns the field name Store.SearchMemoriesByMetadata
// expects plus the value to match.
func parseFieldQuery(query string) (field, value string, ok bool) {
	m := fieldValuePattern.FindStringSubmatch(strings.TrimSpace(query))
	if m == nil {
		return "", "", false
	}
	prefix, name, val := m[1], m[2], m[3]
	if prefix == "" && topLevelFields[name] {
		return name, val, true
	}
	if prefix != "" {
		return "metadata." + name, val, true
	}
	// Unrecognized bare field name: still a metadata path per spec §4.5.
	return "metadata." + name, val, true
}

func filterMemories(memories []*core.Memory, opts *core.SearchMemoriesOptions) []*core.Memory {
	now := time.Now()
	out := memories[:0:0]
	for _, m := range memories {
		if !opts.IncludeArchived && m.IsArchived {
			continue
		}
		if m.Expired(now) {
			continue
		}
		if len(opts.MemoryTypes) > 0 && !containsType(opts.MemoryTypes, m.Type) {
			continue
		}
		if len(opts.Tags) > 0 && !sharesTag(opts.Tags, m.Tags) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func containsType(types []core.MemoryType, t core.MemoryType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func sharesTag(want, have []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

// decay implements spec §4.5's logarithmic temporal-decay multiplier, floored
// at 0.1 so old memories are downranked but never excluded outright.
func decay(ageDays float64) float64 {
	d := 1 / (1 + math.Log1p(ageDays))
	if d < 0.1 {
		return 0.1
	}
	return d
}

func ageDays(t time.Time) float64 {
	return time.Since(t).Hours() / 24
}

func applyStrategy(results []*core.Memory, strategy core.RankingStrategy) {
	switch strategy {
	case core.StrategyRecency:
		rankRecency(results)
	case core.StrategyImportance:
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Importance != results[j].Importance {
				return results[i].Importance > results[j].Importance
			}
			return results[i].Score > results[j].Score
		})
	case core.StrategyFrequency:
		// No first-class access counter in the data model; importance is
		// used as the proxy signal (spec §4.5, §9).
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Importance > results[j].Importance
		})
	case core.StrategyComposite:
		rankComposite(results)
	default: // StrategySimilarity
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
}

func rankRecency(results []*core.Memory) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})
	for _, m := range results {
		m.Score = decay(ageDays(m.UpdatedAt)) * maxFloat(m.Score, 1)
	}
}

// rankComposite applies spec §4.5's default ranking formula:
//
//	score = 0.3*decay(ageDays) + 0.4*(importance/4) + 0.3*similarityBoost
//
// similarityBoost rewards candidates sharing a tag with the top-similarity
// result ("semantic linking").
func rankComposite(results []*core.Memory) {
	if len(results) == 0 {
		return
	}
	topIdx := 0
	for i, m := range results {
		if m.Score > results[topIdx].Score {
			topIdx = i
		}
	}
	topTags := make(map[string]bool, len(results[topIdx].Tags))
	for _, t := range results[topIdx].Tags {
		topTags[t] = true
	}

	for _, m := range results {
		similarityBoost := m.Score
		if sharesTag(m.Tags, tagSlice(topTags)) {
			similarityBoost += 0.2
			if similarityBoost > 1 {
				similarityBoost = 1
			}
		}
		composite := 0.3*decay(ageDays(m.UpdatedAt)) + 0.4*(float64(m.Importance)/4) + 0.3*similarityBoost
		m.Score = composite
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func tagSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
