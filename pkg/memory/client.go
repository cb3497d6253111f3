// Package memory implements the Memory Core (component C4): the
// multi-tenant facade that wires the Store, Embedding Service, LLM
// collaborator, Retrieval Engine, and Usage Ledger together behind the
// operation table a caller actually uses (storeMemory, searchMemories,
// storeEntity, getStatistics, repairMissingEmbeddings, ...).
//
// It lives in its own package, rather than pkg/core alongside the domain
// types, because it depends on pkg/retrieval and pkg/usage, which in turn
// depend on pkg/core — keeping the dependency one-directional.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/corvidlabs/memvault/pkg/core"
	"github.com/corvidlabs/memvault/pkg/embedder"
	openaiEmbedder "github.com/corvidlabs/memvault/pkg/embedder/openai"
	qwenEmbedder "github.com/corvidlabs/memvault/pkg/embedder/qwen"
	"github.com/corvidlabs/memvault/pkg/llm"
	anthropicLLM "github.com/corvidlabs/memvault/pkg/llm/anthropic"
	deepseekLLM "github.com/corvidlabs/memvault/pkg/llm/deepseek"
	ollamaLLM "github.com/corvidlabs/memvault/pkg/llm/ollama"
	openaiLLM "github.com/corvidlabs/memvault/pkg/llm/openai"
	qwenLLM "github.com/corvidlabs/memvault/pkg/llm/qwen"
	"github.com/corvidlabs/memvault/pkg/ratelimit"
	"github.com/corvidlabs/memvault/pkg/retrieval"
	"github.com/corvidlabs/memvault/pkg/storage/mysqlstore"
	"github.com/corvidlabs/memvault/pkg/storage/postgres"
	"github.com/corvidlabs/memvault/pkg/storage/sqlite"
	syncengine "github.com/corvidlabs/memvault/pkg/sync"
	"github.com/corvidlabs/memvault/pkg/telemetry"
	"github.com/corvidlabs/memvault/pkg/usage"
)

// Client is the Memory Core (C4): the entry point for storing, searching,
// and managing a tenant's memories, entities, and interactions.
//
// All methods take userID explicitly; none derive it from ambient context.
// The client is safe for concurrent use.
type Client struct {
	config *core.Config

	store    core.Store
	llm      llm.Provider
	embedder embedder.Provider

	retrieval *retrieval.Engine
	ledger    *usage.Ledger
	limiter   *ratelimit.Limiter
	log       *zap.SugaredLogger

	node *snowflake.Node

	mu sync.RWMutex
}

// New builds a Client from cfg, dialing the configured Store, LLM, and
// embedder backends.
func New(cfg *core.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := initStorage(cfg.Store)
	if err != nil {
		return nil, err
	}
	store = core.NewTenantGuardedStore(store)
	llmProvider, err := initLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}
	embedderProvider, err := initEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, core.NewMemoryError("New", err)
	}
	log, err := telemetry.NewLogger()
	if err != nil {
		log = telemetry.NewNop()
	}

	return &Client{
		config:    cfg,
		store:     store,
		llm:       llmProvider,
		embedder:  embedderProvider,
		retrieval: retrieval.New(store, embedderProvider),
		ledger:    usage.New(store, node),
		limiter:   ratelimit.New(ratelimit.Config{PerMinute: cfg.RateLimit.PerMinute}),
		log:       log,
		node:      node,
	}, nil
}

// Close releases the Store, LLM, and embedder connections.
func (c *Client) Close() error {
	var first error
	if err := c.store.Close(); err != nil && first == nil {
		first = err
	}
	if err := c.llm.Close(); err != nil && first == nil {
		first = err
	}
	if err := c.embedder.Close(); err != nil && first == nil {
		first = err
	}
	_ = c.log.Sync()
	return first
}

// StoreMemory creates a new memory for userID (spec operation storeMemory).
// It attempts to embed the content; on embedding failure the memory is
// still persisted, without an embedding, so a later repairMissingEmbeddings
// pass can fill it in.
func (c *Client) StoreMemory(ctx context.Context, userID, content string, opts ...core.StoreMemoryOption) (*core.Memory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	options := core.ApplyStoreMemoryOptions(opts)
	if options.Title == "" && content == "" {
		return nil, core.NewKindError("storeMemory", core.KindInvalidArgument, core.ErrInvalidInput)
	}

	now := time.Now()
	m := &core.Memory{
		ID:         c.node.Generate().String(),
		UserID:     userID,
		Title:      options.Title,
		Content:    content,
		Type:       options.Type,
		Importance: options.Importance,
		Tags:       options.Tags,
		EntityIDs:  options.EntityIDs,
		Metadata:   options.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if options.ExpiresAt != nil {
		t := time.Unix(*options.ExpiresAt, 0)
		m.ExpiresAt = &t
	}

	embedText := options.Title + "\n" + content
	if result, err := c.embedWithUsage(ctx, userID, embedText); err == nil {
		m.Embedding = result.Vector
	} else {
		c.log.Warnw("storeMemory: embedding failed, persisting without vector", "userId", userID, "error", err)
	}

	created, err := c.store.CreateMemory(ctx, m)
	if err != nil {
		return nil, core.NewMemoryError("storeMemory", err)
	}
	return created, nil
}

// UpdateMemory applies patch to memoryId (spec operation updateMemory). If
// the patch touches title, content, or tags, the embedding is regenerated
// best-effort (spec §4.4 property P6).
func (c *Client) UpdateMemory(ctx context.Context, userID, memoryID string, opts ...core.UpdateMemoryOption) (*core.Memory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	options := core.ApplyUpdateMemoryOptions(opts)
	patch := core.MemoryPatch{
		Title:      options.Title,
		Content:    options.Content,
		Type:       options.Type,
		Importance: options.Importance,
		Tags:       options.Tags,
		EntityIDs:  options.EntityIDs,
		Metadata:   options.Metadata,
		IsArchived: options.IsArchived,
	}

	if patch.TouchesRegenerationFields() {
		existing, err := c.store.GetMemoryByID(ctx, userID, memoryID)
		if err != nil {
			return nil, core.NewMemoryError("updateMemory", err)
		}
		title, content := existing.Title, existing.Content
		if patch.Title != nil {
			title = *patch.Title
		}
		if patch.Content != nil {
			content = *patch.Content
		}
		if result, err := c.embedWithUsage(ctx, userID, title+"\n"+content); err == nil {
			patch.Embedding = &result.Vector
		} else {
			c.log.Warnw("updateMemory: embedding regeneration failed", "userId", userID, "memoryId", memoryID, "error", err)
			var cleared []float64
			patch.Embedding = &cleared
		}
	}

	updated, err := c.store.UpdateMemory(ctx, userID, memoryID, patch)
	if err != nil {
		return nil, core.NewMemoryError("updateMemory", err)
	}
	return updated, nil
}

// DeleteMemory removes memoryId (spec operation deleteMemory).
func (c *Client) DeleteMemory(ctx context.Context, userID, memoryID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.DeleteMemory(ctx, userID, memoryID); err != nil {
		return core.NewMemoryError("deleteMemory", err)
	}
	return nil
}

// GetMemoryByID retrieves memoryId, or nil if absent or owned by another
// tenant (spec operation getMemoryById — cross-tenant access returns null,
// never an error that would leak existence).
func (c *Client) GetMemoryByID(ctx context.Context, userID, memoryID string) (*core.Memory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, err := c.store.GetMemoryByID(ctx, userID, memoryID)
	if err != nil {
		if core.KindOf(core.NewMemoryError("getMemoryById", err)) == core.KindNotFound {
			return nil, nil
		}
		return nil, core.NewMemoryError("getMemoryById", err)
	}
	return m, nil
}

// SearchMemories runs hybrid search over userID's memories (spec operation
// searchMemories), delegating to the Retrieval Engine.
func (c *Client) SearchMemories(ctx context.Context, userID, query string, opts ...core.SearchMemoriesOption) (*core.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	options := core.ApplySearchMemoriesOptions(opts, c.config.Retrieval.DefaultThreshold, c.config.Retrieval.DefaultStrategy)
	return c.retrieval.Search(ctx, userID, query, options)
}

// UnifiedSearch runs SearchMemories plus the equivalent entity/interaction
// lookups (spec operation unifiedSearch).
func (c *Client) UnifiedSearch(ctx context.Context, userID, query string, opts ...core.SearchMemoriesOption) (*core.UnifiedSearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	options := core.ApplySearchMemoriesOptions(opts, c.config.Retrieval.DefaultThreshold, c.config.Retrieval.DefaultStrategy)
	return c.retrieval.UnifiedSearch(ctx, userID, query, options)
}

// StoreEntity creates a new entity for userID (spec operation storeEntity).
func (c *Client) StoreEntity(ctx context.Context, userID, name string, opts ...core.StoreEntityOption) (*core.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	options := core.ApplyStoreEntityOptions(opts)
	now := time.Now()
	e := &core.Entity{
		ID:          c.node.Generate().String(),
		UserID:      userID,
		Name:        name,
		Type:        options.Type,
		Description: options.Description,
		Company:     options.Company,
		Title:       options.Title,
		Email:       options.Email,
		Phone:       options.Phone,
		Website:     options.Website,
		Importance:  options.Importance,
		Tags:        options.Tags,
		Notes:       options.Notes,
		Metadata:    options.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := c.store.CreateEntity(ctx, e)
	if err != nil {
		return nil, core.NewMemoryError("storeEntity", err)
	}
	return created, nil
}

// UpdateEntity applies patch to entityId (spec operation updateEntity).
func (c *Client) UpdateEntity(ctx context.Context, userID, entityID string, patch core.EntityPatch) (*core.Entity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	updated, err := c.store.UpdateEntity(ctx, userID, entityID, patch)
	if err != nil {
		return nil, core.NewMemoryError("updateEntity", err)
	}
	return updated, nil
}

// DeleteEntity removes entityId (spec operation deleteEntity).
func (c *Client) DeleteEntity(ctx context.Context, userID, entityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.DeleteEntity(ctx, userID, entityID); err != nil {
		return core.NewMemoryError("deleteEntity", err)
	}
	return nil
}

// GetEntity retrieves entityId, or nil if absent or cross-tenant (spec
// operation getEntity).
func (c *Client) GetEntity(ctx context.Context, userID, entityID string) (*core.Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, err := c.store.GetEntityByID(ctx, userID, entityID)
	if err != nil {
		if core.KindOf(core.NewMemoryError("getEntity", err)) == core.KindNotFound {
			return nil, nil
		}
		return nil, core.NewMemoryError("getEntity", err)
	}
	return e, nil
}

// SearchEntities runs free-text search over userID's entities (spec
// operation searchEntities).
func (c *Client) SearchEntities(ctx context.Context, userID, query string, opts ...core.SearchEntitiesOption) ([]*core.Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	options := core.ApplySearchEntitiesOptions(opts)
	entities, err := c.store.SearchEntitiesByText(ctx, userID, query, options.Limit)
	if err != nil {
		return nil, core.NewMemoryError("searchEntities", err)
	}
	if options.Type != nil {
		filtered := entities[:0:0]
		for _, e := range entities {
			if e.Type == *options.Type {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
	}
	return entities, nil
}

// CreateInteraction logs a conversation entry (spec operation createInteraction).
func (c *Client) CreateInteraction(ctx context.Context, userID, agentName, content, context_ string, metadata map[string]interface{}) (*core.Interaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := &core.Interaction{
		ID:        c.node.Generate().String(),
		UserID:    userID,
		AgentName: agentName,
		Content:   content,
		Context:   context_,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	created, err := c.store.CreateInteraction(ctx, i)
	if err != nil {
		return nil, core.NewMemoryError("createInteraction", err)
	}
	return created, nil
}

// ListRecentInteractions returns userID's most recent interactions (spec
// operation listRecentInteractions).
func (c *Client) ListRecentInteractions(ctx context.Context, userID string, limit int) ([]*core.Interaction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	interactions, err := c.store.ListRecentInteractions(ctx, userID, limit)
	if err != nil {
		return nil, core.NewMemoryError("listRecentInteractions", err)
	}
	return interactions, nil
}

// GetStatistics reports userID's memory/entity/interaction counts and
// embedding coverage (spec operation getStatistics).
func (c *Client) GetStatistics(ctx context.Context, userID string) (*core.Statistics, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	memories, err := c.store.ListMemories(ctx, userID, core.UnboundedLimit)
	if err != nil {
		return nil, core.NewMemoryError("getStatistics", err)
	}
	entities, err := c.store.ListEntities(ctx, userID, core.UnboundedLimit)
	if err != nil {
		return nil, core.NewMemoryError("getStatistics", err)
	}
	interactions, err := c.store.ListRecentInteractions(ctx, userID, core.UnboundedLimit)
	if err != nil {
		return nil, core.NewMemoryError("getStatistics", err)
	}

	stats := &core.Statistics{
		TotalMemories:     len(memories),
		TotalEntities:     len(entities),
		TotalInteractions: len(interactions),
		MemoriesByType:    make(map[core.MemoryType]int),
		EntitiesByType:    make(map[core.EntityType]int),
	}
	for _, m := range memories {
		stats.MemoriesByType[m.Type]++
		if m.HasEmbedding() {
			stats.MemoriesWithEmbedding++
		} else {
			stats.MemoriesMissingEmbedding++
		}
	}
	for _, e := range entities {
		stats.EntitiesByType[e.Type]++
	}

	if stats.TotalMemories > 0 {
		stats.VectorSearchHealth = float64(stats.MemoriesWithEmbedding) / float64(stats.TotalMemories)
	} else {
		stats.VectorSearchHealth = 1.0
	}
	if stats.VectorSearchHealth < 0.9 {
		stats.Recommendation = "run repairMissingEmbeddings to restore full vector search coverage"
	}
	return stats, nil
}

// RepairMissingEmbeddings embeds up to batchSize memories currently missing
// an embedding (spec operation repairMissingEmbeddings).
func (c *Client) RepairMissingEmbeddings(ctx context.Context, userID string, batchSize int) (*core.RepairResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	memories, err := c.store.GetMemoriesMissingEmbedding(ctx, userID, batchSize)
	if err != nil {
		return nil, core.NewMemoryError("repairMissingEmbeddings", err)
	}

	result := &core.RepairResult{Scanned: len(memories)}
	for _, m := range memories {
		embResult, err := c.embedWithUsage(ctx, userID, m.Title+"\n"+m.Content)
		if err != nil {
			result.Failed++
			continue
		}
		embedding := embResult.Vector
		if _, err := c.store.UpdateMemory(ctx, userID, m.ID, core.MemoryPatch{Embedding: &embedding}); err != nil {
			result.Failed++
			continue
		}
		result.Updated++
	}
	return result, nil
}

// embedWithUsage embeds text and appends the corresponding usage record.
func (c *Client) embedWithUsage(ctx context.Context, userID, text string) (embedder.Result, error) {
	result, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return embedder.Result{}, core.NewMemoryError("embed", err)
	}
	cost := c.embedder.EstimateCost(text)
	if err := c.ledger.Record(ctx, userID, core.ProviderEmbedding, c.config.Embedder.Model, result.Tokens, cost, "embed"); err != nil {
		c.log.Warnw("embedWithUsage: usage record failed", "userId", userID, "error", err)
	}
	return result, nil
}

// RateLimiter exposes the per-user token bucket so transports (HTTP, RPC)
// can gate requests before calling into the Memory Core.
func (c *Client) RateLimiter() *ratelimit.Limiter {
	return c.limiter
}

// UsageReporter builds a Cost Reporter (C7) over this client's Store.
func (c *Client) UsageReporter() *usage.Reporter {
	return usage.NewReporter(c.store)
}

// Store exposes the underlying Store for components (e.g. the Sync Engine)
// that must operate on it directly.
func (c *Client) Store() core.Store {
	return c.store
}

// LLM exposes the underlying LLM provider for components (e.g. the Sync
// Engine's dedup classifier) that must operate on it directly.
func (c *Client) LLM() llm.Provider {
	return c.llm
}

// NewSyncEngine builds the Deduplication & Bidirectional Sync Engine (C6)
// against this client's Store and LLM, reconciling person-entities with
// source on demand via Engine.Run.
func (c *Client) NewSyncEngine(source syncengine.ContactSource) *syncengine.Engine {
	return syncengine.New(c.store, source, c.llm, c.config.Sync, c.log)
}

func initStorage(cfg core.StoreConfig) (core.Store, error) {
	switch cfg.Provider {
	case "postgres":
		sslMode, _ := cfg.Config["ssl_mode"].(string)
		if sslMode == "" {
			sslMode = "disable"
		}
		return postgres.NewClient(&postgres.Config{
			Host:     stringField(cfg.Config, "host"),
			Port:     intField(cfg.Config, "port"),
			User:     stringField(cfg.Config, "user"),
			Password: stringField(cfg.Config, "password"),
			DBName:   stringField(cfg.Config, "db_name"),
			SSLMode:  sslMode,
		})
	case "mysql":
		return mysqlstore.NewClient(&mysqlstore.Config{
			Host:     stringField(cfg.Config, "host"),
			Port:     intField(cfg.Config, "port"),
			User:     stringField(cfg.Config, "user"),
			Password: stringField(cfg.Config, "password"),
			DBName:   stringField(cfg.Config, "db_name"),
		})
	default: // sqlite
		return sqlite.NewClient(&sqlite.Config{
			DBPath: stringField(cfg.Config, "db_path"),
		})
	}
}

func initLLM(cfg core.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "qwen":
		return qwenLLM.NewClient(&qwenLLM.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "deepseek":
		return deepseekLLM.NewClient(&deepseekLLM.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "ollama":
		return ollamaLLM.NewClient(&ollamaLLM.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "anthropic":
		return anthropicLLM.NewClient(&anthropicLLM.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	default:
		return openaiLLM.NewClient(&openaiLLM.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	}
}

func initEmbedder(cfg core.EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "qwen":
		return qwenEmbedder.NewClient(&qwenEmbedder.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
			Dimensions: cfg.Dimensions, PricePerMillionTokens: cfg.PricePerMillionTokens,
		})
	default:
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL,
			Dimensions: cfg.Dimensions, PricePerMillionTokens: cfg.PricePerMillionTokens,
		})
	}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) int {
	if v, ok := m[key].(int); ok {
		return v
	}
	return 0
}
