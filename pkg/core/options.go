// Package core provides the data model of the multi-tenant memory service:
// users, memories, entities, interactions and usage records.
package core

// StoreMemoryOption configures a storeMemory call (spec §4.4).
type StoreMemoryOption func(*StoreMemoryOptions)

// StoreMemoryOptions are the optional fields of a storeMemory call; Type
// and Importance default per spec §4.4 when left unset, Title stays empty.
type StoreMemoryOptions struct {
	Title      string
	Type       MemoryType
	Importance Importance
	Tags       []string
	EntityIDs  []string
	Metadata   map[string]interface{}
	ExpiresAt  *int64 // unix seconds; nil means no expiry
}

// WithMemoryTitle sets the title for storeMemory.
func WithMemoryTitle(title string) StoreMemoryOption {
	return func(o *StoreMemoryOptions) { o.Title = title }
}

// WithMemoryTypeOpt sets the memory type for storeMemory.
func WithMemoryTypeOpt(t MemoryType) StoreMemoryOption {
	return func(o *StoreMemoryOptions) { o.Type = t }
}

// WithMemoryImportance sets the importance for storeMemory.
func WithMemoryImportance(i Importance) StoreMemoryOption {
	return func(o *StoreMemoryOptions) { o.Importance = i }
}

// WithMemoryImportanceScore sets the importance for storeMemory from a
// legacy 0..1 float score (e.g. an LLM-produced salience score, or a row
// read from a source that predates the 1..4 enum), normalizing it via
// NormalizeImportance.
func WithMemoryImportanceScore(score float64) StoreMemoryOption {
	return func(o *StoreMemoryOptions) { o.Importance = NormalizeImportance(score) }
}

// WithMemoryTags sets the tags for storeMemory.
func WithMemoryTags(tags []string) StoreMemoryOption {
	return func(o *StoreMemoryOptions) { o.Tags = tags }
}

// WithMemoryEntityIDs links entity ids for storeMemory.
func WithMemoryEntityIDs(ids []string) StoreMemoryOption {
	return func(o *StoreMemoryOptions) { o.EntityIDs = ids }
}

// WithMemoryMetadata sets free-form metadata for storeMemory.
func WithMemoryMetadata(metadata map[string]interface{}) StoreMemoryOption {
	return func(o *StoreMemoryOptions) { o.Metadata = metadata }
}

func ApplyStoreMemoryOptions(opts []StoreMemoryOption) *StoreMemoryOptions {
	options := &StoreMemoryOptions{
		Type:       MemoryTypeMemory,
		Importance: ImportanceMedium,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// SearchMemoriesOption configures a searchMemories call (spec §4.5).
type SearchMemoriesOption func(*SearchMemoriesOptions)

// SearchMemoriesOptions are the optional fields of a searchMemories call.
type SearchMemoriesOptions struct {
	// Strategy selects the ranking formula. Default: StrategyComposite.
	Strategy RankingStrategy

	// Threshold is the minimum vector similarity for a candidate to be kept
	// before ranking. Default comes from RetrievalConfig.DefaultThreshold.
	Threshold float64

	// Limit caps the number of results returned. Default: 10.
	Limit int

	// MemoryTypes restricts results to these types when non-empty.
	MemoryTypes []MemoryType

	// Tags restricts results to memories carrying at least one of these tags.
	Tags []string

	IncludeArchived bool
}

// WithSearchStrategy sets the ranking strategy for searchMemories.
func WithSearchStrategy(strategy RankingStrategy) SearchMemoriesOption {
	return func(o *SearchMemoriesOptions) { o.Strategy = strategy }
}

// WithSearchThreshold sets the minimum similarity for searchMemories.
func WithSearchThreshold(threshold float64) SearchMemoriesOption {
	return func(o *SearchMemoriesOptions) { o.Threshold = threshold }
}

// WithSearchLimit sets the result cap for searchMemories.
func WithSearchLimit(limit int) SearchMemoriesOption {
	return func(o *SearchMemoriesOptions) { o.Limit = limit }
}

// WithSearchMemoryTypes restricts searchMemories to the given types.
func WithSearchMemoryTypes(types []MemoryType) SearchMemoriesOption {
	return func(o *SearchMemoriesOptions) { o.MemoryTypes = types }
}

// WithSearchTags restricts searchMemories to memories carrying any of tags.
func WithSearchTags(tags []string) SearchMemoriesOption {
	return func(o *SearchMemoriesOptions) { o.Tags = tags }
}

// WithSearchIncludeArchived includes archived memories in searchMemories results.
func WithSearchIncludeArchived(include bool) SearchMemoriesOption {
	return func(o *SearchMemoriesOptions) { o.IncludeArchived = include }
}

func ApplySearchMemoriesOptions(opts []SearchMemoriesOption, defaultThreshold float64, defaultStrategy RankingStrategy) *SearchMemoriesOptions {
	options := &SearchMemoriesOptions{
		Strategy:  defaultStrategy,
		Threshold: defaultThreshold,
		Limit:     10,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// UpdateMemoryOption configures an updateMemory call.
type UpdateMemoryOption func(*UpdateMemoryOptions)

// UpdateMemoryOptions carries the patchable fields of updateMemory. A nil
// pointer field means "leave unchanged"; see MemoryPatch, which this
// mirrors at the Memory Core boundary.
type UpdateMemoryOptions struct {
	Title      *string
	Content    *string
	Type       *MemoryType
	Importance *Importance
	Tags       *[]string
	EntityIDs  *[]string
	Metadata   map[string]interface{}
	IsArchived *bool
}

// WithUpdateTitle sets a new title for updateMemory.
func WithUpdateTitle(title string) UpdateMemoryOption {
	return func(o *UpdateMemoryOptions) { o.Title = &title }
}

// WithUpdateContent sets new content for updateMemory; this invalidates the
// stored embedding and schedules regeneration (spec §4.4, property P6).
func WithUpdateContent(content string) UpdateMemoryOption {
	return func(o *UpdateMemoryOptions) { o.Content = &content }
}

// WithUpdateType sets a new memory type for updateMemory.
func WithUpdateType(t MemoryType) UpdateMemoryOption {
	return func(o *UpdateMemoryOptions) { o.Type = &t }
}

// WithUpdateImportance sets a new importance for updateMemory.
func WithUpdateImportance(i Importance) UpdateMemoryOption {
	return func(o *UpdateMemoryOptions) { o.Importance = &i }
}

// WithUpdateTags sets new tags for updateMemory; this invalidates the stored
// embedding, same as WithUpdateContent.
func WithUpdateTags(tags []string) UpdateMemoryOption {
	return func(o *UpdateMemoryOptions) { o.Tags = &tags }
}

// WithUpdateEntityIDs sets new linked entity ids for updateMemory.
func WithUpdateEntityIDs(ids []string) UpdateMemoryOption {
	return func(o *UpdateMemoryOptions) { o.EntityIDs = &ids }
}

// WithUpdateMetadata replaces the metadata map for updateMemory.
func WithUpdateMetadata(metadata map[string]interface{}) UpdateMemoryOption {
	return func(o *UpdateMemoryOptions) { o.Metadata = metadata }
}

// WithUpdateArchived sets the archived flag for updateMemory.
func WithUpdateArchived(archived bool) UpdateMemoryOption {
	return func(o *UpdateMemoryOptions) { o.IsArchived = &archived }
}

func ApplyUpdateMemoryOptions(opts []UpdateMemoryOption) *UpdateMemoryOptions {
	options := &UpdateMemoryOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// StoreEntityOption configures a storeEntity call.
type StoreEntityOption func(*StoreEntityOptions)

// StoreEntityOptions are the optional fields of a storeEntity call.
type StoreEntityOptions struct {
	Type        EntityType
	Description string
	Company     string
	Title       string
	Email       string
	Phone       string
	Website     string
	Importance  Importance
	Tags        []string
	Notes       string
	Metadata    map[string]interface{}
}

// WithEntityType sets the entity type for storeEntity.
func WithEntityType(t EntityType) StoreEntityOption {
	return func(o *StoreEntityOptions) { o.Type = t }
}

// WithEntityDescription sets the description for storeEntity.
func WithEntityDescription(desc string) StoreEntityOption {
	return func(o *StoreEntityOptions) { o.Description = desc }
}

// WithEntityCompany sets the company for storeEntity.
func WithEntityCompany(company string) StoreEntityOption {
	return func(o *StoreEntityOptions) { o.Company = company }
}

// WithEntityImportanceScore sets the importance for storeEntity from a
// legacy 0..1 float score, normalizing it via NormalizeImportance — the
// entity-side counterpart of WithMemoryImportanceScore.
func WithEntityImportanceScore(score float64) StoreEntityOption {
	return func(o *StoreEntityOptions) { o.Importance = NormalizeImportance(score) }
}

// WithEntityContact sets the email and phone for storeEntity.
func WithEntityContact(email, phone string) StoreEntityOption {
	return func(o *StoreEntityOptions) {
		o.Email = email
		o.Phone = phone
	}
}

// WithEntityTags sets the tags for storeEntity.
func WithEntityTags(tags []string) StoreEntityOption {
	return func(o *StoreEntityOptions) { o.Tags = tags }
}

// WithEntityMetadata sets free-form metadata for storeEntity.
func WithEntityMetadata(metadata map[string]interface{}) StoreEntityOption {
	return func(o *StoreEntityOptions) { o.Metadata = metadata }
}

func ApplyStoreEntityOptions(opts []StoreEntityOption) *StoreEntityOptions {
	options := &StoreEntityOptions{
		Type:       EntityTypePerson,
		Importance: ImportanceMedium,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// SearchEntitiesOption configures a searchEntities call.
type SearchEntitiesOption func(*SearchEntitiesOptions)

// SearchEntitiesOptions are the optional fields of a searchEntities call.
type SearchEntitiesOptions struct {
	Limit int
	Type  *EntityType
}

// WithEntitySearchLimit sets the result cap for searchEntities.
func WithEntitySearchLimit(limit int) SearchEntitiesOption {
	return func(o *SearchEntitiesOptions) { o.Limit = limit }
}

// WithEntitySearchType restricts searchEntities to one entity type.
func WithEntitySearchType(t EntityType) SearchEntitiesOption {
	return func(o *SearchEntitiesOptions) { o.Type = &t }
}

func ApplySearchEntitiesOptions(opts []SearchEntitiesOption) *SearchEntitiesOptions {
	options := &SearchEntitiesOptions{Limit: 10}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
