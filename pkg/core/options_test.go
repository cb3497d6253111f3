package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/memvault/pkg/core"
)

func TestApplyStoreMemoryOptionsDefaults(t *testing.T) {
	opts := core.ApplyStoreMemoryOptions(nil)
	assert.Equal(t, core.MemoryTypeMemory, opts.Type)
	assert.Equal(t, core.ImportanceMedium, opts.Importance)
}

func TestApplyStoreMemoryOptionsOverride(t *testing.T) {
	opts := core.ApplyStoreMemoryOptions([]core.StoreMemoryOption{
		core.WithMemoryTitle("t"),
		core.WithMemoryTypeOpt(core.MemoryTypeProfessional),
		core.WithMemoryTags([]string{"a", "b"}),
	})
	assert.Equal(t, "t", opts.Title)
	assert.Equal(t, core.MemoryTypeProfessional, opts.Type)
	assert.Equal(t, []string{"a", "b"}, opts.Tags)
}

func TestApplySearchMemoriesOptionsUsesGivenDefaults(t *testing.T) {
	opts := core.ApplySearchMemoriesOptions(nil, 0.75, core.StrategyComposite)
	assert.Equal(t, core.StrategyComposite, opts.Strategy)
	assert.Equal(t, 0.75, opts.Threshold)
	assert.Equal(t, 10, opts.Limit)
}

func TestApplySearchMemoriesOptionsOverride(t *testing.T) {
	opts := core.ApplySearchMemoriesOptions([]core.SearchMemoriesOption{
		core.WithSearchLimit(5),
		core.WithSearchStrategy(core.StrategySimilarity),
	}, 0.5, core.StrategyComposite)
	assert.Equal(t, 5, opts.Limit)
	assert.Equal(t, core.StrategySimilarity, opts.Strategy)
}

func TestApplyUpdateMemoryOptionsLeavesUnsetFieldsNil(t *testing.T) {
	opts := core.ApplyUpdateMemoryOptions([]core.UpdateMemoryOption{core.WithUpdateTitle("new")})
	assert.NotNil(t, opts.Title)
	assert.Equal(t, "new", *opts.Title)
	assert.Nil(t, opts.Content)
	assert.Nil(t, opts.IsArchived)
}

func TestApplyStoreEntityOptionsDefaults(t *testing.T) {
	opts := core.ApplyStoreEntityOptions(nil)
	assert.Equal(t, core.EntityTypePerson, opts.Type)
	assert.Equal(t, core.ImportanceMedium, opts.Importance)
}

func TestWithEntityContactSetsBothFields(t *testing.T) {
	opts := core.ApplyStoreEntityOptions([]core.StoreEntityOption{core.WithEntityContact("a@b.com", "555")})
	assert.Equal(t, "a@b.com", opts.Email)
	assert.Equal(t, "555", opts.Phone)
}

func TestApplySearchEntitiesOptionsDefaultLimit(t *testing.T) {
	opts := core.ApplySearchEntitiesOptions(nil)
	assert.Equal(t, 10, opts.Limit)
	assert.Nil(t, opts.Type)
}

func TestWithMemoryImportanceScoreNormalizesLegacyFloat(t *testing.T) {
	opts := core.ApplyStoreMemoryOptions([]core.StoreMemoryOption{core.WithMemoryImportanceScore(0.9)})
	assert.Equal(t, core.ImportanceCritical, opts.Importance)
}

func TestWithEntityImportanceScoreNormalizesLegacyFloat(t *testing.T) {
	opts := core.ApplyStoreEntityOptions([]core.StoreEntityOption{core.WithEntityImportanceScore(0.1)})
	assert.Equal(t, core.ImportanceLow, opts.Importance)
}
