package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/memvault/pkg/core"
)

func TestConfigValidateRequiresProviders(t *testing.T) {
	cfg := &core.Config{}
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(cfg.Validate()))

	cfg.Store.Provider = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg.LLM.Provider = "openai"
	assert.Error(t, cfg.Validate())

	cfg.Embedder.Provider = "openai"
	assert.NoError(t, cfg.Validate())
}
