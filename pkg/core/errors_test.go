package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/memvault/pkg/core"
)

func TestNewMemoryErrorClassifiesSentinel(t *testing.T) {
	err := core.NewMemoryError("getMemory", core.ErrNotFound)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestNewMemoryErrorNilIsNil(t *testing.T) {
	assert.Nil(t, core.NewMemoryError("op", nil))
}

func TestNewMemoryErrorUnrecognizedSentinelDefaultsInternal(t *testing.T) {
	err := core.NewMemoryError("op", errors.New("boom"))
	assert.Equal(t, core.KindInternal, core.KindOf(err))
}

func TestNewKindErrorBypassesClassification(t *testing.T) {
	err := core.NewKindError("sync", core.KindExternalConflict, core.ErrNotFound)
	assert.Equal(t, core.KindExternalConflict, core.KindOf(err))
}

func TestKindOfNonMemoryErrorDefaultsInternal(t *testing.T) {
	assert.Equal(t, core.KindInternal, core.KindOf(errors.New("plain")))
}

func TestMemoryErrorMessageFormat(t *testing.T) {
	err := core.NewKindError("storeMemory", core.KindInvalidArgument, core.ErrInvalidInput)
	assert.Equal(t, "memvault: storeMemory: INVALID_ARGUMENT: invalid input", err.Error())
}
