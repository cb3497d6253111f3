package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/memvault/pkg/core"
)

func TestEntityExternalUIDUnsyncedReturnsFalse(t *testing.T) {
	e := &core.Entity{}
	_, ok := e.ExternalUID()
	assert.False(t, ok)
}

func TestEntitySetExternalSyncRoundTrips(t *testing.T) {
	e := &core.Entity{}
	e.SetExternalSync("uid-1", "etag-1")

	uid, ok := e.ExternalUID()
	assert.True(t, ok)
	assert.Equal(t, "uid-1", uid)

	etag, ok := e.ExternalETag()
	assert.True(t, ok)
	assert.Equal(t, "etag-1", etag)
}

func TestMemoryExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := &core.Memory{ExpiresAt: &past}
	notExpired := &core.Memory{ExpiresAt: &future}
	noExpiry := &core.Memory{}

	assert.True(t, expired.Expired(now))
	assert.False(t, notExpired.Expired(now))
	assert.False(t, noExpiry.Expired(now))
}
