package edgeproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

func testOwner(t *testing.T) models.OwnerID {
	t.Helper()
	raw, err := models.NewAgentID()
	require.NoError(t, err)
	return models.OwnerID(raw)
}

func TestConnectionFairnessCap(t *testing.T) {
	f := newConnectionFairness(2)
	owner := testOwner(t)

	assert.True(t, f.acquire(owner))
	assert.True(t, f.acquire(owner))
	assert.False(t, f.acquire(owner), "third concurrent connection must be rejected")

	f.release(owner)
	assert.True(t, f.acquire(owner), "a released slot is reusable")
}

func TestConnectionFairnessIsPerOwner(t *testing.T) {
	f := newConnectionFairness(1)
	a := testOwner(t)
	b := testOwner(t)

	assert.True(t, f.acquire(a))
	assert.True(t, f.acquire(b), "one owner at the cap must not starve another")
	assert.False(t, f.acquire(a))
}

func TestConnectionFairnessReleaseClearsEntry(t *testing.T) {
	f := newConnectionFairness(1)
	owner := testOwner(t)

	require.True(t, f.acquire(owner))
	f.release(owner)

	f.mu.Lock()
	_, ok := f.counts[owner]
	f.mu.Unlock()
	assert.False(t, ok, "fully released owners must not accumulate entries")
}

func TestSessionRateLimiterAllowsBurstThenThrottles(t *testing.T) {
	limiters := newSessionRateLimiters()
	sid, err := models.NewSessionID()
	require.NoError(t, err)

	l := limiters.get(sid)
	allowed := 0
	for i := 0; i < inboundMessagesPerSecond*2; i++ {
		if l.allow() {
			allowed++
		}
	}
	assert.Equal(t, inboundMessagesPerSecond, allowed, "burst capacity equals the per-second rate")

	limiters.drop(sid)
	limiters.mu.Lock()
	_, ok := limiters.limiters[sid]
	limiters.mu.Unlock()
	assert.False(t, ok)
}
