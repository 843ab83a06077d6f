package orchestrator

import (
	"sync"
	"time"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// endpointTTL is how long a resolved endpoint is trusted before a fresh
// orchestrator query is required.
const endpointTTL = 60 * time.Second

type endpointEntry struct {
	endpoint  string
	fetchedAt time.Time
}

// EndpointCache maps agent_id to its last-known "ip:port" endpoint.
// Readers are common (every proxied stream request), writers are rare
// (pod watch events and TTL-driven refetches), so it is guarded by a
// RWMutex per the concurrency model.
type EndpointCache struct {
	mu      sync.RWMutex
	entries map[models.AgentID]endpointEntry
}

// NewEndpointCache returns an empty EndpointCache.
func NewEndpointCache() *EndpointCache {
	return &EndpointCache{entries: make(map[models.AgentID]endpointEntry)}
}

// Get returns the cached endpoint if present and not expired.
func (c *EndpointCache) Get(agentID models.AgentID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[agentID]
	if !ok {
		return "", false
	}
	if time.Since(e.fetchedAt) > endpointTTL {
		return "", false
	}
	return e.endpoint, true
}

// Set records a freshly resolved endpoint.
func (c *EndpointCache) Set(agentID models.AgentID, endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agentID] = endpointEntry{endpoint: endpoint, fetchedAt: time.Now()}
}

// Evict removes any cached endpoint for agentID. Called on pod
// deletion (observed on the watch stream or via explicit
// TerminateAgent); an observed pod-IP change overwrites the entry via
// Set instead.
func (c *EndpointCache) Evict(agentID models.AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentID)
}
