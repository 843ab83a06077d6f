package control

import (
	"sync"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// agentLocks is the sharded map of single-slot mutexes keyed by
// agent_id that the concurrency model calls for: every read-modify-
// write lifecycle sequence for a given agent is serialized through the
// one mutex for that agent_id, while distinct agents proceed fully in
// parallel. Entries are created lazily and kept for the life of the
// process; the map itself is guarded by a separate mutex since it is
// mutated far less often than the per-agent locks are taken.
type agentLocks struct {
	mu    sync.Mutex
	slots map[models.AgentID]*sync.Mutex
}

func newAgentLocks() *agentLocks {
	return &agentLocks{slots: make(map[models.AgentID]*sync.Mutex)}
}

func (l *agentLocks) get(agentID models.AgentID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.slots[agentID]
	if !ok {
		m = &sync.Mutex{}
		l.slots[agentID] = m
	}
	return m
}

// withLock serializes fn against any other lifecycle operation on the
// same agent_id.
func (l *agentLocks) withLock(agentID models.AgentID, fn func() error) error {
	m := l.get(agentID)
	m.Lock()
	defer m.Unlock()
	return fn()
}
