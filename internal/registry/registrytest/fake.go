// Package registrytest provides an in-memory registry.Store for
// deterministic unit tests of the control core and orchestrator driver
// that need no database file.
package registrytest

import (
	"sync"
	"time"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// Fake is a goroutine-safe, in-memory implementation of registry.Store.
type Fake struct {
	mu       sync.Mutex
	agents   map[models.AgentID]*models.Agent
	sessions map[models.SessionID]*models.Session
	users    map[models.OwnerID]*models.CachedUser
}

// New returns an empty Fake store.
func New() *Fake {
	return &Fake{
		agents:   make(map[models.AgentID]*models.Agent),
		sessions: make(map[models.SessionID]*models.Session),
		users:    make(map[models.OwnerID]*models.CachedUser),
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (f *Fake) PutAgent(a *models.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents[a.AgentID] = clone(a)
	return nil
}

func (f *Fake) GetAgent(agentID models.AgentID) (*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return nil, apierrors.NewNotFound("agent not found")
	}
	return clone(a), nil
}

func (f *Fake) ListAgentsByOwner(ownerID models.OwnerID) ([]*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Agent
	for _, a := range f.agents {
		if a.OwnerID == ownerID {
			out = append(out, clone(a))
		}
	}
	return out, nil
}

func (f *Fake) CountAgentsByOwner(ownerID models.OwnerID) (int, error) {
	agents, _ := f.ListAgentsByOwner(ownerID)
	return len(agents), nil
}

func (f *Fake) UpdateAgentStatus(agentID models.AgentID, newStatus models.AgentStatus, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[agentID]
	if !ok {
		return apierrors.NewNotFound("agent not found")
	}
	a.Status = newStatus
	a.UpdatedAt = now
	return nil
}

func (f *Fake) DeleteAgent(agentID models.AgentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[agentID]; !ok {
		return apierrors.NewNotFound("agent not found")
	}
	delete(f.agents, agentID)
	return nil
}

func (f *Fake) ListAllAgents() ([]*models.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		out = append(out, clone(a))
	}
	return out, nil
}

func (f *Fake) PutSession(s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.SessionID] = clone(s)
	return nil
}

func (f *Fake) GetSession(sessionID models.SessionID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, apierrors.NewNotFound("session not found")
	}
	return clone(s), nil
}

func (f *Fake) UpdateSessionStatus(sessionID models.SessionID, status models.SessionStatus, closedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return apierrors.NewNotFound("session not found")
	}
	s.Status = status
	if status == models.SessionClosed {
		s.ClosedAt = closedAt
	}
	return nil
}

func (f *Fake) ListSessionsByAgent(agentID models.AgentID) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Session
	for _, s := range f.sessions {
		if s.AgentID == agentID {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

func (f *Fake) PutUser(u *models.CachedUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.OwnerID] = clone(u)
	return nil
}

func (f *Fake) GetUser(ownerID models.OwnerID) (*models.CachedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[ownerID]
	if !ok {
		return nil, apierrors.NewNotFound("user not found")
	}
	return clone(u), nil
}

func (f *Fake) Close() error { return nil }

// HealthCheck always reports healthy, mirroring the production
// registry's cheap read-transaction probe.
func (f *Fake) HealthCheck() error { return nil }
