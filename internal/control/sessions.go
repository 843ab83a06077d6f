package control

import (
	"context"
	"time"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// CreateSession issues a new session: read and own-check the agent,
// auto-wake it if Hibernating, require the resulting state be Running
// or Idle, create the session record, and bump an Idle agent back to
// Running since it now has an attachment.
func (c *Core) CreateSession(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Session, error) {
	agent, err := c.getOwned(ownerID, agentID)
	if err != nil {
		return nil, err
	}

	if agent.Status == models.StatusHibernating {
		agent, err = c.wakeSequence(ctx, ownerID, agentID, "auto")
		if err != nil {
			return nil, err
		}
	}

	if !in(agent.Status, models.StatusRunning, models.StatusIdle) {
		return nil, errInvalidState(agent.Status, models.StatusRunning, models.StatusIdle)
	}

	sessionID, err := models.NewSessionID()
	if err != nil {
		return nil, apierrors.NewInternal("generating session_id", err)
	}
	session := &models.Session{
		SessionID: sessionID,
		AgentID:   agentID,
		OwnerID:   agent.OwnerID,
		Status:    models.SessionActive,
		CreatedAt: time.Now(),
	}
	if err := c.store.PutSession(session); err != nil {
		return nil, err
	}

	if agent.Status == models.StatusIdle {
		if err := c.locks.withLock(agentID, func() error {
			return c.store.UpdateAgentStatus(agentID, models.StatusRunning, time.Now())
		}); err != nil {
			return nil, err
		}
	}

	return session, nil
}

// GetSession returns the session if ownerID is its owner.
func (c *Core) GetSession(ownerID models.OwnerID, sessionID models.SessionID) (*models.Session, error) {
	session, err := c.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, errNotOwner()
	}
	return session, nil
}

// ResolveAgentEndpoint implements the edge proxy's endpoint resolution:
// get_agent, require Running, then get_pod_endpoint. Any failure along
// the way collapses to EndpointUnavailable.
func (c *Core) ResolveAgentEndpoint(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (string, error) {
	agent, err := c.getOwned(ownerID, agentID)
	if err != nil {
		return "", err
	}
	if agent.Status != models.StatusRunning {
		return "", apierrors.NewUnavailable("agent is not running")
	}
	endpoint, err := c.orch.GetPodEndpoint(ctx, agentID)
	if err != nil {
		return "", apierrors.NewUnavailable("agent endpoint unavailable")
	}
	return endpoint, nil
}
