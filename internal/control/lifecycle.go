package control

import (
	"context"
	"time"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/metrics"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// CreateAgent validates name and spec, enforces the per-owner quota,
// and persists a new agent in Provisioning, then schedules its pod.
func (c *Core) CreateAgent(ctx context.Context, ownerID models.OwnerID, name string, spec models.AgentSpec) (*models.Agent, error) {
	if err := models.ValidateName(name); err != nil {
		return nil, apierrors.NewConflict(err.Error())
	}
	if err := models.ValidateSpec(&spec); err != nil {
		return nil, apierrors.NewConflict(err.Error())
	}

	count, err := c.store.CountAgentsByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	if count >= c.cfg.MaxAgentsPerOwner {
		return nil, errQuotaExceeded(c.cfg.MaxAgentsPerOwner)
	}

	agentID, err := models.NewAgentID()
	if err != nil {
		return nil, apierrors.NewInternal("generating agent_id", err)
	}

	now := time.Now()
	agent := &models.Agent{
		AgentID:   agentID,
		OwnerID:   ownerID,
		Name:      name,
		Status:    models.StatusProvisioning,
		Spec:      spec,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.PutAgent(agent); err != nil {
		return nil, err
	}

	if err := c.orch.ScheduleAgent(ctx, agentID, ownerID, spec); err != nil {
		c.log.Error().Err(err).Str("agent_id", agentID.String()).Msg("create_agent: schedule failed")
		return nil, err
	}

	c.log.Info().Str("agent_id", agentID.String()).Str("owner_id", ownerID.String()).Msg("agent created")
	return agent, nil
}

// getOwned reads an agent and enforces ownership, returning a
// Forbidden error on mismatch. Every operation that names an agent_id
// goes through here before touching anything.
func (c *Core) getOwned(ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error) {
	agent, err := c.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	if agent.OwnerID != ownerID {
		c.log.Warn().Str("agent_id", agentID.String()).Str("caller_owner_id", ownerID.String()).Msg("ownership check failed")
		return nil, errNotOwner()
	}
	return agent, nil
}

// GetAgent returns the agent if ownerID owns it.
func (c *Core) GetAgent(ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error) {
	return c.getOwned(ownerID, agentID)
}

// ListAgents returns every agent owned by ownerID, in agent_id byte
// order.
func (c *Core) ListAgents(ownerID models.OwnerID) ([]*models.Agent, error) {
	return c.store.ListAgentsByOwner(ownerID)
}

// DeleteAgent removes an agent from the registry. Only permitted from
// the terminal states Stopped or Error.
func (c *Core) DeleteAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) error {
	return c.locks.withLock(agentID, func() error {
		agent, err := c.getOwned(ownerID, agentID)
		if err != nil {
			return err
		}
		if !in(agent.Status, models.StatusStopped, models.StatusError) {
			return errInvalidState(agent.Status, models.StatusStopped, models.StatusError)
		}
		if err := c.closeActiveSessions(agentID); err != nil {
			return err
		}
		return c.store.DeleteAgent(agentID)
	})
}

// StartAgent transitions an agent from Stopped or Hibernating back to
// Provisioning and schedules a fresh pod.
func (c *Core) StartAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error) {
	var result *models.Agent
	err := c.locks.withLock(agentID, func() error {
		agent, err := c.getOwned(ownerID, agentID)
		if err != nil {
			return err
		}
		if !in(agent.Status, models.StatusStopped, models.StatusHibernating) {
			return errInvalidState(agent.Status, models.StatusStopped, models.StatusHibernating)
		}
		if err := c.store.UpdateAgentStatus(agentID, models.StatusProvisioning, time.Now()); err != nil {
			return err
		}
		if err := c.orch.ScheduleAgent(ctx, agentID, ownerID, agent.Spec); err != nil {
			return err
		}
		agent.Status = models.StatusProvisioning
		result = agent
		return nil
	})
	return result, err
}

// StopAgent transitions Running, Idle, Hibernating, or Error to
// Stopping and commands the orchestrator to terminate the pod. Sessions
// are closed immediately, matching the design notes' resolution of the
// stop-vs-drain open question.
func (c *Core) StopAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error) {
	var result *models.Agent
	err := c.locks.withLock(agentID, func() error {
		agent, err := c.getOwned(ownerID, agentID)
		if err != nil {
			return err
		}
		if !in(agent.Status, models.StatusRunning, models.StatusIdle, models.StatusHibernating, models.StatusError) {
			return errInvalidState(agent.Status, models.StatusRunning, models.StatusIdle, models.StatusHibernating, models.StatusError)
		}
		if err := c.closeActiveSessions(agentID); err != nil {
			return err
		}
		if err := c.store.UpdateAgentStatus(agentID, models.StatusStopping, time.Now()); err != nil {
			return err
		}
		if err := c.orch.TerminateAgent(ctx, agentID); err != nil {
			c.log.Warn().Err(err).Str("agent_id", agentID.String()).Msg("stop_agent: terminate failed, pod may already be gone")
		}
		agent.Status = models.StatusStopping
		result = agent
		return nil
	})
	return result, err
}

// RestartAgent moves an agent out of Error back into Provisioning and
// (re)schedules its pod.
func (c *Core) RestartAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error) {
	var result *models.Agent
	err := c.locks.withLock(agentID, func() error {
		agent, err := c.getOwned(ownerID, agentID)
		if err != nil {
			return err
		}
		if agent.Status != models.StatusError {
			return errInvalidState(agent.Status, models.StatusError)
		}
		if err := c.store.UpdateAgentStatus(agentID, models.StatusProvisioning, time.Now()); err != nil {
			return err
		}
		if err := c.orch.ScheduleAgent(ctx, agentID, ownerID, agent.Spec); err != nil {
			return err
		}
		agent.Status = models.StatusProvisioning
		result = agent
		return nil
	})
	return result, err
}

// closeActiveSessions marks every Active session of agentID as Closed.
// Used by both the hibernate sequence and stop, which the design notes
// resolve to close sessions immediately rather than draining.
func (c *Core) closeActiveSessions(agentID models.AgentID) error {
	sessions, err := c.store.ListSessionsByAgent(agentID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, s := range sessions {
		if s.Status != models.SessionActive {
			continue
		}
		if err := c.store.UpdateSessionStatus(s.SessionID, models.SessionClosed, &now); err != nil {
			return err
		}
	}
	return nil
}

// HibernateAgent runs the hibernate sequence: validate state, close
// sessions, best-effort notify the pod, terminate it, and only then
// persist Hibernating — in that order, so the reconciler's delete
// observer does not race the write and mark the agent Stopped instead.
func (c *Core) HibernateAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error) {
	var result *models.Agent
	err := c.locks.withLock(agentID, func() error {
		agent, err := c.getOwned(ownerID, agentID)
		if err != nil {
			return err
		}
		if !in(agent.Status, models.StatusRunning, models.StatusIdle) {
			metrics.HibernateEvents.WithLabelValues("invalid_state").Inc()
			return errInvalidState(agent.Status, models.StatusRunning, models.StatusIdle)
		}

		if err := c.closeActiveSessions(agentID); err != nil {
			metrics.HibernateEvents.WithLabelValues("error").Inc()
			return err
		}

		if endpoint, epErr := c.orch.GetPodEndpoint(ctx, agentID); epErr == nil {
			c.notifyHibernate(ctx, endpoint)
		}

		if err := c.orch.TerminateAgent(ctx, agentID); err != nil {
			c.log.Warn().Err(err).Str("agent_id", agentID.String()).Msg("hibernate: terminate failed, continuing")
		}

		if err := c.store.UpdateAgentStatus(agentID, models.StatusHibernating, time.Now()); err != nil {
			metrics.HibernateEvents.WithLabelValues("error").Inc()
			return err
		}
		agent.Status = models.StatusHibernating
		result = agent
		metrics.HibernateEvents.WithLabelValues("ok").Inc()
		return nil
	})
	return result, err
}

// WakeAgent runs the explicit wake sequence: schedule the pod and block
// until the registry observes Running (or fail on Error/timeout).
func (c *Core) WakeAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error) {
	agent, err := c.getOwned(ownerID, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status != models.StatusHibernating {
		return nil, errInvalidState(agent.Status, models.StatusHibernating)
	}
	return c.wakeSequence(ctx, ownerID, agentID, "explicit")
}

// wakeSequence is the shared implementation behind the explicit :wake
// operation and the implicit auto-wake triggered by session issuance.
func (c *Core) wakeSequence(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID, trigger string) (*models.Agent, error) {
	start := time.Now()
	err := c.locks.withLock(agentID, func() error {
		agent, err := c.getOwned(ownerID, agentID)
		if err != nil {
			return err
		}
		if agent.Status != models.StatusHibernating {
			// Raced with another waker; nothing to do.
			return nil
		}
		if err := c.store.UpdateAgentStatus(agentID, models.StatusProvisioning, time.Now()); err != nil {
			return err
		}
		return c.orch.ScheduleAgent(ctx, agentID, ownerID, agent.Spec)
	})
	if err != nil {
		metrics.WakeEvents.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}

	agent, err := c.pollUntilRunning(ctx, agentID)
	metrics.WakeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WakeEvents.WithLabelValues(trigger, "timeout").Inc()
		return nil, err
	}
	metrics.WakeEvents.WithLabelValues(trigger, "ok").Inc()
	return agent, nil
}

// pollUntilRunning polls the registry once a second for up to
// wake_timeout, succeeding on Running and failing on Error or timeout.
func (c *Core) pollUntilRunning(ctx context.Context, agentID models.AgentID) (*models.Agent, error) {
	deadline := time.Now().Add(c.cfg.WakeTimeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		agent, err := c.store.GetAgent(agentID)
		if err == nil {
			switch agent.Status {
			case models.StatusRunning:
				return agent, nil
			case models.StatusError:
				return nil, apierrors.NewUpstream("agent entered Error while waking", nil)
			}
		}
		if time.Now().After(deadline) {
			return nil, errSchedulerTimeout(c.cfg.WakeTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
