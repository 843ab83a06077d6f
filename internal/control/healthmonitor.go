package control

import (
	"context"
	"time"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// StartHealthMonitor launches the background health monitor: every
// HealthCheckPeriod it probes each Running agent's /health endpoint,
// and after HealthFailThreshold consecutive failures transitions the
// agent to Error. The pod's own liveness probe handles in-cluster
// restarts; this loop records in the registry that the agent's
// resolved endpoint has stopped answering /health from the control
// plane.
func (c *Core) StartHealthMonitor() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.HealthCheckPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.sweepHealth()
			}
		}
	}()
}

func (c *Core) sweepHealth() {
	agents, err := c.store.ListAllAgents()
	if err != nil {
		c.log.Error().Err(err).Msg("health monitor: list_all_agents failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HealthCheckPeriod)
	defer cancel()

	for _, agent := range agents {
		if agent.Status != models.StatusRunning {
			c.clearStrikes(agent.AgentID)
			continue
		}
		endpoint, err := c.orch.GetPodEndpoint(ctx, agent.AgentID)
		if err != nil {
			// No endpoint yet; the reconciler owns pod-absence handling.
			continue
		}
		if err := c.orch.CheckHealth(ctx, endpoint); err != nil {
			strikes := c.addStrike(agent.AgentID)
			c.log.Warn().Err(err).
				Str("agent_id", agent.AgentID.String()).
				Int("strikes", strikes).
				Msg("health monitor: check failed")
			if strikes < c.cfg.HealthFailThreshold {
				continue
			}
			c.clearStrikes(agent.AgentID)
			if err := c.locks.withLock(agent.AgentID, func() error {
				current, err := c.store.GetAgent(agent.AgentID)
				if err != nil {
					return err
				}
				if current.Status != models.StatusRunning {
					return nil
				}
				return c.store.UpdateAgentStatus(agent.AgentID, models.StatusError, time.Now())
			}); err != nil {
				c.log.Warn().Err(err).Str("agent_id", agent.AgentID.String()).Msg("health monitor: transition failed")
			}
			continue
		}
		c.clearStrikes(agent.AgentID)
	}
}

func (c *Core) addStrike(agentID models.AgentID) int {
	c.strikesMu.Lock()
	defer c.strikesMu.Unlock()
	c.strikes[agentID]++
	return c.strikes[agentID]
}

func (c *Core) clearStrikes(agentID models.AgentID) {
	c.strikesMu.Lock()
	defer c.strikesMu.Unlock()
	delete(c.strikes, agentID)
}
