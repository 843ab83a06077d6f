package control

import (
	"time"

	"github.com/cypher-asi/aura-swarm/internal/metrics"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// StartIdleDetector launches the background idle detector: every
// IdleCheckPeriod it scans all agents, and any Running agent with no
// Active session and whose updated_at is older than IdleTimeout is
// advisorially moved to Idle. The loop survives individual failures and
// never propagates cancellation to request-serving goroutines.
func (c *Core) StartIdleDetector() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.IdleCheckPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.sweepIdle()
			}
		}
	}()
}

// Stop signals the background loops (idle detector, health monitor) to
// exit and waits for them to finish.
func (c *Core) Stop() {
	close(c.stop)
	c.wg.Wait()
}

func (c *Core) sweepIdle() {
	agents, err := c.store.ListAllAgents()
	if err != nil {
		c.log.Error().Err(err).Msg("idle detector: list_all_agents failed")
		return
	}

	counts := make(map[models.AgentStatus]int, 7)
	for _, agent := range agents {
		counts[agent.Status]++
		if agent.Status != models.StatusRunning {
			continue
		}
		if time.Since(agent.UpdatedAt) <= c.cfg.IdleTimeout {
			continue
		}
		active, err := c.hasActiveSession(agent.AgentID)
		if err != nil {
			c.log.Warn().Err(err).Str("agent_id", agent.AgentID.String()).Msg("idle detector: session scan failed")
			continue
		}
		if active {
			continue
		}
		if err := c.locks.withLock(agent.AgentID, func() error {
			return c.store.UpdateAgentStatus(agent.AgentID, models.StatusIdle, time.Now())
		}); err != nil {
			c.log.Warn().Err(err).Str("agent_id", agent.AgentID.String()).Msg("idle detector: transition failed")
			continue
		}
		metrics.IdleTransitions.Inc()
	}

	for status := models.StatusProvisioning; status <= models.StatusError; status++ {
		metrics.AgentsByStatus.WithLabelValues(status.String()).Set(float64(counts[status]))
	}
}

func (c *Core) hasActiveSession(agentID models.AgentID) (bool, error) {
	sessions, err := c.store.ListSessionsByAgent(agentID)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if s.Status == models.SessionActive {
			return true, nil
		}
	}
	return false, nil
}
