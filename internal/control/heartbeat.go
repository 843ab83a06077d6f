package control

import (
	"time"

	"github.com/cypher-asi/aura-swarm/internal/metrics"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// IngestHeartbeat records a pod's self-reported status. It never moves
// an agent out of Hibernating, Stopping, or Stopped via heartbeat:
// those three states are control-plane-authoritative. A heartbeat from
// an agent the control plane believes is Hibernating is therefore a
// silent no-op on the status field; the in-flight terminate makes such
// a pod self-resolving.
func (c *Core) IngestHeartbeat(report models.HeartbeatReport) error {
	return c.locks.withLock(report.AgentID, func() error {
		agent, err := c.store.GetAgent(report.AgentID)
		if err != nil {
			metrics.HeartbeatsTotal.WithLabelValues("not_found").Inc()
			return err
		}

		now := time.Now()
		agent.LastHeartbeatAt = &now

		if report.Status != agent.Status && !in(agent.Status, models.StatusHibernating, models.StatusStopping, models.StatusStopped) {
			agent.Status = report.Status
		}
		agent.UpdatedAt = now

		if err := c.store.PutAgent(agent); err != nil {
			metrics.HeartbeatsTotal.WithLabelValues("error").Inc()
			return err
		}
		metrics.HeartbeatsTotal.WithLabelValues("ok").Inc()
		return nil
	})
}
