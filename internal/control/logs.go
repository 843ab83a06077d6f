package control

import (
	"context"
	"io"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// AgentLogs enforces ownership and streams the agent pod's container
// log from the orchestrator driver.
func (c *Core) AgentLogs(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID, tailLines, sinceSeconds int64) (io.ReadCloser, error) {
	if _, err := c.getOwned(ownerID, agentID); err != nil {
		return nil, err
	}
	return c.orch.GetLogs(ctx, agentID, tailLines, sinceSeconds)
}
