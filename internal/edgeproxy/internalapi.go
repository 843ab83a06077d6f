package edgeproxy

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// handleHeartbeat implements POST /internal/heartbeat, the only path a
// pod calls back into the control plane on. It carries no bearer
// credential (pods authenticate by network identity in this v1
// design); the body shape matches models.HeartbeatReport exactly.
func (s *Server) handleHeartbeat(c *gin.Context) {
	var report models.HeartbeatReport
	if err := c.ShouldBindJSON(&report); err != nil {
		renderError(c, apierrors.NewConflict("malformed heartbeat body"))
		return
	}
	if err := s.control.IngestHeartbeat(report); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ack": true, "commands": []string{}})
}
