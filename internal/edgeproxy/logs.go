package edgeproxy

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
)

// handleAgentLogs implements GET /v1/agents/{id}/logs?tail=&since=,
// streaming the agent pod's container log to the caller as plain text.
// tail is a line count, since is seconds of look-back; both optional.
func (s *Server) handleAgentLogs(c *gin.Context) {
	claims := callerClaims(c)
	agentID, ok := parseAgentIDParam(c)
	if !ok {
		return
	}

	tail, ok := parseQueryInt(c, "tail")
	if !ok {
		return
	}
	since, ok := parseQueryInt(c, "since")
	if !ok {
		return
	}

	stream, err := s.control.AgentLogs(c.Request.Context(), claims.OwnerID, agentID, tail, since)
	if err != nil {
		renderError(c, err)
		return
	}
	defer stream.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.Copy(c.Writer, stream); err != nil {
		s.log.Warn().Err(err).Str("agent_id", agentID.String()).Msg("logs: copy interrupted")
	}
}

func parseQueryInt(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		renderError(c, apierrors.NewConflict("malformed "+name+" parameter"))
		return 0, false
	}
	return v, true
}
