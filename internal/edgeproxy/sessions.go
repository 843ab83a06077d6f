package edgeproxy

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

type sessionResponse struct {
	SessionID string `json:"session_id"`
	WSURL     string `json:"ws_url"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	claims := callerClaims(c)
	agentID, ok := parseAgentIDParam(c)
	if !ok {
		return
	}

	session, err := s.control.CreateSession(c.Request.Context(), claims.OwnerID, agentID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse{
		SessionID: session.SessionID.String(),
		WSURL:     fmt.Sprintf("%s/v1/sessions/%s/ws", s.cfg.PublicBaseURL, session.SessionID.String()),
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	claims := callerClaims(c)
	sessionID, err := models.ParseSessionID(c.Param("sid"))
	if err != nil {
		renderError(c, apierrors.NewConflict("malformed session_id"))
		return
	}
	session, err := s.control.GetSession(claims.OwnerID, sessionID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": session.SessionID,
		"agent_id":   session.AgentID,
		"owner_id":   session.OwnerID,
		"status":     session.Status.String(),
		"created_at": session.CreatedAt,
		"closed_at":  session.ClosedAt,
	})
}
