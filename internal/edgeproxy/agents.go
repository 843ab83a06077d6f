package edgeproxy

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// agentResponse is the wire shape of an Agent returned to clients.
type agentResponse struct {
	AgentID   models.AgentID   `json:"agent_id"`
	OwnerID   models.OwnerID   `json:"owner_id"`
	Name      string           `json:"name"`
	Status    string           `json:"status"`
	Spec      models.AgentSpec `json:"spec"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
}

func toAgentResponse(a *models.Agent) agentResponse {
	return agentResponse{
		AgentID:   a.AgentID,
		OwnerID:   a.OwnerID,
		Name:      a.Name,
		Status:    a.Status.String(),
		Spec:      a.Spec,
		CreatedAt: a.CreatedAt.Format(rfc3339Milli),
		UpdatedAt: a.UpdatedAt.Format(rfc3339Milli),
	}
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

func parseAgentIDParam(c *gin.Context) (models.AgentID, bool) {
	id, err := models.ParseAgentID(c.Param("id"))
	if err != nil {
		renderError(c, apierrors.NewConflict("malformed agent_id"))
		return models.AgentID{}, false
	}
	return id, true
}

// createAgentRequest is the POST /v1/agents body.
type createAgentRequest struct {
	Name string            `json:"name"`
	Spec *models.AgentSpec `json:"spec,omitempty"`
}

func (s *Server) handleListAgents(c *gin.Context) {
	claims := callerClaims(c)
	agents, err := s.control.ListAgents(claims.OwnerID)
	if err != nil {
		renderError(c, err)
		return
	}
	out := make([]agentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{"agents": out})
}

func (s *Server) handleCreateAgent(c *gin.Context) {
	claims := callerClaims(c)

	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierrors.NewConflict("malformed request body"))
		return
	}
	spec := models.AgentSpec{}
	if req.Spec != nil {
		spec = *req.Spec
	}

	agent, err := s.control.CreateAgent(c.Request.Context(), claims.OwnerID, req.Name, spec)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAgentResponse(agent))
}

func (s *Server) handleGetAgent(c *gin.Context) {
	claims := callerClaims(c)
	agentID, ok := parseAgentIDParam(c)
	if !ok {
		return
	}
	agent, err := s.control.GetAgent(claims.OwnerID, agentID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAgentResponse(agent))
}

func (s *Server) handleDeleteAgent(c *gin.Context) {
	claims := callerClaims(c)
	agentID, ok := parseAgentIDParam(c)
	if !ok {
		return
	}
	if err := s.control.DeleteAgent(c.Request.Context(), claims.OwnerID, agentID); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleAgentAction demultiplexes POST /v1/agents/{id}:{op} — gin binds
// the whole "<hex-agent-id>:<op>" segment to the "id" param since the
// colon is not a path separator, so the suffix is split off here.
func (s *Server) handleAgentAction(c *gin.Context) {
	raw := c.Param("id")
	idPart, op, ok := strings.Cut(raw, ":")
	if !ok {
		renderError(c, apierrors.NewConflict("missing lifecycle operation suffix"))
		return
	}

	agentID, err := models.ParseAgentID(idPart)
	if err != nil {
		renderError(c, apierrors.NewConflict("malformed agent_id"))
		return
	}
	claims := callerClaims(c)
	ctx := c.Request.Context()

	var agent *models.Agent
	switch op {
	case "start":
		agent, err = s.control.StartAgent(ctx, claims.OwnerID, agentID)
	case "stop":
		agent, err = s.control.StopAgent(ctx, claims.OwnerID, agentID)
	case "restart":
		agent, err = s.control.RestartAgent(ctx, claims.OwnerID, agentID)
	case "hibernate":
		agent, err = s.control.HibernateAgent(ctx, claims.OwnerID, agentID)
	case "wake":
		agent, err = s.control.WakeAgent(ctx, claims.OwnerID, agentID)
	default:
		renderError(c, apierrors.NewConflict("unknown lifecycle operation: "+op))
		return
	}
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAgentResponse(agent))
}

func (s *Server) handleAgentStatus(c *gin.Context) {
	claims := callerClaims(c)
	agentID, ok := parseAgentIDParam(c)
	if !ok {
		return
	}
	agent, err := s.control.GetAgent(claims.OwnerID, agentID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": agent.AgentID, "status": agent.Status.String()})
}
