// Package edgeproxy implements the edge proxy: it terminates user
// requests, authenticates them via the identity adapter, dispatches
// CRUD/lifecycle operations to the control core, and proxies
// bidirectional streams between clients and resolved agent endpoints.
package edgeproxy

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cypher-asi/aura-swarm/internal/identity"
	"github.com/cypher-asi/aura-swarm/internal/logger"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// ControlAPI is the narrow seam the edge proxy depends on for every
// dispatched operation, letting handler tests fake the control core the
// same way control's own tests fake the registry and orchestrator.
type ControlAPI interface {
	CreateAgent(ctx context.Context, ownerID models.OwnerID, name string, spec models.AgentSpec) (*models.Agent, error)
	GetAgent(ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error)
	ListAgents(ownerID models.OwnerID) ([]*models.Agent, error)
	DeleteAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) error
	StartAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error)
	StopAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error)
	RestartAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error)
	HibernateAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error)
	WakeAgent(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Agent, error)
	CreateSession(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (*models.Session, error)
	GetSession(ownerID models.OwnerID, sessionID models.SessionID) (*models.Session, error)
	ResolveAgentEndpoint(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID) (string, error)
	IngestHeartbeat(report models.HeartbeatReport) error
	AgentLogs(ctx context.Context, ownerID models.OwnerID, agentID models.AgentID, tailLines, sinceSeconds int64) (io.ReadCloser, error)
}

// StateStore is the slice of the registry the edge proxy touches
// directly: the health probe behind GET /health and the soft
// user-identity cache refreshed on each successful validation. The
// full registry.Store surface deliberately stays out of this package.
type StateStore interface {
	HealthCheck() error
	PutUser(u *models.CachedUser) error
}

// Config tunes the proxy's own policy knobs (unrelated to the control
// core's).
type Config struct {
	PublicBaseURL          string
	MaxConnectionsPerOwner int
}

// DefaultConfig returns the proxy's default policy knobs.
func DefaultConfig() Config {
	return Config{MaxConnectionsPerOwner: 10}
}

// Server wires the public HTTP/JSON surface and the streaming proxy.
type Server struct {
	cfg       Config
	control   ControlAPI
	identity  identity.Validator
	store     StateStore
	fairness  *connectionFairness
	streamLim *sessionRateLimiters
	log       *zerolog.Logger

	Router *gin.Engine
}

// NewServer builds a Server and registers the full public surface,
// the metrics endpoint, and the internal heartbeat callback.
func NewServer(cfg Config, control ControlAPI, validator identity.Validator, store StateStore) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		cfg:       cfg,
		control:   control,
		identity:  validator,
		store:     store,
		fairness:  newConnectionFairness(cfg.MaxConnectionsPerOwner),
		streamLim: newSessionRateLimiters(),
		log:       logger.Edge(),
		Router:    router,
	}

	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(s.requestLogger())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(s.authenticate())
	{
		v1.GET("/agents", s.handleListAgents)
		v1.POST("/agents", s.handleCreateAgent)
		v1.GET("/agents/:id", s.handleGetAgent)
		v1.DELETE("/agents/:id", s.handleDeleteAgent)
		// gin's router requires one wildcard name per path depth per
		// method, so the five ":action"-suffixed operations below share
		// the plain ":id" segment with /agents/:id/sessions and are
		// demultiplexed in handleAgentAction by splitting off the
		// "<agent_id>:<op>" suffix.
		v1.POST("/agents/:id", s.handleAgentAction)
		v1.GET("/agents/:id/status", s.handleAgentStatus)
		v1.GET("/agents/:id/logs", s.handleAgentLogs)
		v1.POST("/agents/:id/sessions", s.handleCreateSession)
		v1.GET("/sessions/:sid", s.handleGetSession)
		v1.GET("/sessions/:sid/ws", s.handleSessionStream)
	}

	internal := router.Group("/internal")
	{
		internal.POST("/heartbeat", s.handleHeartbeat)
	}

	return s
}

// requestID assigns each request a correlation id, echoed in the
// X-Request-ID response header and carried in the request log line.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if err := s.store.HealthCheck(); err != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": "1.0.0",
		"checks":  gin.H{"registry": status},
	})
}
