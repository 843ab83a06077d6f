package edgeproxy

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/metrics"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// Per-connection limits: max message 1 MiB, idle timeout 5 minutes
// (no traffic or pong within the window closes the socket), keepalive
// ping every 30 seconds, and a write deadline so a stalled peer cannot
// wedge the pump.
const (
	maxStreamMessageSize = 1 << 20
	streamIdleTimeout    = 5 * time.Minute
	streamPingPeriod     = 30 * time.Second
	streamWriteWait      = 10 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Bearer auth is the access control; origin is not.
		return true
	},
}

// handleSessionStream implements GET /v1/sessions/{sid}/ws, the
// bidirectional streaming proxy between an authenticated client and
// the agent pod behind the session. The proxy forwards frames without
// interpreting payloads beyond the size and rate limits.
func (s *Server) handleSessionStream(c *gin.Context) {
	claims := callerClaims(c)
	sessionID, err := models.ParseSessionID(c.Param("sid"))
	if err != nil {
		renderError(c, apierrors.NewConflict("malformed session_id"))
		return
	}

	// GetSession enforces session.owner_id == caller.owner_id (403 on
	// mismatch) before any endpoint is revealed.
	session, err := s.control.GetSession(claims.OwnerID, sessionID)
	if err != nil {
		renderError(c, err)
		return
	}
	if session.Status != models.SessionActive {
		renderError(c, apierrors.NewConflict("session is closed"))
		return
	}

	if !s.fairness.acquire(claims.OwnerID) {
		renderError(c, apierrors.NewRateLimited("owner connection limit reached"))
		return
	}
	defer s.fairness.release(claims.OwnerID)

	endpoint, err := s.control.ResolveAgentEndpoint(c.Request.Context(), claims.OwnerID, session.AgentID)
	if err != nil {
		renderError(c, err)
		return
	}

	// Dial the agent's /chat before accepting the client upgrade, so a
	// dead pod surfaces as a clean 503 instead of an immediate close on
	// an already-upgraded socket.
	agentConn, resp, err := websocket.DefaultDialer.DialContext(c.Request.Context(), "ws://"+endpoint+"/chat", nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID.String()).Str("endpoint", endpoint).Msg("stream: agent dial failed")
		renderError(c, apierrors.NewUnavailable("agent stream endpoint unavailable"))
		return
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	clientConn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		agentConn.Close()
		return
	}

	metrics.StreamConnections.Inc()
	defer metrics.StreamConnections.Dec()
	s.log.Info().Str("session_id", sessionID.String()).Str("endpoint", endpoint).Msg("stream opened")

	limiter := s.streamLim.get(sessionID)
	defer s.streamLim.drop(sessionID)

	relay := &streamRelay{
		client:  clientConn,
		agent:   agentConn,
		limiter: limiter,
		done:    make(chan struct{}),
	}
	relay.run()

	s.log.Info().Str("session_id", sessionID.String()).Msg("stream closed")
}

// streamRelay owns one proxied connection pair. Two pump goroutines
// forward frames in each direction; the first to finish closes both
// sockets, which unblocks the other within the write deadline and
// propagates the close to the opposite peer — frames the slower side
// produces after that are silently dropped with the connection.
type streamRelay struct {
	client  *websocket.Conn
	agent   *websocket.Conn
	limiter *sessionLimiter
	done    chan struct{}
}

func (r *streamRelay) run() {
	r.client.SetReadLimit(maxStreamMessageSize)
	r.agent.SetReadLimit(maxStreamMessageSize)

	r.client.SetReadDeadline(time.Now().Add(streamIdleTimeout))
	r.client.SetPongHandler(func(string) error {
		return r.client.SetReadDeadline(time.Now().Add(streamIdleTimeout))
	})
	r.agent.SetReadDeadline(time.Now().Add(streamIdleTimeout))
	r.agent.SetPongHandler(func(string) error {
		return r.agent.SetReadDeadline(time.Now().Add(streamIdleTimeout))
	})

	finished := make(chan struct{}, 2)
	go func() {
		r.pumpClientToAgent()
		finished <- struct{}{}
	}()
	go func() {
		r.pumpAgentToClient()
		finished <- struct{}{}
	}()
	go r.keepalive()

	// First pump to finish tears down both sockets; the teardown is
	// what cancels the peer pump.
	<-finished
	close(r.done)
	r.client.Close()
	r.agent.Close()
	<-finished
}

// pumpClientToAgent forwards client frames to the agent, applying the
// per-session inbound rate limit. Over-limit messages are dropped and
// the client is told so with an error frame; the connection stays up.
// Writes to the agent are not rate-limited but block under the write
// deadline, which is the suspend-on-overflow backpressure the egress
// side calls for.
func (r *streamRelay) pumpClientToAgent() {
	for {
		msgType, payload, err := r.client.ReadMessage()
		if err != nil {
			return
		}
		if !r.limiter.allow() {
			metrics.StreamMessagesDropped.Inc()
			r.client.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := r.client.WriteMessage(websocket.TextMessage, rateLimitErrorFrame); err != nil {
				return
			}
			continue
		}
		r.agent.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := r.agent.WriteMessage(msgType, payload); err != nil {
			return
		}
		r.client.SetReadDeadline(time.Now().Add(streamIdleTimeout))
	}
}

func (r *streamRelay) pumpAgentToClient() {
	for {
		msgType, payload, err := r.agent.ReadMessage()
		if err != nil {
			return
		}
		r.client.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := r.client.WriteMessage(msgType, payload); err != nil {
			return
		}
		r.agent.SetReadDeadline(time.Now().Add(streamIdleTimeout))
	}
}

// keepalive pings both peers every streamPingPeriod so their idle
// deadlines keep advancing while the stream is quiet.
func (r *streamRelay) keepalive() {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(streamWriteWait)
			if err := r.client.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
			if err := r.agent.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// rateLimitErrorFrame is the error message sent in place of a dropped
// over-limit inbound message, in the same tagged-JSON shape the agent
// runtime speaks.
var rateLimitErrorFrame = []byte(`{"type":"error","code":"rate_limited","message":"inbound message rate limit exceeded, message dropped"}`)
