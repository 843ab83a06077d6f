package edgeproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// fakeAgent is a stand-in for the agent runtime's /chat endpoint: it
// echoes every frame back and signals when its side of the stream
// closes.
type fakeAgent struct {
	server *httptest.Server
	closed chan struct{}
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()
	fa := &fakeAgent{closed: make(chan struct{})}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				close(fa.closed)
				return
			}
			if err := conn.WriteMessage(msgType, payload); err != nil {
				close(fa.closed)
				return
			}
		}
	})
	fa.server = httptest.NewServer(mux)
	t.Cleanup(fa.server.Close)
	return fa
}

func (fa *fakeAgent) endpoint() string {
	return strings.TrimPrefix(fa.server.URL, "http://")
}

// openStream creates a running agent with a session and dials the
// proxy's stream endpoint for it, returning the client connection and
// the session id.
func openStream(t *testing.T, env *testEnv, token string, agent *fakeAgent) (*websocket.Conn, models.SessionID) {
	t.Helper()
	owner := env.grantOwner(t, token)

	created, err := env.core.CreateAgent(context.Background(), owner, "stream-demo", models.AgentSpec{})
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateAgentStatus(created.AgentID, models.StatusRunning, time.Now()))
	env.orch.SetEndpoint(created.AgentID, agent.endpoint())

	session, err := env.core.CreateSession(context.Background(), owner, created.AgentID)
	require.NoError(t, err)

	conn := dialStream(t, env, token, session.SessionID, http.StatusSwitchingProtocols)
	return conn, session.SessionID
}

func dialStream(t *testing.T, env *testEnv, token string, sid models.SessionID, wantStatus int) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/v1/sessions/" + sid.String() + "/ws"
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if wantStatus == http.StatusSwitchingProtocols {
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
	} else {
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, wantStatus, resp.StatusCode)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func TestStreamRelaysBidirectionally(t *testing.T) {
	env := newTestEnv(t)
	agent := newFakeAgent(t)
	conn, _ := openStream(t, env, "tok", agent)

	msg := []byte(`{"type":"user_message","message_id":"m1","text":"hello"}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, echoed, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, msg, echoed)
}

func TestStreamHalfClosePropagates(t *testing.T) {
	env := newTestEnv(t)
	agent := newFakeAgent(t)
	conn, _ := openStream(t, env, "tok", agent)

	require.NoError(t, conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	conn.Close()

	// The proxy must close its agent-side socket within 1s of the
	// client going away.
	select {
	case <-agent.closed:
	case <-time.After(time.Second):
		t.Fatal("agent-side stream was not closed after client close")
	}
}

func TestStreamOwnerConnectionLimit(t *testing.T) {
	env := newTestEnv(t)
	env.server.fairness.max = 1
	agent := newFakeAgent(t)
	_, sid := openStream(t, env, "tok", agent)

	// Second concurrent stream for the same owner is rejected with 429
	// before any upgrade happens.
	dialStream(t, env, "tok", sid, http.StatusTooManyRequests)
}

func TestStreamCrossOwnerForbidden(t *testing.T) {
	env := newTestEnv(t)
	agent := newFakeAgent(t)
	_, sid := openStream(t, env, "tok-a", agent)
	env.grantOwner(t, "tok-b")

	dialStream(t, env, "tok-b", sid, http.StatusForbidden)
}

func TestStreamUnresolvableEndpointIs503(t *testing.T) {
	env := newTestEnv(t)
	owner := env.grantOwner(t, "tok")

	created, err := env.core.CreateAgent(context.Background(), owner, "demo", models.AgentSpec{})
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateAgentStatus(created.AgentID, models.StatusRunning, time.Now()))
	session, err := env.core.CreateSession(context.Background(), owner, created.AgentID)
	require.NoError(t, err)

	// No endpoint was ever observed for this agent.
	dialStream(t, env, "tok", session.SessionID, http.StatusServiceUnavailable)
}

func TestStreamClosedSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	agent := newFakeAgent(t)
	owner := env.grantOwner(t, "tok")

	created, err := env.core.CreateAgent(context.Background(), owner, "demo", models.AgentSpec{})
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateAgentStatus(created.AgentID, models.StatusRunning, time.Now()))
	env.orch.SetEndpoint(created.AgentID, agent.endpoint())

	session, err := env.core.CreateSession(context.Background(), owner, created.AgentID)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, env.store.UpdateSessionStatus(session.SessionID, models.SessionClosed, &now))

	dialStream(t, env, "tok", session.SessionID, http.StatusConflict)
}
