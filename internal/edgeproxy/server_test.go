package edgeproxy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypher-asi/aura-swarm/internal/control"
	"github.com/cypher-asi/aura-swarm/internal/identity"
	"github.com/cypher-asi/aura-swarm/internal/identity/identitytest"
	"github.com/cypher-asi/aura-swarm/internal/models"
	"github.com/cypher-asi/aura-swarm/internal/orchestrator/orchestratortest"
	"github.com/cypher-asi/aura-swarm/internal/registry/registrytest"
)

type testEnv struct {
	server *Server
	store  *registrytest.Fake
	orch   *orchestratortest.Fake
	core   *control.Core
	ids    *identitytest.Fake
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := registrytest.New()
	orch := orchestratortest.New()
	coreCfg := control.DefaultConfig()
	core := control.New(coreCfg, store, orch)
	ids := identitytest.New()

	cfg := DefaultConfig()
	cfg.PublicBaseURL = "ws://proxy.test"
	s := NewServer(cfg, core, ids, store)

	ts := httptest.NewServer(s.Router)
	t.Cleanup(ts.Close)
	return &testEnv{server: s, store: store, orch: orch, core: core, ids: ids, http: ts}
}

// grantOwner registers a bearer token resolving to a fresh owner.
func (e *testEnv) grantOwner(t *testing.T, token string) models.OwnerID {
	t.Helper()
	raw, err := models.NewAgentID()
	require.NoError(t, err)
	owner := models.OwnerID(raw)
	e.ids.Grant(token, &identity.Claims{OwnerID: owner, ExpiresAt: time.Now().Add(time.Hour)})
	return owner
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestMissingBearerRejected(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/v1/agents", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInvalidBearerRejected(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/v1/agents", "garbage", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndGetAgent(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{
		"name": "demo",
		"spec": map[string]any{"cpu_millicores": 500, "memory_mb": 512},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created agentResponse
	decodeBody(t, resp, &created)
	assert.Equal(t, "provisioning", created.Status)
	assert.Equal(t, "demo", created.Name)
	assert.Equal(t, 500, created.Spec.CPUMillicores)

	resp = env.do(t, http.MethodGet, "/v1/agents/"+created.AgentID.String(), "tok", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched agentResponse
	decodeBody(t, resp, &fetched)
	assert.Equal(t, created.AgentID, fetched.AgentID)
}

func TestCreateAgentRejectsBadName(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "ab"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCrossOwnerGetForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok-a")
	env.grantOwner(t, "tok-b")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok-a", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)

	resp = env.do(t, http.MethodGet, "/v1/agents/"+created.AgentID.String(), "tok-b", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestQuotaExceededIs429(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	names := []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten"}
	for _, name := range names {
		resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": name})
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "eleven"})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "quota_exceeded", body["error"])

	resp = env.do(t, http.MethodGet, "/v1/agents", "tok", nil)
	var list struct {
		Agents []agentResponse `json:"agents"`
	}
	decodeBody(t, resp, &list)
	assert.Len(t, list.Agents, 10)
}

func TestLifecycleActionDemux(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)

	// Simulate the reconciler bringing the pod up.
	require.NoError(t, env.store.UpdateAgentStatus(created.AgentID, models.StatusRunning, time.Now()))

	resp = env.do(t, http.MethodPost, "/v1/agents/"+created.AgentID.String()+":hibernate", "tok", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hibernated agentResponse
	decodeBody(t, resp, &hibernated)
	assert.Equal(t, "hibernating", hibernated.Status)

	resp = env.do(t, http.MethodPost, "/v1/agents/"+created.AgentID.String()+":mangle", "tok", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestActionFromWrongStateIsConflict(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)

	// Provisioning does not admit :hibernate.
	resp = env.do(t, http.MethodPost, "/v1/agents/"+created.AgentID.String()+":hibernate", "tok", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteRequiresTerminalState(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)

	resp = env.do(t, http.MethodDelete, "/v1/agents/"+created.AgentID.String(), "tok", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, env.store.UpdateAgentStatus(created.AgentID, models.StatusStopped, time.Now()))
	resp = env.do(t, http.MethodDelete, "/v1/agents/"+created.AgentID.String(), "tok", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCreateSessionReturnsWSURL(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)
	require.NoError(t, env.store.UpdateAgentStatus(created.AgentID, models.StatusRunning, time.Now()))

	resp = env.do(t, http.MethodPost, "/v1/agents/"+created.AgentID.String()+"/sessions", "tok", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session sessionResponse
	decodeBody(t, resp, &session)
	assert.NotEmpty(t, session.SessionID)
	assert.Equal(t, "ws://proxy.test/v1/sessions/"+session.SessionID+"/ws", session.WSURL)
}

func TestAgentStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)

	resp = env.do(t, http.MethodGet, "/v1/agents/"+created.AgentID.String()+"/status", "tok", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "provisioning", body["status"])
}

func TestAgentLogs(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)

	resp = env.do(t, http.MethodGet, "/v1/agents/"+created.AgentID.String()+"/logs?tail=10", "tok", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAgentLogsRejectsMalformedTail(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)

	resp = env.do(t, http.MethodGet, "/v1/agents/"+created.AgentID.String()+"/logs?tail=bogus", "tok", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHeartbeatAck(t *testing.T) {
	env := newTestEnv(t)
	env.grantOwner(t, "tok")

	resp := env.do(t, http.MethodPost, "/v1/agents", "tok", map[string]any{"name": "demo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created agentResponse
	decodeBody(t, resp, &created)

	resp = env.do(t, http.MethodPost, "/internal/heartbeat", "", map[string]any{
		"agent_id":       created.AgentID.String(),
		"status":         1,
		"uptime_seconds": 42,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack struct {
		Ack bool `json:"ack"`
	}
	decodeBody(t, resp, &ack)
	assert.True(t, ack.Ack)
}
