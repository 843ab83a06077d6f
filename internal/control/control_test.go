package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/models"
	"github.com/cypher-asi/aura-swarm/internal/orchestrator/orchestratortest"
	"github.com/cypher-asi/aura-swarm/internal/registry/registrytest"
)

func newTestCore(t *testing.T) (*Core, *registrytest.Fake, *orchestratortest.Fake) {
	t.Helper()
	store := registrytest.New()
	orch := orchestratortest.New()
	cfg := DefaultConfig()
	cfg.WakeTimeout = 2 * time.Second
	return New(cfg, store, orch), store, orch
}

func newOwner(t *testing.T) models.OwnerID {
	t.Helper()
	id, err := models.NewAgentID()
	require.NoError(t, err)
	return models.OwnerID(id)
}

func TestCreateAgentToReady(t *testing.T) {
	core, _, orch := newTestCore(t)
	owner := newOwner(t)

	agent, err := core.CreateAgent(context.Background(), owner, "demo", models.AgentSpec{CPUMillicores: 500, MemoryMB: 512})
	require.NoError(t, err)
	assert.Equal(t, models.StatusProvisioning, agent.Status)
	assert.True(t, orch.IsScheduled(agent.AgentID))

	// Simulate the reconciler observing the pod become ready.
	require.NoError(t, core.store.UpdateAgentStatus(agent.AgentID, models.StatusRunning, time.Now()))

	got, err := core.GetAgent(owner, agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
}

func TestCreateAgentRejectsBadName(t *testing.T) {
	core, _, _ := newTestCore(t)
	owner := newOwner(t)
	_, err := core.CreateAgent(context.Background(), owner, "AB", models.AgentSpec{})
	require.Error(t, err)
}

func TestCrossOwnerDenial(t *testing.T) {
	core, _, _ := newTestCore(t)
	ownerA := newOwner(t)
	ownerB := newOwner(t)

	agent, err := core.CreateAgent(context.Background(), ownerA, "demo", models.AgentSpec{})
	require.NoError(t, err)

	_, err = core.GetAgent(ownerB, agent.AgentID)
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.Forbidden))

	// Registry state for the agent is unaffected by the denied read.
	got, err := core.GetAgent(ownerA, agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, agent.AgentID, got.AgentID)
}

func TestQuotaExceeded(t *testing.T) {
	core, _, _ := newTestCore(t)
	core.cfg.MaxAgentsPerOwner = 2
	owner := newOwner(t)

	_, err := core.CreateAgent(context.Background(), owner, "first", models.AgentSpec{})
	require.NoError(t, err)
	_, err = core.CreateAgent(context.Background(), owner, "second", models.AgentSpec{})
	require.NoError(t, err)

	_, err = core.CreateAgent(context.Background(), owner, "third", models.AgentSpec{})
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.QuotaExceeded))

	count, err := core.store.CountAgentsByOwner(owner)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHibernateWakeSession(t *testing.T) {
	core, store, orch := newTestCore(t)
	owner := newOwner(t)

	agent, err := core.CreateAgent(context.Background(), owner, "demo", models.AgentSpec{})
	require.NoError(t, err)
	require.NoError(t, store.UpdateAgentStatus(agent.AgentID, models.StatusRunning, time.Now()))
	orch.SetEndpoint(agent.AgentID, "10.0.0.9:8080")

	// Open a session so hibernate must close it.
	session, err := core.CreateSession(context.Background(), owner, agent.AgentID)
	require.NoError(t, err)

	hibernated, err := core.HibernateAgent(context.Background(), owner, agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusHibernating, hibernated.Status)
	assert.False(t, orch.IsScheduled(agent.AgentID))

	closedSession, err := store.GetSession(session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionClosed, closedSession.Status)

	// Issuing a new session auto-wakes the agent; simulate the
	// reconciler observing readiness concurrently with the poll loop.
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = store.UpdateAgentStatus(agent.AgentID, models.StatusRunning, time.Now())
	}()

	newSession, err := core.CreateSession(context.Background(), owner, agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, agent.AgentID, newSession.AgentID)

	woken, err := store.GetAgent(agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, woken.Status)
}

func TestIdempotentScheduleViaRestart(t *testing.T) {
	core, store, orch := newTestCore(t)
	owner := newOwner(t)

	agent, err := core.CreateAgent(context.Background(), owner, "demo", models.AgentSpec{})
	require.NoError(t, err)
	require.NoError(t, store.UpdateAgentStatus(agent.AgentID, models.StatusError, time.Now()))

	_, err = core.RestartAgent(context.Background(), owner, agent.AgentID)
	require.NoError(t, err)
	assert.True(t, orch.IsScheduled(agent.AgentID))
}

func TestInvalidTransitionRejected(t *testing.T) {
	core, _, _ := newTestCore(t)
	owner := newOwner(t)

	agent, err := core.CreateAgent(context.Background(), owner, "demo", models.AgentSpec{})
	require.NoError(t, err)

	// Agent is Provisioning: hibernate is not a legal transition.
	_, err = core.HibernateAgent(context.Background(), owner, agent.AgentID)
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.Conflict))
}

func TestHeartbeatNeverOverridesHibernating(t *testing.T) {
	core, store, _ := newTestCore(t)
	owner := newOwner(t)

	agent, err := core.CreateAgent(context.Background(), owner, "demo", models.AgentSpec{})
	require.NoError(t, err)
	require.NoError(t, store.UpdateAgentStatus(agent.AgentID, models.StatusHibernating, time.Now()))

	err = core.IngestHeartbeat(models.HeartbeatReport{
		AgentID: agent.AgentID,
		Status:  models.StatusRunning,
	})
	require.NoError(t, err)

	got, err := store.GetAgent(agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusHibernating, got.Status)
	assert.NotNil(t, got.LastHeartbeatAt)
}

func TestDeleteOnlyFromTerminalStates(t *testing.T) {
	core, store, _ := newTestCore(t)
	owner := newOwner(t)

	agent, err := core.CreateAgent(context.Background(), owner, "demo", models.AgentSpec{})
	require.NoError(t, err)

	err = core.DeleteAgent(context.Background(), owner, agent.AgentID)
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.Conflict))

	require.NoError(t, store.UpdateAgentStatus(agent.AgentID, models.StatusStopped, time.Now()))
	require.NoError(t, core.DeleteAgent(context.Background(), owner, agent.AgentID))

	_, err = store.GetAgent(agent.AgentID)
	assert.True(t, apierrors.Is(err, apierrors.NotFound))
}
