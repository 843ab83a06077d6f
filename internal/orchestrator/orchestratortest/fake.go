// Package orchestratortest provides an in-memory orchestrator.Driver so
// control-core tests run without a Kubernetes cluster.
package orchestratortest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// Fake is a goroutine-safe in-memory orchestrator.Driver.
type Fake struct {
	mu        sync.Mutex
	scheduled map[models.AgentID]models.AgentSpec
	endpoints map[models.AgentID]string

	// ScheduleErr/TerminateErr/HealthErr, when set, are returned
	// verbatim by the corresponding method instead of normal behavior,
	// letting tests exercise failure paths.
	ScheduleErr  error
	TerminateErr error
	HealthErr    error
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		scheduled: make(map[models.AgentID]models.AgentSpec),
		endpoints: make(map[models.AgentID]string),
	}
}

func (f *Fake) ScheduleAgent(ctx context.Context, agentID models.AgentID, ownerID models.OwnerID, spec models.AgentSpec) error {
	if f.ScheduleErr != nil {
		return f.ScheduleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[agentID] = spec
	return nil
}

func (f *Fake) TerminateAgent(ctx context.Context, agentID models.AgentID) error {
	if f.TerminateErr != nil {
		return f.TerminateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, agentID)
	delete(f.endpoints, agentID)
	return nil
}

func (f *Fake) GetPodEndpoint(ctx context.Context, agentID models.AgentID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[agentID]
	if !ok {
		return "", apierrors.NewUnavailable("agent endpoint unavailable")
	}
	return ep, nil
}

func (f *Fake) CheckHealth(ctx context.Context, endpoint string) error {
	return f.HealthErr
}

// GetLogs returns a canned log line, ignoring tailLines/sinceSeconds:
// tests exercise the logs handler's wiring, not the orchestrator's log
// retention behavior.
func (f *Fake) GetLogs(ctx context.Context, agentID models.AgentID, tailLines int64, sinceSeconds int64) (io.ReadCloser, error) {
	f.mu.Lock()
	_, ok := f.scheduled[agentID]
	f.mu.Unlock()
	if !ok {
		return nil, apierrors.NewNotFound("pod not found")
	}
	return io.NopCloser(strings.NewReader("fake log output\n")), nil
}

// SetEndpoint lets a test simulate the reconciler having observed a pod
// IP for agentID.
func (f *Fake) SetEndpoint(agentID models.AgentID, endpoint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints[agentID] = endpoint
}

// IsScheduled reports whether ScheduleAgent has been called for
// agentID and not since terminated.
func (f *Fake) IsScheduled(agentID models.AgentID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.scheduled[agentID]
	return ok
}
