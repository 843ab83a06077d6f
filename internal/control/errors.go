package control

import (
	"fmt"
	"time"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// errInvalidState reports an operation attempted from a lifecycle state
// that does not permit it, carrying the allowed set for the message.
func errInvalidState(current models.AgentStatus, allowed ...models.AgentStatus) error {
	return apierrors.NewConflict(fmt.Sprintf("invalid state %s: allowed %v", current, allowed))
}

func errNotOwner() error {
	return apierrors.NewForbidden("caller is not the owner of this agent")
}

func errQuotaExceeded(max int) error {
	return apierrors.NewQuotaExceeded(fmt.Sprintf("owner has reached the maximum of %d agents", max))
}

// errSchedulerTimeout is returned by wake when the agent does not reach
// Running or Error within the configured wake timeout.
func errSchedulerTimeout(d time.Duration) error {
	return apierrors.NewUnavailable("scheduler timeout waiting for agent to become running after " + d.String())
}

func in(status models.AgentStatus, set ...models.AgentStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}
