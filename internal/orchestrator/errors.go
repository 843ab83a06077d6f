package orchestrator

import (
	"fmt"

	apierrs "k8s.io/apimachinery/pkg/api/errors"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
)

// ErrEndpointUnavailable is returned by GetPodEndpoint when no endpoint
// can be resolved, whatever the underlying reason.
func ErrEndpointUnavailable() error {
	return apierrors.NewUnavailable("agent endpoint unavailable")
}

// wrapK8sErr classifies a client-go error into the shared taxonomy.
// Callers handle their expected outcomes before reaching it (schedule
// treats AlreadyExists as success, terminate and get_pod_endpoint
// treat NotFound specially); this helper is for the remaining,
// genuinely exceptional paths.
func wrapK8sErr(action string, err error) error {
	if err == nil {
		return nil
	}
	if apierrs.IsNotFound(err) {
		return apierrors.NewNotFound(fmt.Sprintf("%s: pod not found", action))
	}
	if apierrs.IsAlreadyExists(err) {
		return apierrors.NewConflict(fmt.Sprintf("%s: pod already exists", action))
	}
	return apierrors.NewUpstream(fmt.Sprintf("orchestrator: %s", action), err)
}

func errWrongLabelLength(got, want int) error {
	return fmt.Errorf("orchestrator: agent-id label has wrong length: got %d bytes want %d", got, want)
}
