package registry

import "github.com/cypher-asi/aura-swarm/internal/apierrors"

// errNotFound is returned (wrapped in an *apierrors.AppError) when a
// lookup finds no record. Callers distinguish "not found" from failure
// via apierrors.Is(err, apierrors.NotFound), matching the data model's
// option-typed return contract.
func errNotFound(what string) error {
	return apierrors.NewNotFound(what + " not found")
}

func errStorage(what string, cause error) error {
	return apierrors.NewInternal("registry storage error: "+what, cause)
}
