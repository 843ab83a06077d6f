// Package identitytest provides a canned identity.Validator for tests
// of the control core and edge proxy that need a deterministic identity
// without any network calls.
package identitytest

import (
	"context"
	"sync"

	"github.com/cypher-asi/aura-swarm/internal/identity"
)

// Fake returns a fixed Claims value for any token present in Tokens, and
// a ValidationError otherwise.
type Fake struct {
	mu     sync.Mutex
	Tokens map[string]*identity.Claims
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{Tokens: make(map[string]*identity.Claims)}
}

// Grant registers token as valid, resolving to claims.
func (f *Fake) Grant(token string, claims *identity.Claims) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tokens[token] = claims
}

func (f *Fake) ValidateToken(ctx context.Context, token string) (*identity.Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.Tokens[token]
	if !ok {
		return nil, &identity.ValidationError{Reason: identity.BadSignature}
	}
	c := *claims
	return &c, nil
}
