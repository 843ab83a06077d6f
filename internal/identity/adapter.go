// Package identity implements the identity adapter: it validates
// bearer credentials issued by an external identity service into the
// claim shape the rest of the control plane needs, and caches that
// service's signing keys. It persists no state of its own.
package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cypher-asi/aura-swarm/internal/models"
)

// Claims is the validated identity asserted by a bearer credential.
type Claims struct {
	OwnerID          models.OwnerID
	NamespaceID      models.NamespaceID
	SessionContextID string
	MFAFlag          bool
	ExpiresAt        time.Time
}

// Validator is the capability seam the edge proxy depends on. Production
// wires *Adapter; tests wire an in-memory fake that returns canned
// claims without any network calls.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Config configures an Adapter against one external identity service.
type Config struct {
	IssuerURL string
	Audience  string
	// HTTPClient is used both for OIDC discovery and JWKS fetches; left
	// nil it defaults to a 5s-timeout client.
	HTTPClient *http.Client
}

// Adapter is the production Validator, backed by a remote OIDC issuer.
type Adapter struct {
	issuer   string
	audience string
	keys     *KeySet
}

// NewAdapter performs OIDC discovery against cfg.IssuerURL to locate the
// issuer's JWKS endpoint, then starts the signing-key cache.
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}

	discoveryCtx := oidc.ClientContext(ctx, httpClient)
	provider, err := oidc.NewProvider(discoveryCtx, cfg.IssuerURL)
	if err != nil {
		return nil, fail(UpstreamFailure, "OIDC discovery", err)
	}

	var claimsHolder struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&claimsHolder); err != nil {
		return nil, fail(UpstreamFailure, "reading discovery document", err)
	}

	keys, err := NewKeySet(claimsHolder.JWKSURI, httpClient)
	if err != nil {
		return nil, fail(UpstreamFailure, "priming signing key cache", err)
	}

	return &Adapter{issuer: cfg.IssuerURL, audience: cfg.Audience, keys: keys}, nil
}

// Close stops the adapter's background key-refresh loop.
func (a *Adapter) Close() {
	a.keys.Close()
}

type rawClaims struct {
	jwt.RegisteredClaims
	OwnerID          string `json:"owner_id"`
	NamespaceID      string `json:"namespace_id"`
	SessionContextID string `json:"session_context_id"`
	MFA              bool   `json:"mfa"`
}

// ValidateToken parses and verifies a bearer JWT, returning the claims
// the rest of the control plane needs or one of the seven typed
// failures.
func (a *Adapter) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	var claims rawClaims

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fail(MalformedClaims, "missing kid header", nil)
		}
		return a.keys.Get(ctx, kid)
	}, jwt.WithValidMethods([]string{"RS256", "ES256"}))

	if err != nil {
		return nil, classifyParseError(err)
	}
	if !parsed.Valid {
		return nil, fail(BadSignature, "", nil)
	}

	if a.issuer != "" && claims.Issuer != a.issuer {
		return nil, fail(BadIssuer, claims.Issuer, nil)
	}
	if a.audience != "" && !containsAudience(claims.Audience, a.audience) {
		return nil, fail(BadAudience, "", nil)
	}

	owner, err := decodeHex32(claims.OwnerID)
	if err != nil {
		return nil, fail(MalformedClaims, "owner_id: "+err.Error(), nil)
	}
	namespace, err := decodeHex32(claims.NamespaceID)
	if err != nil {
		return nil, fail(MalformedClaims, "namespace_id: "+err.Error(), nil)
	}
	if claims.ExpiresAt == nil {
		return nil, fail(MalformedClaims, "missing exp", nil)
	}

	return &Claims{
		OwnerID:          models.OwnerID(owner),
		NamespaceID:      models.NamespaceID(namespace),
		SessionContextID: claims.SessionContextID,
		MFAFlag:          claims.MFA,
		ExpiresAt:        claims.ExpiresAt.Time,
	}, nil
}

func classifyParseError(err error) error {
	if err == nil {
		return nil
	}
	// The keyfunc surfaces our own typed failures (KeyNotFound,
	// UpstreamFailure, MalformedClaims) wrapped by jwt's generic
	// ErrTokenUnverifiable; unwrap to the original classification
	// before falling back to jwt's own sentinel errors.
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fail(Expired, "", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fail(BadSignature, "", err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidClaims):
		return fail(MalformedClaims, "", err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return fail(MalformedClaims, "token not yet valid", err)
	default:
		return fail(MalformedClaims, err.Error(), err)
	}
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
