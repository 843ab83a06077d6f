package identity

import "github.com/cypher-asi/aura-swarm/internal/apierrors"

// FailureReason distinguishes the seven typed bearer-validation failures
// the identity adapter can produce.
type FailureReason string

const (
	Expired         FailureReason = "expired"
	BadSignature    FailureReason = "bad_signature"
	BadIssuer       FailureReason = "bad_issuer"
	BadAudience     FailureReason = "bad_audience"
	MalformedClaims FailureReason = "malformed_claims"
	KeyNotFound     FailureReason = "key_not_found"
	UpstreamFailure FailureReason = "upstream_failure"
)

// ValidationError carries one of the seven typed failure reasons.
type ValidationError struct {
	Reason FailureReason
	detail string
	cause  error
}

func (e *ValidationError) Error() string {
	if e.detail != "" {
		return string(e.Reason) + ": " + e.detail
	}
	return string(e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.cause }

func fail(reason FailureReason, detail string, cause error) *ValidationError {
	return &ValidationError{Reason: reason, detail: detail, cause: cause}
}

// ToAppError maps a ValidationError onto the shared error taxonomy. Only
// UpstreamFailure (the identity service itself being unreachable) maps
// to Upstream; every other reason is a client-facing Unauthorized.
func ToAppError(err error) *apierrors.AppError {
	ve, ok := err.(*ValidationError)
	if !ok {
		return apierrors.NewUnauthorized("invalid credentials")
	}
	if ve.Reason == UpstreamFailure {
		return apierrors.NewUpstream("identity service unavailable", ve)
	}
	return apierrors.NewUnauthorized("invalid credentials: " + string(ve.Reason))
}
