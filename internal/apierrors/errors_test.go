package apierrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  *AppError
		code int
	}{
		{NewUnauthorized("x"), http.StatusUnauthorized},
		{NewForbidden("x"), http.StatusForbidden},
		{NewNotFound("x"), http.StatusNotFound},
		{NewConflict("x"), http.StatusConflict},
		{NewQuotaExceeded("x"), http.StatusTooManyRequests},
		{NewRateLimited("x"), http.StatusTooManyRequests},
		{NewInternal("x", nil), http.StatusInternalServerError},
		{NewUpstream("x", nil), http.StatusBadGateway},
		{NewUnavailable("x"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.StatusCode(), "kind %s", tc.err.Kind)
	}
}

func TestResponseOmitsDetails(t *testing.T) {
	e := NewInternal("registry storage error", errors.New("open /secret/path: permission denied"))
	e.Details = "db_password=hunter2"

	resp := e.ToResponse()
	assert.Equal(t, "internal", resp.Error)
	assert.Equal(t, "registry storage error", resp.Message)
	assert.NotContains(t, fmt.Sprintf("%+v", resp), "hunter2")
}

func TestAsExtractsWrappedAppError(t *testing.T) {
	inner := NewForbidden("caller is not the owner")
	wrapped := fmt.Errorf("dispatching: %w", inner)

	ae := As(wrapped)
	assert.Equal(t, Forbidden, ae.Kind)
}

func TestAsSynthesizesInternalForUntypedErrors(t *testing.T) {
	ae := As(errors.New("plain failure"))
	assert.Equal(t, Internal, ae.Kind)
	assert.Equal(t, http.StatusInternalServerError, ae.StatusCode())
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewNotFound("agent not found"))
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Conflict))
	assert.False(t, Is(nil, NotFound))
}
