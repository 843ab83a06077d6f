package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hex32(b byte) string {
	buf := make([]byte, 32)
	for i := range buf {
		buf[i] = b
	}
	return hex.EncodeToString(buf)
}

func newTestJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	jwks := jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{Key: pub, KeyID: kid, Algorithm: "RS256", Use: "sig"},
		},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
}

func signTestToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims rawClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestKeySetRefreshesOnCacheMiss(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newTestJWKSServer(t, "key-1", &priv.PublicKey)
	defer srv.Close()

	ks, err := NewKeySet(srv.URL, srv.Client())
	require.NoError(t, err)
	defer ks.Close()

	// NewKeySet primes the cache; drop the key so Get has to refetch.
	ks.mu.Lock()
	delete(ks.keys, "key-1")
	ks.mu.Unlock()

	key, err := ks.Get(context.Background(), "key-1")
	require.NoError(t, err)
	assert.NotNil(t, key)
}

func TestKeySetNotFoundAfterRefresh(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newTestJWKSServer(t, "key-1", &priv.PublicKey)
	defer srv.Close()

	ks, err := NewKeySet(srv.URL, srv.Client())
	require.NoError(t, err)
	defer ks.Close()

	_, err = ks.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, KeyNotFound, ve.Reason)
}

func TestAdapterValidateTokenSuccess(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwksSrv := newTestJWKSServer(t, "key-1", &priv.PublicKey)
	defer jwksSrv.Close()

	owner := hex32(0x01)
	namespace := hex32(0x02)

	claims := rawClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		OwnerID:          owner,
		NamespaceID:      namespace,
		SessionContextID: "ctx-1",
		MFA:              true,
	}
	token := signTestToken(t, priv, "key-1", claims)

	adapter := &Adapter{}
	ks, err := NewKeySet(jwksSrv.URL, jwksSrv.Client())
	require.NoError(t, err)
	defer ks.Close()
	adapter.keys = ks

	got, err := adapter.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, owner, got.OwnerID.String())
	assert.True(t, got.MFAFlag)
	assert.Equal(t, "ctx-1", got.SessionContextID)
}

func TestAdapterValidateTokenExpired(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwksSrv := newTestJWKSServer(t, "key-1", &priv.PublicKey)
	defer jwksSrv.Close()

	claims := rawClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		OwnerID:     hex32(0x01),
		NamespaceID: hex32(0x02),
	}
	token := signTestToken(t, priv, "key-1", claims)

	adapter := &Adapter{}
	ks, err := NewKeySet(jwksSrv.URL, jwksSrv.Client())
	require.NoError(t, err)
	defer ks.Close()
	adapter.keys = ks

	_, err = adapter.ValidateToken(context.Background(), token)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, Expired, ve.Reason)
}

func TestAdapterValidateTokenBadIssuer(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwksSrv := newTestJWKSServer(t, "key-1", &priv.PublicKey)
	defer jwksSrv.Close()

	claims := rawClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "https://wrong-issuer.example",
		},
		OwnerID:     hex32(0x01),
		NamespaceID: hex32(0x02),
	}
	token := signTestToken(t, priv, "key-1", claims)

	adapter := &Adapter{issuer: "https://expected-issuer.example"}
	ks, err := NewKeySet(jwksSrv.URL, jwksSrv.Client())
	require.NoError(t, err)
	defer ks.Close()
	adapter.keys = ks

	_, err = adapter.ValidateToken(context.Background(), token)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, BadIssuer, ve.Reason)
}
