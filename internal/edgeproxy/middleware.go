package edgeproxy

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
	"github.com/cypher-asi/aura-swarm/internal/identity"
	"github.com/cypher-asi/aura-swarm/internal/models"
)

// claimsKey is the gin context key the authenticate middleware stores
// validated claims under.
const claimsKey = "claims"

// authenticate extracts the bearer credential, validates it via the
// identity adapter, and stores the resulting claims in the gin context
// for downstream handlers. A rejected credential yields 401 with a
// typed error code; an unreachable identity service yields 502.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			renderError(c, apierrors.NewUnauthorized("missing bearer token"))
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, prefix)

		claims, err := s.identity.ValidateToken(c.Request.Context(), token)
		if err != nil {
			renderError(c, identity.ToAppError(err))
			c.Abort()
			return
		}

		// Refresh the soft user cache. The external identity service
		// stays authoritative; a failed write never fails the request.
		if err := s.store.PutUser(&models.CachedUser{
			OwnerID:     claims.OwnerID,
			NamespaceID: claims.NamespaceID,
			MFAFlag:     claims.MFAFlag,
			LastSeenAt:  time.Now(),
		}); err != nil {
			s.log.Warn().Err(err).Msg("user cache refresh failed")
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// callerClaims retrieves the validated claims the authenticate
// middleware stored.
func callerClaims(c *gin.Context) *identity.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*identity.Claims)
	return claims
}
