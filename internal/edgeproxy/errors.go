package edgeproxy

import (
	"github.com/gin-gonic/gin"

	"github.com/cypher-asi/aura-swarm/internal/apierrors"
)

// renderError maps any error onto the shared taxonomy's HTTP status
// and aborts the request.
func renderError(c *gin.Context, err error) {
	ae := apierrors.As(err)
	c.AbortWithStatusJSON(ae.StatusCode(), ae.ToResponse())
}
