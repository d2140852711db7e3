package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"delivery/internal/domain"
)

const (
	// ActorIDHeader carries the authenticated caller's id, set by the upstream gateway.
	ActorIDHeader = "X-Actor-ID"
	// ActorRoleHeader carries the caller's platform role.
	ActorRoleHeader = "X-Actor-Role"

	actorKey = "actor"
)

// ActorMiddleware reads the caller identity forwarded by the auth gateway and
// rejects requests without a known role.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(ActorIDHeader))
		role, ok := domain.ParseRole(c.GetHeader(ActorRoleHeader))
		if id == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or unknown actor"})
			return
		}
		c.Set(actorKey, domain.Actor{ID: id, Role: role})
		c.Next()
	}
}

// ActorFrom returns the actor stored by ActorMiddleware.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}
