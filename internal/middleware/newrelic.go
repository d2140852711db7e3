package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the nrgin transaction with the actor and the order or
// rider in the path, and reports handler errors. It must run after nrgin.Middleware.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}
		if actor, ok := ActorFrom(c); ok {
			txn.AddAttribute("actor.id", actor.ID)
			txn.AddAttribute("actor.role", string(actor.Role))
		}
		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource.id", id)
		}
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
