package gate

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/access"
	"github.com/hoolgg/hool/gateway/guild"
	"github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/upstream"
)

// ContextKey stores the request's *guild.Context.
const ContextKey = "guild_context"

// Resolve loads the guild context for the ":id" route parameter. It never
// aborts: the guards below decide what a failed context means for the route.
func Resolve(r *guild.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		gc := r.Resolve(c.Request.Context(), middleware.GetSession(c), c.Param("id"), middleware.GetIdentity(c))
		c.Set(ContextKey, gc)
		c.Next()
	}
}

// FromContext returns the request's guild context, or nil before Resolve.
func FromContext(c *gin.Context) *guild.Context {
	if v, exists := c.Get(ContextKey); exists {
		return v.(*guild.Context)
	}
	return nil
}

// RequireReady lets the handler run only once the guild context resolved.
func RequireReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		if gc := FromContext(c); !abortUnresolved(c, gc) {
			c.Next()
		}
	}
}

// RequireTool lets the handler run only when the caller may use tool.
func RequireTool(tool string) gin.HandlerFunc {
	return func(c *gin.Context) {
		gc := FromContext(c)
		if abortUnresolved(c, gc) {
			return
		}
		d, err := gc.Decide(tool)
		if err != nil {
			abortUnresolved(c, nil)
			return
		}
		if !d.Allowed {
			abortDenied(c, d)
			return
		}
		c.Next()
	}
}

// RequireRank lets the handler run only when the caller is at least as
// privileged as threshold.
func RequireRank(threshold int) gin.HandlerFunc {
	return func(c *gin.Context) {
		gc := FromContext(c)
		if abortUnresolved(c, gc) {
			return
		}
		if d := access.DecideRank(gc.Rank(), threshold); !d.Allowed {
			abortDenied(c, d)
			return
		}
		c.Next()
	}
}

func abortDenied(c *gin.Context, d access.Decision) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error":    d.Message(),
		"reason":   d.Reason,
		"message":  d.Message(),
		"decision": d,
	})
}

// abortUnresolved ends the request unless gc is ready, reporting whether it
// did so.
func abortUnresolved(c *gin.Context, gc *guild.Context) bool {
	if gc != nil && gc.Ready() {
		return false
	}
	if gc == nil || gc.Status() == guild.StatusPending {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":     guild.ErrNotResolved.Error(),
			"retryable": true,
		})
		return true
	}

	err := gc.Err()
	status := upstream.GatewayStatus(err)
	if status == http.StatusUnauthorized {
		middleware.AbortUnauthenticated(c)
		return true
	}
	message := upstream.UserMessage(err)
	var re *guild.ResolveError
	if errors.As(err, &re) {
		message = re.Message
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":     message,
		"retryable": upstream.Retryable(err),
	})
	return true
}
