package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/upstream"
)

// AbortWithUpstreamError maps a failed upstream call onto the gateway
// response: 401 sends the browser to login, other failures mirror the
// upstream status (5xx as 502) with its message and a retry hint.
func AbortWithUpstreamError(c *gin.Context, err error) {
	status := upstream.GatewayStatus(err)
	if status == http.StatusUnauthorized {
		AbortUnauthenticated(c)
		return
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":     upstream.UserMessage(err),
		"retryable": upstream.Retryable(err),
	})
}
