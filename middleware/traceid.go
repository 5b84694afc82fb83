package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hoolgg/hool/gateway/upstream"
)

const (
	TraceIDKey      = "trace_id"
	TraceIDHeader   = upstream.TraceHeader
	RequestIDHeader = "X-Request-ID"
)

const maxTraceIDLen = 128

// TraceID assigns every request a trace id: the caller's X-Trace-ID or
// X-Request-ID when it is usable, a fresh UUID otherwise. The id is echoed in
// the response and carried on the request context so upstream calls send it.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = c.GetHeader(RequestIDHeader)
		}
		if !validTraceID(traceID) {
			traceID = uuid.New().String()
		}
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)
		c.Request = c.Request.WithContext(upstream.WithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}

// validTraceID accepts short printable ASCII ids; anything else could smuggle
// header or log content.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

// GetTraceID retrieves the trace ID from the Gin context.
func GetTraceID(c *gin.Context) string {
	if v, exists := c.Get(TraceIDKey); exists {
		return v.(string)
	}
	return ""
}
