// Package rest is the gateway's browser-facing HTTP API. Handlers resolve
// nothing themselves: the session, identity and guild context are attached
// by middleware, and every upstream call goes through the caller's session.
package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/upstream"
)

// Upstream is one upstream service as the handlers see it.
type Upstream interface {
	Do(ctx context.Context, sess *upstream.Session, method, path string, query url.Values, body, out interface{}) error
}

// forward relays the request to api at path, passing the query string and
// JSON body through unchanged, and writes the upstream's JSON back.
func forward(c *gin.Context, api Upstream, path string) {
	var body interface{}
	if c.Request.Body != nil && c.Request.Method != http.MethodGet && c.Request.Method != http.MethodDelete {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		if len(strings.TrimSpace(string(raw))) > 0 {
			if !json.Valid(raw) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "body must be JSON"})
				return
			}
			body = json.RawMessage(raw)
		}
	}

	var out json.RawMessage
	if err := api.Do(c.Request.Context(), mw.GetSession(c), c.Request.Method, path, c.Request.URL.Query(), body, &out); err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	if len(out) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// Proxy forwards the request to the same path on api, minus prefix.
func Proxy(api Upstream, prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		forward(c, api, strings.TrimPrefix(c.Request.URL.EscapedPath(), prefix))
	}
}

// owner is the working-state owner of the request: the caller's account.
func owner(c *gin.Context) int64 {
	if id := mw.GetIdentity(c); id != nil {
		return id.BnetID
	}
	return 0
}

func guildPath(c *gin.Context, parts ...string) string {
	p := "/guilds/" + url.PathEscape(c.Param("id"))
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}
