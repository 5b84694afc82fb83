package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/session"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
)

// Refresher renews a session against the guild service.
type Refresher interface {
	Refresh(ctx context.Context, sess *upstream.Session) error
}

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	sessions  *session.Resolver
	refresher Refresher
	loginURL  string
	logger    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(sessions *session.Resolver, refresher Refresher, loginURL string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, refresher: refresher, loginURL: loginURL, logger: logger}
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, mw.GetIdentity(c))
}

// Login handles GET /api/auth/login by sending the browser to the Battle.net
// login flow, returning afterwards to the redirect parameter.
func (h *AuthHandler) Login(c *gin.Context) {
	u, err := url.Parse(h.loginURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login url misconfigured"})
		return
	}
	if target := c.Query("redirect"); isLocalPath(target) {
		q := u.Query()
		q.Set("redirect", target)
		u.RawQuery = q.Encode()
	}
	c.Redirect(http.StatusFound, u.String())
}

// Refresh handles POST /api/auth/refresh. Rotated cookies reach the browser
// through the session middleware.
func (h *AuthHandler) Refresh(c *gin.Context) {
	sess := mw.GetSession(c)
	if !h.sessions.Cookies().HasAny(sess) {
		mw.AbortUnauthenticated(c)
		return
	}
	h.sessions.Invalidate(c.Request.Context(), sess)
	if err := h.refresher.Refresh(c.Request.Context(), sess); err != nil {
		h.logger.Info("explicit refresh failed", zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
		if upstream.IsUnauthorized(err) {
			mw.AbortUnauthenticated(c)
			return
		}
		mw.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refreshed"})
}

// Logout handles POST /api/auth/logout. It always succeeds for the browser:
// the cached identity is dropped and the credential cookies are expired even
// when the guild service cannot be reached.
func (h *AuthHandler) Logout(c *gin.Context) {
	sess := mw.GetSession(c)
	h.sessions.Logout(c.Request.Context(), sess)
	cookies := h.sessions.Cookies()
	for _, names := range [][]string{cookies.Access, cookies.Refresh} {
		for _, name := range names {
			if _, ok := sess.Cookie(name); ok {
				c.SetCookie(name, "", -1, "/", "", false, true)
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// isLocalPath accepts only same-origin absolute paths as redirect targets.
func isLocalPath(p string) bool {
	if p == "" || p[0] != '/' || len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Host == "" && u.Scheme == ""
}
