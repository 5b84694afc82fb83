package middleware

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/session"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
)

const (
	SessionKey  = "upstream_session"
	IdentityKey = "identity"
	loginURLKey = "login_url"
)

// Session attaches an upstream session built from the request cookies. Any
// cookie an upstream rotates during the request is forwarded to the browser
// before the response header is written.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := upstream.NewSession(c.Request.Cookies())
		c.Set(SessionKey, sess)
		c.Writer = &cookieWriter{ResponseWriter: c.Writer, sess: sess}
		c.Next()
	}
}

// Auth requires a resolved identity. Requests without any credential
// cookie are rejected before an upstream is called; requests whose session
// the guild service rejects after one refresh are rejected too. Both 401s
// carry a login_url that returns the browser to the requested path.
func Auth(resolver *session.Resolver, loginURL string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(loginURLKey, loginURL)
		sess := GetSession(c)
		if !resolver.Cookies().HasAny(sess) {
			AbortUnauthenticated(c)
			return
		}

		id, err := resolver.Resolve(c.Request.Context(), sess)
		if err != nil {
			logger.Warn("identity resolution failed",
				zap.String("trace_id", GetTraceID(c)), zap.Error(err))
			AbortWithUpstreamError(c, err)
			return
		}
		if id == nil {
			AbortUnauthenticated(c)
			return
		}
		c.Set(IdentityKey, id)
		c.Next()

		if sess.Expired() {
			resolver.Invalidate(c.Request.Context(), sess)
		}
	}
}

// GetSession returns the request's upstream session. Outside Session it
// returns an empty session so callers never dereference nil.
func GetSession(c *gin.Context) *upstream.Session {
	if v, exists := c.Get(SessionKey); exists {
		return v.(*upstream.Session)
	}
	sess := upstream.NewSession(nil)
	c.Set(SessionKey, sess)
	return sess
}

// GetIdentity returns the authenticated identity, or nil.
func GetIdentity(c *gin.Context) *model.Identity {
	if v, exists := c.Get(IdentityKey); exists {
		return v.(*model.Identity)
	}
	return nil
}

// AbortUnauthenticated ends the request with 401 and a login URL.
func AbortUnauthenticated(c *gin.Context) {
	body := gin.H{"error": "not authenticated"}
	if login := c.GetString(loginURLKey); login != "" {
		body["login_url"] = loginRedirect(login, c.Request.URL.RequestURI())
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, body)
}

func loginRedirect(login, target string) string {
	u, err := url.Parse(login)
	if err != nil {
		return login
	}
	q := u.Query()
	q.Set("redirect", target)
	u.RawQuery = q.Encode()
	return u.String()
}

// cookieWriter forwards rotated upstream cookies once, ahead of the header.
type cookieWriter struct {
	gin.ResponseWriter
	sess *upstream.Session
	once sync.Once
}

func (w *cookieWriter) forward() {
	w.once.Do(func() {
		for _, ck := range w.sess.Rotated() {
			ck.Domain = ""
			http.SetCookie(w.ResponseWriter, ck)
		}
	})
}

func (w *cookieWriter) WriteHeader(code int) {
	w.forward()
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) WriteHeaderNow() {
	w.forward()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *cookieWriter) Write(data []byte) (int, error) {
	w.forward()
	return w.ResponseWriter.Write(data)
}

func (w *cookieWriter) WriteString(s string) (int, error) {
	w.forward()
	return w.ResponseWriter.WriteString(s)
}
