package session_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hoolgg/hool/gateway/session"
	"github.com/hoolgg/hool/gateway/testutil"
	"github.com/hoolgg/hool/gateway/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authFake struct {
	*testutil.FakeService
	valid string
}

// newAuthFake serves /auth/me for the access cookie equal to valid.
// /auth/refresh swaps in the valid cookie when refreshOK.
func newAuthFake(t *testing.T, valid string, refreshOK bool) *authFake {
	f := &authFake{FakeService: testutil.NewFakeService(t), valid: valid}
	f.Engine.POST("/auth/refresh", func(c *gin.Context) {
		if !refreshOK {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token expired"})
			return
		}
		c.SetCookie("access_token", valid, 900, "/", "", false, true)
		c.Status(http.StatusOK)
	})
	f.Engine.POST("/auth/logout", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "down"})
	})
	f.Engine.GET("/auth/me", testutil.RequireCookie("access_token", func(v string) bool { return v == valid }),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"bnet_id": 4242, "username": "Thrall"})
		})
	return f
}

func newResolver(t *testing.T, f *authFake, ttl time.Duration) *session.Resolver {
	c, err := upstream.New("guild", f.URL())
	require.NoError(t, err)
	cc, _ := testutil.SetupTestCache(t)
	return session.NewResolver(c, cc, session.DefaultCookies, ttl, zap.NewNop())
}

func sessWith(access string) *upstream.Session {
	return upstream.NewSession([]*http.Cookie{
		{Name: "access_token", Value: access},
		{Name: "refresh_token", Value: "r1"},
	})
}

func signed(t *testing.T, exp time.Time) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, session.Claims{
		BnetID:           4242,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}).SignedString([]byte("upstream-secret"))
	require.NoError(t, err)
	return tok
}

func TestResolve_Success(t *testing.T) {
	f := newAuthFake(t, "good", true)
	r := newResolver(t, f, 0)

	id, err := r.Resolve(context.Background(), sessWith("good"))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, int64(4242), id.BnetID)
	assert.Equal(t, 0, f.Calls(http.MethodPost, "/auth/refresh"))
}

func TestResolve_RefreshThenRetry(t *testing.T) {
	f := newAuthFake(t, "good", true)
	r := newResolver(t, f, 0)

	id, err := r.Resolve(context.Background(), sessWith("expired"))
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, 1, f.Calls(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 2, f.Calls(http.MethodGet, "/auth/me"))
}

func TestResolve_RefreshFailsLeavesIdentityNil(t *testing.T) {
	f := newAuthFake(t, "good", false)
	r := newResolver(t, f, 0)
	sess := sessWith("expired")

	id, err := r.Resolve(context.Background(), sess)
	assert.NoError(t, err)
	assert.Nil(t, id)
	assert.True(t, sess.Expired())
	assert.Equal(t, 1, f.Calls(http.MethodPost, "/auth/refresh"))
	assert.Equal(t, 1, f.Calls(http.MethodGet, "/auth/me"))
}

func TestResolve_ServiceDownIsAnError(t *testing.T) {
	c, err := upstream.New("guild", "http://127.0.0.1:1")
	require.NoError(t, err)
	r := session.NewResolver(c, nil, session.DefaultCookies, 0, zap.NewNop())

	id, err := r.Resolve(context.Background(), sessWith("good"))
	assert.Error(t, err)
	assert.Nil(t, id)
}

func TestResolve_CachesIdentity(t *testing.T) {
	f := newAuthFake(t, "good", true)
	r := newResolver(t, f, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := r.Resolve(ctx, sessWith("good"))
		require.NoError(t, err)
		require.NotNil(t, id)
	}
	assert.Equal(t, 1, f.Calls(http.MethodGet, "/auth/me"))

	r.Invalidate(ctx, sessWith("good"))
	_, err := r.Resolve(ctx, sessWith("good"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Calls(http.MethodGet, "/auth/me"))
}

func TestResolve_ExpiredTokenBypassesCache(t *testing.T) {
	tok := signed(t, time.Now().Add(300*time.Millisecond))
	f := newAuthFake(t, tok, true)
	r := newResolver(t, f, time.Hour)
	ctx := context.Background()

	_, err := r.Resolve(ctx, sessWith(tok))
	require.NoError(t, err)
	_, err = r.Resolve(ctx, sessWith(tok))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Calls(http.MethodGet, "/auth/me"))

	time.Sleep(400 * time.Millisecond)
	_, err = r.Resolve(ctx, sessWith(tok))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Calls(http.MethodGet, "/auth/me"))
}

func TestLogout_ClearsCacheEvenWhenUpstreamFails(t *testing.T) {
	f := newAuthFake(t, "good", true)
	r := newResolver(t, f, time.Minute)
	ctx := context.Background()

	_, err := r.Resolve(ctx, sessWith("good"))
	require.NoError(t, err)
	r.Logout(ctx, sessWith("good"))
	assert.Equal(t, 1, f.Calls(http.MethodPost, "/auth/logout"))

	_, err = r.Resolve(ctx, sessWith("good"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Calls(http.MethodGet, "/auth/me"))
}

func TestCookies_KeyAndPresence(t *testing.T) {
	ck := session.DefaultCookies
	none := upstream.NewSession(nil)
	assert.False(t, ck.HasAny(none))
	assert.Equal(t, "", ck.Key(none))

	refreshOnly := upstream.NewSession([]*http.Cookie{{Name: "refresh_token", Value: "r"}})
	assert.True(t, ck.HasAny(refreshOnly))
	assert.Equal(t, "", ck.Key(refreshOnly))

	a := ck.Key(sessWith("one"))
	b := ck.Key(sessWith("two"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ck.Key(sessWith("one")))
}

func TestParseUnverified(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims, err := session.ParseUnverified(signed(t, exp))
	require.NoError(t, err)
	assert.Equal(t, int64(4242), claims.BnetID)
	assert.True(t, claims.ExpiresAt.Time.Equal(exp))

	_, err = session.ParseUnverified("not-a-jwt")
	assert.Error(t, err)
}
