package rest_test

import (
	"net/http"
	"testing"

	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMe_ReturnsIdentity(t *testing.T) {
	g := newGateway(t, officer)

	w := g.get("/api/auth/me")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(2), body["bnet_id"])
	assert.Equal(t, "jaina#2", body["username"])
}

func TestMe_WithoutCookiesNeverCallsUpstream(t *testing.T) {
	g := newGateway(t, officer)

	w := g.do(http.MethodGet, "/api/guilds/77/context", nil, &http.Cookie{Name: "theme", Value: "dark"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, "not authenticated", body["error"])
	assert.Equal(t, "/login?redirect=%2Fapi%2Fguilds%2F77%2Fcontext", body["login_url"])
	assert.Zero(t, g.guild.Calls(http.MethodGet, "/auth/me"))
	assert.Zero(t, g.guild.Calls(http.MethodGet, "/guilds/77/settings"))
}

func TestStaleSession_OneRefreshServesEveryService(t *testing.T) {
	g := newGateway(t, raider)
	stale := testutil.AuthCookies("stale")

	w := g.do(http.MethodGet, "/api/guilds/77/progress/overview", nil, stale...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, 1, g.guild.Calls(http.MethodPost, "/auth/refresh"), "exactly one refresh")
	assert.Equal(t, 2, g.guild.Calls(http.MethodGet, "/auth/me"), "rejected once, then retried once")

	var rotated *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "access_token" {
			rotated = ck
		}
	}
	require.NotNil(t, rotated, "the refreshed cookie reaches the browser")
	assert.Equal(t, testutil.ValidAccess, rotated.Value)
}

func TestStaleSession_RefreshRejectedIsUnauthenticated(t *testing.T) {
	g := newGateway(t, raider)
	g.guild.SetRefreshOK(false)

	w := g.do(http.MethodGet, "/api/guilds", nil, testutil.AuthCookies("stale")...)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "/login?redirect=%2Fapi%2Fguilds", decode(t, w)["login_url"])
	assert.Equal(t, 1, g.guild.Calls(http.MethodPost, "/auth/refresh"))
	assert.Zero(t, g.guild.Calls(http.MethodGet, "/guilds"))
}

func TestRefresh_Explicit(t *testing.T) {
	g := newGateway(t, raider)

	w := g.do(http.MethodPost, "/api/auth/refresh", nil, testutil.AuthCookies("stale")...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Values("Set-Cookie")[0], "access_token="+testutil.ValidAccess)

	g.guild.SetRefreshOK(false)
	w = g.do(http.MethodPost, "/api/auth/refresh", nil, testutil.AuthCookies("stale")...)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_ExpiresCookiesAndDropsIdentity(t *testing.T) {
	g := newGateway(t, raider)

	require.Equal(t, http.StatusOK, g.get("/api/auth/me").Code)
	require.Equal(t, 1, g.guild.Calls(http.MethodGet, "/auth/me"))

	w := g.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, g.guild.Calls(http.MethodPost, "/auth/logout"))
	expired := 0
	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			expired++
		}
	}
	assert.GreaterOrEqual(t, expired, 2)

	// The cached identity is gone: the next request asks the guild service.
	require.Equal(t, http.StatusOK, g.get("/api/auth/me").Code)
	assert.Equal(t, 2, g.guild.Calls(http.MethodGet, "/auth/me"))
}

func TestLogin_RedirectsToLocalTargetsOnly(t *testing.T) {
	g := newGateway(t, raider)

	w := g.get("/api/auth/login?redirect=/guilds/77/progress")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?redirect=%2Fguilds%2F77%2Fprogress", w.Header().Get("Location"))

	for _, target := range []string{"https://evil.example", "//evil.example/x", "/\\evil"} {
		w = g.get("/api/auth/login?redirect=" + target)
		require.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"), target)
	}
}

func TestGuilds_ListAndCreate(t *testing.T) {
	g := newGateway(t, gm)

	w := g.get("/api/guilds")
	require.Equal(t, http.StatusOK, w.Code)
	var list model.GuildListResponse
	require.NoError(t, jsonUnmarshal(w, &list))
	require.Len(t, list.Guilds, 1)
	assert.Equal(t, model.ID("77"), list.Guilds[0].ID)

	w = g.do(http.MethodPost, "/api/guilds", map[string]string{"name": "Hool Alt", "realm": "Silvermoon"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Guild
	require.NoError(t, jsonUnmarshal(w, &created))
	assert.Equal(t, "Hool Alt", created.Name)
	assert.Equal(t, int64(1), created.GMBnetID)
}

func TestGuilds_CreateValidatesBeforeUpstream(t *testing.T) {
	g := newGateway(t, gm)

	w := g.do(http.MethodPost, "/api/guilds", map[string]string{"name": "H"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, g.guild.Calls(http.MethodPost, "/guilds"))
}
