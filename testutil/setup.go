package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/cache"
	"github.com/stretchr/testify/require"
)

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// FakeService is an in-process stand-in for one upstream REST service.
// Routes are registered on Engine; every request is counted by method+path.
type FakeService struct {
	Engine *gin.Engine
	Server *httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

// NewFakeService starts a fake upstream and closes it when the test ends.
func NewFakeService(t *testing.T) *FakeService {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &FakeService{Engine: gin.New(), calls: make(map[string]int)}
	f.Engine.Use(func(c *gin.Context) {
		f.mu.Lock()
		f.calls[c.Request.Method+" "+c.Request.URL.Path]++
		f.mu.Unlock()
		c.Next()
	})
	f.Server = httptest.NewServer(f.Engine)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL of the fake service.
func (f *FakeService) URL() string { return f.Server.URL }

// Calls returns how many times method+path was requested.
func (f *FakeService) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

// RequireCookie aborts with 401 unless the request carries name=value.
func RequireCookie(name string, valid func(string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := c.Cookie(name)
		if err != nil || !valid(v) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.Next()
	}
}
