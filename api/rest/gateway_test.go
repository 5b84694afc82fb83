package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/api/rest"
	"github.com/hoolgg/hool/gateway/audit"
	"github.com/hoolgg/hool/gateway/cache"
	"github.com/hoolgg/hool/gateway/editor"
	"github.com/hoolgg/hool/gateway/guild"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/scheduler"
	"github.com/hoolgg/hool/gateway/session"
	"github.com/hoolgg/hool/gateway/status"
	"github.com/hoolgg/hool/gateway/testutil"
	"github.com/hoolgg/hool/gateway/upstream"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminKey = "secret"

// Callers by Battle.net id, matching testutil.Roster.
var (
	gm      = model.Identity{BnetID: 1, Username: "thrall#1"}
	officer = model.Identity{BnetID: 2, Username: "jaina#2"}
	raider  = model.Identity{BnetID: 3, Username: "rexxar#3"}
)

// fakeTools stands in for the progress and recruitment services. Both
// require the access cookie the guild service issues.
type fakeTools struct {
	*testutil.FakeService

	mu         sync.Mutex
	failing    map[string]int
	lastQuery  string
	crestPosts []model.CrestEntry
	notes      map[string]string
}

func newFakeTools(t *testing.T) *fakeTools {
	f := &fakeTools{
		FakeService: testutil.NewFakeService(t),
		failing:     make(map[string]int),
		notes:       make(map[string]string),
	}
	e := f.Engine
	e.Use(func(c *gin.Context) {
		f.mu.Lock()
		code := f.failing[c.Request.Method+" "+c.FullPath()]
		f.mu.Unlock()
		if code != 0 {
			c.AbortWithStatusJSON(code, gin.H{"error": "Upstream broke"})
			return
		}
		c.Next()
	})
	p := e.Group("", testutil.RequireCookie("access_token", func(v string) bool { return v == testutil.ValidAccess }))

	p.GET("/guilds/:id/progress/characters", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"characters": []gin.H{{"id": 501, "name": "Rexxar"}}})
	})
	p.GET("/guilds/:id/progress/message", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.GuildMessage{GuildID: model.ID(c.Param("id")), GMMessage: "Push Gallywix"})
	})
	p.PUT("/guilds/:id/progress/message", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "saved"})
	})
	p.GET("/guilds/:id/progress/roadmap", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"weeks": []int{1, 2, 3}})
	})
	p.GET("/guilds/:id/progress/members", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"members": []string{"Thrall", "Jaina"}})
	})
	p.GET("/guilds/:id/characters/:cid/tasks", func(c *gin.Context) {
		c.JSON(http.StatusOK, model.TasksResponse{
			CharacterID: model.ID(c.Param("cid")), CurrentWeek: 3,
			Weekly: []model.TaskItem{{ID: "w1", Label: "Raid"}, {ID: "w2", Label: "Delves"}},
		})
	})
	p.POST("/guilds/:id/characters/:cid/tasks", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	p.GET("/users/me/characters/:cid/crests", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"character_id": c.Param("cid"),
			"week":         c.Query("week"),
			"crests":       []model.CrestEntry{{CrestType: "Runed", WeekNumber: 3, Collected: 45}},
		})
	})
	p.POST("/users/me/characters/:cid/crests", func(c *gin.Context) {
		var body model.CrestEntry
		_ = c.ShouldBindJSON(&body)
		f.mu.Lock()
		f.crestPosts = append(f.crestPosts, body)
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	p.GET("/guilds/:id/recruitment/candidates", func(c *gin.Context) {
		f.mu.Lock()
		f.lastQuery = c.Request.URL.RawQuery
		f.mu.Unlock()
		c.JSON(http.StatusOK, model.CandidateListResponse{Candidates: []model.RecruitmentCandidate{
			{ID: "c1", CandidateName: "Sylvanas", Rating: 3, Status: "new"},
		}, Count: 1})
	})
	p.GET("/guilds/:id/recruitment/search", func(c *gin.Context) {
		f.mu.Lock()
		f.lastQuery = c.Request.URL.RawQuery
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"results": []string{"Sylvanas"}})
	})
	p.PUT("/guilds/:id/recruitment/candidates/:cand", func(c *gin.Context) {
		var body model.CandidateUpdate
		_ = c.ShouldBindJSON(&body)
		if body.Notes != nil {
			f.mu.Lock()
			f.notes[c.Param("cand")] = *body.Notes
			f.mu.Unlock()
		}
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	p.DELETE("/guilds/:id/recruitment/candidates/:cand", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	p.PUT("/guilds/:id/recruitment/candidates/:cand/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	return f
}

// fail makes method+route answer code; 0 restores it.
func (f *fakeTools) fail(method, route string, code int) {
	f.mu.Lock()
	f.failing[method+" "+route] = code
	f.mu.Unlock()
}

func (f *fakeTools) crests() []model.CrestEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CrestEntry(nil), f.crestPosts...)
}

func (f *fakeTools) query() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeTools) note(cand string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notes[cand]
}

type gateway struct {
	r       *gin.Engine
	guild   *testutil.FakeGuildAPI
	tools   *fakeTools
	audit   *audit.Service
	pubsub  cache.PubSub
	editor  *editor.Service
	prober  *status.Prober
	cookies []*http.Cookie
}

func newGateway(t *testing.T, caller model.Identity) *gateway {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	fg := testutil.NewFakeGuildAPI(t, caller, testutil.Roster())
	tools := newFakeTools(t)

	guildClient, err := upstream.New("guild", fg.URL())
	require.NoError(t, err)
	progressClient, err := upstream.New("progress", tools.URL(), upstream.WithRefresher(guildClient))
	require.NoError(t, err)
	recruitClient, err := upstream.New("recruitment", tools.URL(), upstream.WithRefresher(guildClient))
	require.NoError(t, err)

	store, ps := testutil.SetupTestCache(t)
	ed := editor.New(progressClient, recruitClient, store, editor.Options{
		Window: time.Hour, WriteTimeout: 2 * time.Second, CrestCap: 100, StateTTL: time.Hour,
	}, logger)
	t.Cleanup(ed.Close)
	auditSvc := audit.New(store, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	prober := status.New(store, []status.Target{guildClient, progressClient}, status.Options{}, logger)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	rest.Register(r, rest.Deps{
		Guild:       guildClient,
		Progress:    progressClient,
		Recruitment: recruitClient,
		Sessions:    session.NewResolver(guildClient, store, session.DefaultCookies, time.Minute, logger),
		Guilds:      guild.NewResolver(guildClient, logger),
		Editor:      ed,
		Audit:       auditSvc,
		PubSub:      ps,
		Prober:      prober,
		Scheduler:   sched,
		LoginURL:    "/login",
		AdminKey:    adminKey,
		InternalIPs: []string{"127.0.0.1"},
		Logger:      logger,
	})

	return &gateway{
		r: r, guild: fg, tools: tools, audit: auditSvc, pubsub: ps, editor: ed, prober: prober,
		cookies: testutil.AuthCookies(testutil.ValidAccess),
	}
}

func (g *gateway) do(method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if cookies == nil {
		cookies = g.cookies
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	g.r.ServeHTTP(w, req)
	return w
}

func (g *gateway) get(path string) *httptest.ResponseRecorder {
	return g.do(http.MethodGet, path, nil)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func jsonUnmarshal(w *httptest.ResponseRecorder, out interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), out)
}
