package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/api/sse"
	"github.com/hoolgg/hool/gateway/audit"
	"github.com/hoolgg/hool/gateway/cache"
	"github.com/hoolgg/hool/gateway/editor"
	"github.com/hoolgg/hool/gateway/gate"
	"github.com/hoolgg/hool/gateway/guild"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/scheduler"
	"github.com/hoolgg/hool/gateway/session"
	"github.com/hoolgg/hool/gateway/status"
	"go.uber.org/zap"
)

// GuildAPI is the guild service: plain calls plus session refresh.
type GuildAPI interface {
	Upstream
	Refresher
}

// Deps is everything the routes need.
type Deps struct {
	Guild       GuildAPI
	Progress    Upstream
	Recruitment Upstream

	Sessions  *session.Resolver
	Guilds    *guild.Resolver
	Editor    *editor.Service
	Audit     *audit.Service
	PubSub    cache.PubSub
	Prober    *status.Prober
	Scheduler *scheduler.Scheduler

	LoginURL    string
	AdminKey    string
	InternalIPs []string
	Logger      *zap.Logger
}

// Register mounts every gateway route on r. Global middleware (trace id,
// logging, recovery, CORS, rate limiting) is the caller's.
func Register(r *gin.Engine, d Deps) {
	authH := NewAuthHandler(d.Sessions, d.Guild, d.LoginURL, d.Logger)
	guildH := NewGuildHandler(d.Guild, d.Guilds, d.Audit, d.PubSub, d.Logger)
	progressH := NewProgressHandler(d.Progress, d.Editor, d.Logger)
	recruitH := NewRecruitmentHandler(d.Recruitment, d.Editor, d.Audit, d.Logger)
	draftH := NewDraftHandler(d.Editor, d.Logger)
	adminH := NewAdminHandler(d.Prober, d.Scheduler, d.Logger)
	sseH := sse.NewHandler(d.PubSub, d.Logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", mw.Session())
	api.GET("/status", adminH.Status)

	authG := api.Group("/auth")
	authG.GET("/login", authH.Login)
	authG.POST("/logout", authH.Logout)
	authG.POST("/refresh", authH.Refresh)

	authed := api.Group("", mw.Auth(d.Sessions, d.LoginURL, d.Logger))
	authed.GET("/auth/me", authH.Me)
	authed.GET("/guilds", guildH.List)
	authed.POST("/guilds", guildH.Create)
	authed.PUT("/characters/:cid/crests", progressH.EditCrest)
	authed.GET("/characters/:cid/crests", progressH.Crests)

	drafts := authed.Group("/drafts")
	drafts.GET("", draftH.List)
	drafts.POST("/:key/commit", draftH.Commit)
	drafts.DELETE("/:key", draftH.Discard)

	g := authed.Group("/guilds/:id", gate.Resolve(d.Guilds))
	ready := gate.RequireReady()
	gm := gate.RequireRank(model.RankGuildMaster)

	g.GET("", ready, guildH.Get)
	g.PUT("", gm, guildH.Update)
	g.DELETE("", gm, guildH.Delete)
	g.GET("/settings", ready, guildH.Settings)
	g.GET("/members", ready, guildH.Members)
	g.GET("/context", ready, guildH.Context)
	g.GET("/pages/:tool", guildH.Page)
	g.GET("/permissions/check", ready, guildH.CheckPermission)
	g.PUT("/permissions", gm, guildH.UpdatePermissions)
	g.GET("/audit", gm, guildH.Audit)
	g.GET("/events", ready, sseH.ServeGuildEvents)

	progress := g.Group("", gate.RequireTool(model.ToolProgress))
	toProgress := Proxy(d.Progress, "/api")
	progress.GET("/progress/overview", progressH.Overview)
	progress.GET("/team-progress", progressH.Team)
	for _, p := range []string{"characters", "members", "roadmap", "comparisons"} {
		progress.GET("/progress/"+p, toProgress)
	}
	progress.GET("/progress/message", toProgress)
	progress.PUT("/progress/message", gate.RequireRank(model.RankOfficer), toProgress)
	progress.GET("/progress/settings", toProgress)
	progress.PUT("/progress/settings", gate.RequireRank(model.RankOfficer), toProgress)
	progress.GET("/season", toProgress)
	progress.GET("/characters", toProgress)
	progress.GET("/characters/:cid", toProgress)
	progress.GET("/characters/:cid/tasks", progressH.Tasks)
	progress.POST("/characters/:cid/tasks", progressH.ToggleTask)
	progress.PUT("/characters/:cid/professions", progressH.EditProfession)
	for _, p := range []string{"crests", "vault", "gear", "bis", "talents", "professions"} {
		progress.GET("/characters/:cid/"+p, toProgress)
	}

	recruit := g.Group("/recruitment", gate.RequireTool(model.ToolRecruitment))
	toRecruit := Proxy(d.Recruitment, "/api")
	recruit.GET("/candidates", recruitH.Candidates)
	recruit.POST("/candidates", toRecruit)
	recruit.GET("/candidates/:cand", toRecruit)
	recruit.DELETE("/candidates/:cand", recruitH.Delete)
	recruit.PUT("/candidates/:cand/rating", recruitH.Rate)
	recruit.PUT("/candidates/:cand/status", recruitH.Move)
	recruit.PUT("/candidates/:cand/notes", recruitH.Notes)
	recruit.POST("/candidates/:cand/contact", toRecruit)
	for _, p := range []string{"search", "pipeline", "composition", "compare", "history", "settings"} {
		recruit.GET("/"+p, toRecruit)
	}
	recruit.GET("/categories", toRecruit)
	recruit.POST("/categories", toRecruit)
	recruit.PUT("/categories/:cat", toRecruit)
	recruit.DELETE("/categories/:cat", toRecruit)

	internal := r.Group("/internal", mw.IPWhitelist(d.InternalIPs))
	internal.GET("/upstreams", adminH.Upstreams)

	admin := r.Group("/api/admin", AdminAuth(d.AdminKey))
	admin.GET("/scheduler", adminH.ListSchedulerTasks)
	admin.POST("/probe", adminH.Probe)
}
