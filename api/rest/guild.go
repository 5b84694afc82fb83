package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/api/sse"
	"github.com/hoolgg/hool/gateway/audit"
	"github.com/hoolgg/hool/gateway/cache"
	"github.com/hoolgg/hool/gateway/gate"
	"github.com/hoolgg/hool/gateway/guild"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
)

// GuildHandler handles guild REST endpoints.
type GuildHandler struct {
	api      Upstream
	resolver *guild.Resolver
	audit    *audit.Service
	pubsub   cache.PubSub
	logger   *zap.Logger
}

// NewGuildHandler creates a new GuildHandler.
func NewGuildHandler(api Upstream, resolver *guild.Resolver, auditSvc *audit.Service, pubsub cache.PubSub, logger *zap.Logger) *GuildHandler {
	return &GuildHandler{api: api, resolver: resolver, audit: auditSvc, pubsub: pubsub, logger: logger}
}

type createGuildRequest struct {
	Name  string       `json:"name"  binding:"required,min=2,max=64"`
	Realm string       `json:"realm" binding:"required"`
	Crest *model.Crest `json:"crest"`
}

type updateGuildRequest struct {
	Name  string       `json:"name,omitempty"  binding:"omitempty,min=2,max=64"`
	Realm string       `json:"realm,omitempty"`
	Crest *model.Crest `json:"crest,omitempty"`
}

// List handles GET /api/guilds.
func (h *GuildHandler) List(c *gin.Context) {
	var out model.GuildListResponse
	if err := h.api.Do(c.Request.Context(), mw.GetSession(c), http.MethodGet, "/guilds", nil, nil, &out); err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	if out.Guilds == nil {
		out.Guilds = []model.Guild{}
	}
	c.JSON(http.StatusOK, out)
}

// Create handles POST /api/guilds.
func (h *GuildHandler) Create(c *gin.Context) {
	var req createGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start := time.Now()
	var created model.Guild
	if err := h.api.Do(c.Request.Context(), mw.GetSession(c), http.MethodPost, "/guilds", nil, req, &created); err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	h.record(c, created.ID.String(), "guild.create", created.Name, req, start)
	c.JSON(http.StatusCreated, created)
}

// Get handles GET /api/guilds/:id.
func (h *GuildHandler) Get(c *gin.Context) {
	g, _ := gate.FromContext(c).Guild()
	c.JSON(http.StatusOK, g)
}

// Update handles PUT /api/guilds/:id (guild master only).
func (h *GuildHandler) Update(c *gin.Context) {
	var req updateGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start := time.Now()
	var updated model.Guild
	if err := h.api.Do(c.Request.Context(), mw.GetSession(c), http.MethodPut, guildPath(c), nil, req, &updated); err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	h.record(c, c.Param("id"), "guild.update", "", req, start)
	h.notify(c, sse.EventGuildUpdated)
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /api/guilds/:id (guild master only).
func (h *GuildHandler) Delete(c *gin.Context) {
	start := time.Now()
	if err := h.api.Do(c.Request.Context(), mw.GetSession(c), http.MethodDelete, guildPath(c), nil, nil, nil); err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	h.record(c, c.Param("id"), "guild.delete", "", nil, start)
	h.notify(c, sse.EventGuildDeleted)
	c.JSON(http.StatusOK, gin.H{"message": "guild deleted"})
}

// Settings handles GET /api/guilds/:id/settings.
func (h *GuildHandler) Settings(c *gin.Context) {
	gc := gate.FromContext(c)
	g, _ := gc.Guild()
	c.JSON(http.StatusOK, model.GuildSettingsResponse{
		Guild:       g,
		Permissions: gc.Permissions(),
		MemberCount: gc.MemberCount(),
	})
}

// Members handles GET /api/guilds/:id/members.
func (h *GuildHandler) Members(c *gin.Context) {
	c.JSON(http.StatusOK, model.GuildMembersResponse{Members: gate.FromContext(c).Members()})
}

// Context handles GET /api/guilds/:id/context: the guild, roster, caller
// rank and one access decision per configured tool.
func (h *GuildHandler) Context(c *gin.Context) {
	gc := gate.FromContext(c)
	view, _ := gc.View()
	c.JSON(http.StatusOK, contextResponse{
		View: view,
		Actions: gate.Rank(gc, model.RankGuildMaster, guildMasterActions,
			gate.Rank(gc, model.RankOfficer, officerActions, []string{})),
	})
}

// contextResponse adds the write actions the caller's rank unlocks, so the
// dashboard can hide controls the gateway would refuse.
type contextResponse struct {
	guild.View
	Actions []string `json:"actions"`
}

var (
	officerActions     = []string{"progress.message.edit", "progress.settings.edit"}
	guildMasterActions = []string{
		"guild.update", "guild.delete", "permissions.update", "audit.read",
		"progress.message.edit", "progress.settings.edit",
	}
)

// Page handles GET /api/guilds/:id/pages/:tool. Denials are page states,
// not errors, so every outcome but an expired session answers 200.
func (h *GuildHandler) Page(c *gin.Context) {
	gc := gate.FromContext(c)
	if gc != nil && gc.Status() == guild.StatusFailed && upstream.IsUnauthorized(gc.Err()) {
		mw.AbortUnauthenticated(c)
		return
	}
	c.JSON(http.StatusOK, gate.Page(gc, c.Param("tool")))
}

// CheckPermission handles GET /api/guilds/:id/permissions/check?tool=.
func (h *GuildHandler) CheckPermission(c *gin.Context) {
	tool := c.Query("tool")
	if tool == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tool is required"})
		return
	}
	gc := gate.FromContext(c)
	d, err := gc.Decide(tool)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
		return
	}
	check := model.PermissionCheck{Allowed: d.Allowed, Reason: d.Message()}
	if rank, ok := gc.Rank().Value(); ok {
		check.RankID = &rank
	}
	c.JSON(http.StatusOK, check)
}

// UpdatePermissions handles PUT /api/guilds/:id/permissions (guild master
// only). It answers with the guild context as it stands after the change.
func (h *GuildHandler) UpdatePermissions(c *gin.Context) {
	var req model.PermissionsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	guildID := model.ID(c.Param("id"))
	for i := range req.Permissions {
		req.Permissions[i].GuildID = guildID
	}

	start := time.Now()
	sess := mw.GetSession(c)
	if err := h.api.Do(c.Request.Context(), sess, http.MethodPut, guildPath(c, "permissions"), nil, req, nil); err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	h.record(c, guildID.String(), "permissions.update", "", req.Permissions, start)
	h.notify(c, sse.EventPermissionsUpdated)

	fresh := h.resolver.Refetch(c.Request.Context(), sess, gate.FromContext(c))
	view, ok := fresh.View()
	if !ok {
		// The update went through; only the read-back failed.
		c.JSON(http.StatusOK, gin.H{"permissions": req.Permissions, "refetch_error": upstream.UserMessage(fresh.Err())})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Audit handles GET /api/guilds/:id/audit (guild master only).
func (h *GuildHandler) Audit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.audit.Recent(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error("audit read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit log unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *GuildHandler) record(c *gin.Context, guildID, action, target string, detail interface{}, start time.Time) {
	recordAudit(c, h.audit, guildID, action, target, detail, start)
}

func (h *GuildHandler) notify(c *gin.Context, eventType string) {
	ev := sse.Event{Type: eventType, GuildID: c.Param("id"), ActorID: owner(c)}
	if err := sse.Publish(c.Request.Context(), h.pubsub, ev); err != nil {
		h.logger.Warn("guild event publish failed", zap.String("guild_id", ev.GuildID), zap.Error(err))
	}
}

func recordAudit(c *gin.Context, svc *audit.Service, guildID, action, target string, detail interface{}, start time.Time) {
	if svc == nil {
		return
	}
	e := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		GuildID:    guildID,
		ActorID:    owner(c),
		Action:     action,
		Target:     target,
		IP:         c.ClientIP(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if id := mw.GetIdentity(c); id != nil {
		e.ActorName = id.Username
	}
	svc.Log(e, detail)
}
