package testutil

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/model"
)

// ValidAccess is the only access cookie value FakeGuildAPI accepts.
const ValidAccess = "good"

// FakeGuildAPI is a stateful stand-in for the guild service: auth endpoints,
// guild CRUD, settings, roster and permissions.
type FakeGuildAPI struct {
	*FakeService

	mu             sync.Mutex
	refreshOK      bool
	revoked        bool
	identity       model.Identity
	guilds         map[string]*model.Guild
	permissions    map[string][]model.GuildPermission
	members        map[string][]model.GuildMember
	settingsStatus int
	membersStatus  int
}

// NewFakeGuildAPI starts a guild service that knows one caller and one guild
// "77" with the default permissions and the given roster.
func NewFakeGuildAPI(t *testing.T, caller model.Identity, roster []model.GuildMember) *FakeGuildAPI {
	t.Helper()
	f := &FakeGuildAPI{
		FakeService: NewFakeService(t),
		refreshOK:   true,
		identity:    caller,
		guilds:      make(map[string]*model.Guild),
		permissions: make(map[string][]model.GuildPermission),
		members:     make(map[string][]model.GuildMember),
	}
	f.guilds["77"] = &model.Guild{ID: "77", Name: "Hool", Realm: "Draenor", GMBnetID: 1, CreatedAt: time.Unix(1700000000, 0).UTC()}
	f.permissions["77"] = model.DefaultPermissions("77")
	f.members["77"] = roster
	f.routes()
	return f
}

// SetRefreshOK controls whether /auth/refresh succeeds.
func (f *FakeGuildAPI) SetRefreshOK(ok bool) {
	f.mu.Lock()
	f.refreshOK = ok
	f.mu.Unlock()
}

// Revoke makes every credential invalid, including the refresh token.
func (f *FakeGuildAPI) Revoke() {
	f.mu.Lock()
	f.revoked, f.refreshOK = true, false
	f.mu.Unlock()
}

// SetPermissions replaces a guild's permission table.
func (f *FakeGuildAPI) SetPermissions(guildID string, perms []model.GuildPermission) {
	f.mu.Lock()
	f.permissions[guildID] = perms
	f.mu.Unlock()
}

// Permissions returns a guild's current permission table.
func (f *FakeGuildAPI) Permissions(guildID string) []model.GuildPermission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.GuildPermission(nil), f.permissions[guildID]...)
}

// FailSettings makes GET /guilds/{id}/settings answer status (0 restores it).
func (f *FakeGuildAPI) FailSettings(status int) {
	f.mu.Lock()
	f.settingsStatus = status
	f.mu.Unlock()
}

// FailMembers makes GET /guilds/{id}/members answer status (0 restores it).
func (f *FakeGuildAPI) FailMembers(status int) {
	f.mu.Lock()
	f.membersStatus = status
	f.mu.Unlock()
}

func (f *FakeGuildAPI) validAccess(v string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.revoked && v == ValidAccess
}

func (f *FakeGuildAPI) routes() {
	e := f.Engine
	e.POST("/auth/refresh", func(c *gin.Context) {
		f.mu.Lock()
		ok := f.refreshOK
		f.mu.Unlock()
		if _, err := c.Cookie("refresh_token"); err != nil || !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token expired"})
			return
		}
		c.SetCookie("access_token", ValidAccess, 900, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "Token refreshed"})
	})
	e.POST("/auth/logout", func(c *gin.Context) {
		c.SetCookie("access_token", "", -1, "/", "", false, true)
		c.SetCookie("refresh_token", "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	})

	p := e.Group("", RequireCookie("access_token", f.validAccess))
	p.GET("/auth/me", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		c.JSON(http.StatusOK, f.identity)
	})
	p.GET("/guilds", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		out := model.GuildListResponse{Guilds: []model.Guild{}}
		for _, g := range f.guilds {
			out.Guilds = append(out.Guilds, *g)
		}
		c.JSON(http.StatusOK, out)
	})
	p.POST("/guilds", func(c *gin.Context) {
		var g model.Guild
		if err := c.ShouldBindJSON(&g); err != nil || g.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		g.ID = model.ID("g" + time.Now().Format("150405.000000"))
		g.GMBnetID = f.identity.BnetID
		f.guilds[string(g.ID)] = &g
		f.permissions[string(g.ID)] = model.DefaultPermissions(g.ID)
		c.JSON(http.StatusCreated, g)
	})
	p.GET("/guilds/:id", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		g, ok := f.guilds[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Guild not found"})
			return
		}
		c.JSON(http.StatusOK, g)
	})
	p.PUT("/guilds/:id", func(c *gin.Context) {
		var body struct {
			Name  string       `json:"name"`
			Crest *model.Crest `json:"crest"`
		}
		_ = c.ShouldBindJSON(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		g, ok := f.guilds[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Guild not found"})
			return
		}
		if body.Name != "" {
			g.Name = body.Name
		}
		if body.Crest != nil {
			g.Crest = body.Crest
		}
		c.JSON(http.StatusOK, g)
	})
	p.DELETE("/guilds/:id", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.guilds, c.Param("id"))
		c.Status(http.StatusNoContent)
	})
	p.GET("/guilds/:id/settings", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.settingsStatus != 0 {
			c.JSON(f.settingsStatus, gin.H{"error": "Settings unavailable"})
			return
		}
		g, ok := f.guilds[c.Param("id")]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Guild not found"})
			return
		}
		c.JSON(http.StatusOK, model.GuildSettingsResponse{
			Guild:       *g,
			Permissions: f.permissions[string(g.ID)],
			MemberCount: len(f.members[string(g.ID)]),
		})
	})
	p.GET("/guilds/:id/members", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.membersStatus != 0 {
			c.JSON(f.membersStatus, gin.H{"message": "Roster unavailable"})
			return
		}
		c.JSON(http.StatusOK, model.GuildMembersResponse{Members: f.members[c.Param("id")]})
	})
	p.PUT("/guilds/:id/permissions", func(c *gin.Context) {
		var body model.PermissionsUpdate
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		id := c.Param("id")
		current := f.permissions[id]
		for _, upd := range body.Permissions {
			replaced := false
			for i := range current {
				if current[i].ToolName == upd.ToolName {
					current[i].Enabled, current[i].MinRankID = upd.Enabled, upd.MinRankID
					replaced = true
				}
			}
			if !replaced {
				upd.GuildID = model.ID(id)
				current = append(current, upd)
			}
		}
		f.permissions[id] = current
		c.JSON(http.StatusOK, gin.H{"permissions": current})
	})
}

// AuthCookies returns browser cookies carrying the given access token and a
// refresh token.
func AuthCookies(access string) []*http.Cookie {
	return []*http.Cookie{
		{Name: "access_token", Value: access},
		{Name: "refresh_token", Value: "r1"},
	}
}

// Roster is a three-member roster: GM (bnet 1), officer (bnet 2) and a
// raider at rank 2 (bnet 3).
func Roster() []model.GuildMember {
	return []model.GuildMember{
		{CharacterName: "Thrall", GuildID: "77", BnetID: 1, RankID: model.RankGuildMaster, RankName: "Guild Master"},
		{CharacterName: "Jaina", GuildID: "77", BnetID: 2, RankID: model.RankOfficer, RankName: "Officer"},
		{CharacterName: "Rexxar", GuildID: "77", BnetID: 3, RankID: 2, RankName: "Raider"},
	}
}
