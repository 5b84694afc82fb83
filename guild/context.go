// Package guild builds the per-request guild context: the guild row, its
// permission table, its roster and the caller's rank within it.
package guild

import (
	"errors"

	"github.com/hoolgg/hool/gateway/access"
	"github.com/hoolgg/hool/gateway/model"
)

// ErrNotResolved is returned by guards asked to evaluate a context that is
// still pending or failed.
var ErrNotResolved = errors.New("guild: context not resolved")

// Status is the resolution state of a Context.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Context is the resolved guild state for one caller. Until it is ready its
// accessors return zero values, so a failed or pending resolution never
// exposes permissions without the roster that gives them meaning.
type Context struct {
	guildID  string
	identity *model.Identity
	status   Status
	err      error

	guild       model.Guild
	permissions []model.GuildPermission
	members     []model.GuildMember
	memberCount int
	rank        access.CallerRank
}

// Pending returns an unresolved context for guildID.
func Pending(guildID string, identity *model.Identity) *Context {
	return &Context{guildID: guildID, identity: identity}
}

// GuildID returns the guild the context was requested for.
func (c *Context) GuildID() string { return c.guildID }

// Identity returns the caller the context was resolved for.
func (c *Context) Identity() *model.Identity { return c.identity }

// Status returns the resolution state.
func (c *Context) Status() Status { return c.status }

// Ready reports whether both the settings and the roster loaded.
func (c *Context) Ready() bool { return c.status == StatusReady }

// Err returns the resolution error of a failed context.
func (c *Context) Err() error { return c.err }

// Guild returns the guild row.
func (c *Context) Guild() (model.Guild, bool) {
	if !c.Ready() {
		return model.Guild{}, false
	}
	return c.guild, true
}

// Permissions returns the guild's permission table.
func (c *Context) Permissions() []model.GuildPermission {
	if !c.Ready() {
		return nil
	}
	return c.permissions
}

// Members returns the guild roster.
func (c *Context) Members() []model.GuildMember {
	if !c.Ready() {
		return nil
	}
	return c.members
}

// MemberCount returns the member count reported with the settings.
func (c *Context) MemberCount() int {
	if !c.Ready() {
		return 0
	}
	return c.memberCount
}

// Rank returns the caller's rank, unknown unless ready.
func (c *Context) Rank() access.CallerRank {
	if !c.Ready() {
		return access.Unknown
	}
	return c.rank
}

// IsGM reports whether the caller is the guild master.
func (c *Context) IsGM() bool {
	return access.IsAtLeastAsPrivileged(c.Rank(), model.RankGuildMaster)
}

// IsOfficer reports whether the caller is an officer or the guild master.
func (c *Context) IsOfficer() bool {
	return access.IsAtLeastAsPrivileged(c.Rank(), model.RankOfficer)
}

// CanAccess reports whether the caller may use tool.
func (c *Context) CanAccess(tool string) bool {
	return c.Ready() && access.CanAccess(c.rank, tool, c.permissions)
}

// Decide evaluates tool for the caller. It fails with ErrNotResolved unless
// the context is ready.
func (c *Context) Decide(tool string) (access.Decision, error) {
	if !c.Ready() {
		return access.Decision{Tool: tool, Rank: access.Unknown}, ErrNotResolved
	}
	return access.Decide(c.rank, tool, c.permissions), nil
}

// View is the JSON form of a ready context.
type View struct {
	GuildID     string                     `json:"guild_id"`
	Guild       model.Guild                `json:"guild"`
	Permissions []model.GuildPermission    `json:"permissions"`
	Members     []model.GuildMember        `json:"members"`
	MemberCount int                        `json:"member_count"`
	RankID      access.CallerRank          `json:"rank_id"`
	IsGM        bool                       `json:"is_gm"`
	IsOfficer   bool                       `json:"is_officer"`
	Tools       map[string]access.Decision `json:"tools"`
}

// View renders the context. It returns false unless the context is ready.
func (c *Context) View() (View, bool) {
	if !c.Ready() {
		return View{}, false
	}
	tools := make(map[string]access.Decision, len(c.permissions))
	for _, p := range c.permissions {
		tools[p.ToolName] = access.Decide(c.rank, p.ToolName, c.permissions)
	}
	return View{
		GuildID:     c.guildID,
		Guild:       c.guild,
		Permissions: c.permissions,
		Members:     c.members,
		MemberCount: c.memberCount,
		RankID:      c.rank,
		IsGM:        c.IsGM(),
		IsOfficer:   c.IsOfficer(),
		Tools:       tools,
	}, true
}
