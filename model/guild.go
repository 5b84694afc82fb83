package model

import "time"

// Well-known WoW guild ranks. Lower rank_id means more authority.
const (
	RankGuildMaster = 0
	RankOfficer     = 1
	RankEveryone    = 9
)

// Tool names gated per guild.
const (
	ToolProgress     = "progress"
	ToolRecruitment  = "recruitment"
	ToolRaidPlanning = "raid_planning"
)

// Guild is the guild row owned by the guild service.
type Guild struct {
	ID        ID         `json:"id"`
	Name      string     `json:"name"`
	Realm     string     `json:"realm"`
	GMBnetID  int64      `json:"gm_bnet_id"`
	Crest     *Crest     `json:"crest,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at"`
}

// Crest is the optional guild emblem.
type Crest struct {
	EmblemID        int    `json:"emblem_id"`
	EmblemColor     string `json:"emblem_color"`
	BorderID        int    `json:"border_id"`
	BorderColor     string `json:"border_color"`
	BackgroundColor string `json:"background_color"`
}

// GuildMember links one character of one account to a guild.
type GuildMember struct {
	CharacterName string    `json:"character_name"`
	GuildID       ID        `json:"guild_id"`
	BnetID        int64     `json:"bnet_id"`
	RankID        int       `json:"rank_id"`
	RankName      string    `json:"rank_name"`
	LastSync      time.Time `json:"last_sync"`
}

// GuildPermission configures which ranks may use a tool.
type GuildPermission struct {
	GuildID   ID     `json:"guild_id"`
	ToolName  string `json:"tool_name" binding:"required"`
	MinRankID int    `json:"min_rank_id" binding:"min=0,max=9"`
	Enabled   bool   `json:"enabled"`
}

// DefaultPermissions mirrors what the guild service seeds on guild creation.
func DefaultPermissions(guildID ID) []GuildPermission {
	return []GuildPermission{
		{GuildID: guildID, ToolName: ToolProgress, MinRankID: RankEveryone, Enabled: true},
		{GuildID: guildID, ToolName: ToolRecruitment, MinRankID: RankOfficer, Enabled: true},
	}
}

// GuildListResponse is the body of GET /guilds.
type GuildListResponse struct {
	Guilds []Guild `json:"guilds"`
}

// GuildSettingsResponse is the body of GET /guilds/{id}/settings.
type GuildSettingsResponse struct {
	Guild       Guild             `json:"guild"`
	Permissions []GuildPermission `json:"permissions"`
	MemberCount int               `json:"member_count"`
}

// GuildMembersResponse is the body of GET /guilds/{id}/members.
type GuildMembersResponse struct {
	Members []GuildMember `json:"members"`
}

// PermissionCheck is the body of GET /guilds/{id}/permissions/check.
type PermissionCheck struct {
	Allowed bool   `json:"allowed"`
	RankID  *int   `json:"rank_id"`
	Reason  string `json:"reason"`
}

// PermissionsUpdate is the body of PUT /guilds/{id}/permissions.
type PermissionsUpdate struct {
	Permissions []GuildPermission `json:"permissions" binding:"required,dive"`
}
