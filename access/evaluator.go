package access

import (
	"fmt"

	"github.com/hoolgg/hool/gateway/model"
)

// Reason explains an access decision.
type Reason string

const (
	ReasonGranted       Reason = "granted"
	ReasonNotConfigured Reason = "not_configured"
	ReasonDisabled      Reason = "disabled"
	ReasonNotMember     Reason = "not_member"
	ReasonRankTooLow    Reason = "rank_too_low"
)

// Decision is the outcome of evaluating one tool for one caller.
type Decision struct {
	Tool         string     `json:"tool,omitempty"`
	Allowed      bool       `json:"allowed"`
	Reason       Reason     `json:"reason"`
	Rank         CallerRank `json:"rank_id"`
	RequiredRank *int       `json:"required_rank_id,omitempty"`
}

// Lookup finds the permission row for tool. Tool names match exactly.
func Lookup(perms []model.GuildPermission, tool string) (model.GuildPermission, bool) {
	for _, p := range perms {
		if p.ToolName == tool {
			return p, true
		}
	}
	return model.GuildPermission{}, false
}

// CanAccess reports whether caller may use tool under perms.
func CanAccess(caller CallerRank, tool string, perms []model.GuildPermission) bool {
	return Decide(caller, tool, perms).Allowed
}

// Decide evaluates tool access and records why. Checks run in a fixed order:
// missing row, disabled tool, unresolved caller, then rank.
func Decide(caller CallerRank, tool string, perms []model.GuildPermission) Decision {
	d := Decision{Tool: tool, Rank: caller}
	perm, ok := Lookup(perms, tool)
	if !ok {
		d.Reason = ReasonNotConfigured
		return d
	}
	required := perm.MinRankID
	d.RequiredRank = &required
	switch {
	case !perm.Enabled:
		d.Reason = ReasonDisabled
	case !caller.IsKnown():
		d.Reason = ReasonNotMember
	case !IsAtLeastAsPrivileged(caller, perm.MinRankID):
		d.Reason = ReasonRankTooLow
	default:
		d.Allowed = true
		d.Reason = ReasonGranted
	}
	return d
}

// DecideRank evaluates a bare rank threshold, as used by officer and guild
// master only actions that are not tied to a tool.
func DecideRank(caller CallerRank, threshold int) Decision {
	d := Decision{Rank: caller, RequiredRank: &threshold}
	switch {
	case !caller.IsKnown():
		d.Reason = ReasonNotMember
	case !IsAtLeastAsPrivileged(caller, threshold):
		d.Reason = ReasonRankTooLow
	default:
		d.Allowed = true
		d.Reason = ReasonGranted
	}
	return d
}

// Message is the explanation shown to the caller when access is denied.
func (d Decision) Message() string {
	subject := d.Tool
	if subject == "" {
		subject = "this page"
	}
	switch d.Reason {
	case ReasonGranted:
		return "Authorized"
	case ReasonNotConfigured:
		return fmt.Sprintf("The %s tool is not configured for this guild.", d.Tool)
	case ReasonDisabled:
		return fmt.Sprintf("The %s tool is not enabled for this guild. Contact your Guild Master to enable it.", d.Tool)
	case ReasonNotMember:
		return fmt.Sprintf("You need a character in this guild to access %s.", subject)
	default:
		required := 0
		if d.RequiredRank != nil {
			required = *d.RequiredRank
		}
		return fmt.Sprintf("You need rank %d or higher to access %s. Your current rank is %s.", required, subject, d.Rank)
	}
}
