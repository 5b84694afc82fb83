// Package access evaluates rank-based tool permissions for a guild.
//
// WoW guild ranks count downward in authority: rank 0 is the guild master,
// rank 1 an officer, and larger numbers are progressively less privileged.
// All comparisons between ranks go through IsAtLeastAsPrivileged.
package access

import (
	"encoding/json"
	"strconv"
)

// CallerRank is the caller's rank within one guild, or unknown when no
// member row resolved to the caller.
type CallerRank struct {
	rank  int
	known bool
}

// Unknown is the rank of a caller with no member row in the guild.
var Unknown = CallerRank{}

// Known returns the CallerRank for a resolved member rank.
func Known(rank int) CallerRank {
	return CallerRank{rank: rank, known: true}
}

// Value returns the rank and whether it is known.
func (r CallerRank) Value() (int, bool) {
	return r.rank, r.known
}

// IsKnown reports whether the rank resolved.
func (r CallerRank) IsKnown() bool {
	return r.known
}

func (r CallerRank) String() string {
	if !r.known {
		return "unknown"
	}
	return strconv.Itoa(r.rank)
}

// MarshalJSON encodes an unknown rank as null.
func (r CallerRank) MarshalJSON() ([]byte, error) {
	if !r.known {
		return []byte("null"), nil
	}
	return json.Marshal(r.rank)
}

// UnmarshalJSON accepts an integer or null.
func (r *CallerRank) UnmarshalJSON(data []byte) error {
	var v *int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*r = Unknown
		return nil
	}
	*r = Known(*v)
	return nil
}

// IsAtLeastAsPrivileged reports whether caller holds required's authority or
// more. Equal ranks qualify. An unknown caller never qualifies.
func IsAtLeastAsPrivileged(caller CallerRank, required int) bool {
	if !caller.known {
		return false
	}
	return caller.rank <= required
}
