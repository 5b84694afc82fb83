// Package gate decides what a caller may see of a guild. Every check reads
// the request's guild context afresh; nothing is memoized across requests.
package gate

import (
	"errors"

	"github.com/hoolgg/hool/gateway/access"
	"github.com/hoolgg/hool/gateway/guild"
)

// Rank returns children when the caller is at least as privileged as
// threshold and fallback otherwise. A pending or failed context always
// yields fallback.
func Rank[T any](gc *guild.Context, threshold int, children, fallback T) T {
	if gc == nil || !gc.Ready() {
		return fallback
	}
	if access.IsAtLeastAsPrivileged(gc.Rank(), threshold) {
		return children
	}
	return fallback
}

// PageStatus is the state of a guarded page.
type PageStatus string

const (
	PageLoading PageStatus = "loading"
	PageError   PageStatus = "error"
	PageDenied  PageStatus = "denied"
	PageGranted PageStatus = "granted"
)

// PageState is what a tool page renders instead of, or before, its content.
type PageState struct {
	Status   PageStatus       `json:"status"`
	Reason   access.Reason    `json:"reason,omitempty"`
	Message  string           `json:"message,omitempty"`
	Decision *access.Decision `json:"decision,omitempty"`
}

// Granted reports whether the protected content may be shown.
func (p PageState) Granted() bool { return p.Status == PageGranted }

// Page guards a tool page.
func Page(gc *guild.Context, tool string) PageState {
	if gc == nil {
		return PageState{Status: PageLoading}
	}
	switch gc.Status() {
	case guild.StatusPending:
		return PageState{Status: PageLoading}
	case guild.StatusFailed:
		return PageState{Status: PageError, Message: failureMessage(gc)}
	}
	d, err := gc.Decide(tool)
	if err != nil {
		return PageState{Status: PageError, Message: err.Error()}
	}
	state := PageState{Status: PageDenied, Reason: d.Reason, Message: d.Message(), Decision: &d}
	if d.Allowed {
		state.Status = PageGranted
	}
	return state
}

func failureMessage(gc *guild.Context) string {
	var re *guild.ResolveError
	if errors.As(gc.Err(), &re) {
		return re.Message
	}
	if gc.Err() != nil {
		return gc.Err().Error()
	}
	return guild.ErrNotResolved.Error()
}
