package guild

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/hoolgg/hool/gateway/access"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const fallbackMessage = "Failed to load guild data."

// API is the slice of the guild service the resolver needs.
type API interface {
	Get(ctx context.Context, sess *upstream.Session, path string, out interface{}) error
}

// ResolveError is the single error a failed context reports.
type ResolveError struct {
	GuildID string
	Message string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("guild %s: %s", e.GuildID, e.Message)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Resolver loads guild contexts.
type Resolver struct {
	api    API
	logger *zap.Logger
}

// NewResolver creates a Resolver over the guild service.
func NewResolver(api API, logger *zap.Logger) *Resolver {
	return &Resolver{api: api, logger: logger}
}

// Resolve fetches the guild settings and roster concurrently and joins them.
// Both must succeed; otherwise the returned context is failed and exposes
// nothing but its error.
func (r *Resolver) Resolve(ctx context.Context, sess *upstream.Session, guildID string, identity *model.Identity) *Context {
	gc := Pending(guildID, identity)

	var (
		settings model.GuildSettingsResponse
		roster   model.GuildMembersResponse
	)
	base := "/guilds/" + url.PathEscape(guildID)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.api.Get(gctx, sess, base+"/settings", &settings)
	})
	g.Go(func() error {
		return r.api.Get(gctx, sess, base+"/members", &roster)
	})
	if err := g.Wait(); err != nil {
		gc.status = StatusFailed
		gc.err = &ResolveError{GuildID: guildID, Message: userMessage(err), Err: err}
		r.logger.Warn("guild context resolution failed",
			zap.String("guild_id", guildID), zap.Error(err))
		return gc
	}

	gc.guild = settings.Guild
	gc.permissions = settings.Permissions
	gc.memberCount = settings.MemberCount
	gc.members = roster.Members
	gc.rank = r.callerRank(guildID, roster.Members, identity)
	gc.status = StatusReady
	return gc
}

// Refetch resolves prev's guild again for the same caller.
func (r *Resolver) Refetch(ctx context.Context, sess *upstream.Session, prev *Context) *Context {
	return r.Resolve(ctx, sess, prev.guildID, prev.identity)
}

// callerRank scans the roster for the caller. The first matching row wins;
// more than one match breaks the one-row-per-account assumption and is
// logged.
func (r *Resolver) callerRank(guildID string, members []model.GuildMember, identity *model.Identity) access.CallerRank {
	if identity == nil {
		return access.Unknown
	}
	rank, matches := access.Unknown, 0
	for _, m := range members {
		if m.BnetID != identity.BnetID {
			continue
		}
		if matches == 0 {
			rank = access.Known(m.RankID)
		}
		matches++
	}
	if matches > 1 {
		r.logger.Warn("multiple roster rows match caller; using the first",
			zap.String("guild_id", guildID), zap.Int64("bnet_id", identity.BnetID), zap.Int("matches", matches))
	}
	return rank
}

func userMessage(err error) string {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallbackMessage
}
