// Package session resolves the authenticated identity behind a browser
// session.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hoolgg/hool/gateway/cache"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
)

const identityKeyPrefix = "identity:"

// AuthAPI is the slice of the guild service the resolver needs.
type AuthAPI interface {
	Get(ctx context.Context, sess *upstream.Session, path string, out interface{}) error
	Post(ctx context.Context, sess *upstream.Session, path string, body, out interface{}) error
}

// Resolver turns session credentials into an Identity. Identities are
// cached per credential until logout, until an upstream rejects the session,
// or until the access token expires, whichever comes first.
type Resolver struct {
	api     AuthAPI
	cache   cache.Cache
	cookies Cookies
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewResolver creates a Resolver. A zero ttl disables identity caching.
func NewResolver(api AuthAPI, c cache.Cache, cookies Cookies, ttl time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{api: api, cache: c, cookies: cookies, ttl: ttl, logger: logger, now: time.Now}
}

// Cookies returns the credential cookie names the resolver keys on.
func (r *Resolver) Cookies() Cookies { return r.cookies }

// Resolve returns the caller's identity. A nil identity with a nil error
// means the session is not authenticated: /auth/me was rejected, one refresh
// was attempted, and the single retry was rejected too. A non-nil error is a
// service failure, not an authentication verdict.
func (r *Resolver) Resolve(ctx context.Context, sess *upstream.Session) (*model.Identity, error) {
	if id := r.cached(ctx, sess); id != nil {
		return id, nil
	}

	var id model.Identity
	if err := r.api.Get(ctx, sess, "/auth/me", &id); err != nil {
		if upstream.IsUnauthorized(err) {
			r.Invalidate(ctx, sess)
			return nil, nil
		}
		return nil, err
	}
	r.store(ctx, sess, &id)
	return &id, nil
}

// Invalidate drops the cached identity for the session's current credentials.
func (r *Resolver) Invalidate(ctx context.Context, sess *upstream.Session) {
	key := r.cookies.Key(sess)
	if key == "" || r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, identityKeyPrefix+key); err != nil {
		r.logger.Warn("identity cache delete failed", zap.Error(err))
	}
}

// Logout ends the session upstream. The cached identity is cleared even when
// the upstream call fails.
func (r *Resolver) Logout(ctx context.Context, sess *upstream.Session) {
	r.Invalidate(ctx, sess)
	if err := r.api.Post(ctx, sess, "/auth/logout", nil, nil); err != nil {
		r.logger.Info("logout upstream call failed", zap.Error(err))
	}
}

func (r *Resolver) cached(ctx context.Context, sess *upstream.Session) *model.Identity {
	if r.ttl <= 0 || r.cache == nil {
		return nil
	}
	key := r.cookies.Key(sess)
	if key == "" {
		return nil
	}
	if exp := r.cookies.Expiry(sess); !exp.IsZero() && !r.now().Before(exp) {
		return nil
	}
	raw, err := r.cache.Get(ctx, identityKeyPrefix+key)
	if err != nil {
		if !cache.IsNotFound(err) {
			r.logger.Warn("identity cache read failed", zap.Error(err))
		}
		return nil
	}
	var id model.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return nil
	}
	return &id
}

func (r *Resolver) store(ctx context.Context, sess *upstream.Session, id *model.Identity) {
	if r.ttl <= 0 || r.cache == nil {
		return
	}
	key := r.cookies.Key(sess)
	if key == "" {
		return
	}
	ttl := r.ttl
	if exp := r.cookies.Expiry(sess); !exp.IsZero() {
		left := exp.Sub(r.now())
		if left <= 0 {
			return
		}
		if left < ttl {
			ttl = left
		}
	}
	data, _ := json.Marshal(id)
	if err := r.cache.Set(ctx, identityKeyPrefix+key, string(data), ttl); err != nil {
		r.logger.Warn("identity cache write failed", zap.Error(err))
	}
}
