package session

import (
	"encoding/hex"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hoolgg/hool/gateway/upstream"
	"golang.org/x/crypto/blake2b"
)

// Claims is the payload the guild service puts in its access cookie. The
// gateway never verifies the signature; upstreams do. It only reads the
// expiry to bound how long an identity may be served from cache.
type Claims struct {
	BnetID int64 `json:"bnet_id"`
	jwt.RegisteredClaims
}

// ParseUnverified decodes an access token without checking its signature.
func ParseUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Cookies names the credential cookies the gateway recognises.
type Cookies struct {
	Access  []string
	Refresh []string
}

// DefaultCookies are the cookie names the guild service is known to set.
var DefaultCookies = Cookies{
	Access:  []string{"access_token", "access_token_cookie", "jwt", "session"},
	Refresh: []string{"refresh_token", "refresh_token_cookie"},
}

// HasAny reports whether the session carries any access or refresh cookie.
func (c Cookies) HasAny(sess *upstream.Session) bool {
	for _, name := range append(append([]string{}, c.Access...), c.Refresh...) {
		if _, ok := sess.Cookie(name); ok {
			return true
		}
	}
	return false
}

// Key fingerprints the access credentials of sess. Raw tokens never reach
// the cache. An empty key means there is nothing to cache against.
func (c Cookies) Key(sess *upstream.Session) string {
	names := append([]string{}, c.Access...)
	sort.Strings(names)
	h, _ := blake2b.New256(nil)
	found := false
	for _, name := range names {
		v, ok := sess.Cookie(name)
		if !ok {
			continue
		}
		found = true
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	if !found {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Expiry returns the earliest expiry among the session's access tokens that
// parse as JWTs, or the zero time if none carry one.
func (c Cookies) Expiry(sess *upstream.Session) time.Time {
	var earliest time.Time
	for _, name := range c.Access {
		v, ok := sess.Cookie(name)
		if !ok {
			continue
		}
		claims, err := ParseUnverified(v)
		if err != nil || claims.ExpiresAt == nil {
			continue
		}
		if exp := claims.ExpiresAt.Time; earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}
	return earliest
}
