package upstream

import (
	"context"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Session carries one browser's credentials to the upstream services and
// collects any cookies the upstreams rotate along the way. A Session is
// built per gateway request and passed explicitly to every call.
type Session struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
	order   []string
	rotated map[string]*http.Cookie
	expired bool

	refresh singleflight.Group
}

// NewSession wraps the cookies presented by the browser.
func NewSession(cookies []*http.Cookie) *Session {
	s := &Session{
		cookies: make(map[string]*http.Cookie, len(cookies)),
		rotated: make(map[string]*http.Cookie),
	}
	for _, ck := range cookies {
		s.put(ck)
	}
	return s
}

func (s *Session) put(ck *http.Cookie) {
	if _, ok := s.cookies[ck.Name]; !ok {
		s.order = append(s.order, ck.Name)
	}
	s.cookies[ck.Name] = &http.Cookie{Name: ck.Name, Value: ck.Value}
}

// Cookie returns the current value of the named credential cookie.
func (s *Session) Cookie(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ck, ok := s.cookies[name]
	if !ok || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

// Cookies returns the credentials to send upstream, in arrival order.
func (s *Session) Cookies() []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*http.Cookie, 0, len(s.order))
	for _, name := range s.order {
		ck := s.cookies[name]
		if ck.Value == "" {
			continue
		}
		out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

// Rotated returns the Set-Cookie values received from upstreams, to be
// forwarded to the browser.
func (s *Session) Rotated() []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*http.Cookie, 0, len(s.rotated))
	for _, name := range s.order {
		if ck, ok := s.rotated[name]; ok {
			out = append(out, ck)
		}
	}
	return out
}

// Expired reports whether a refresh was attempted in this session and failed.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Detach copies the current credentials into a new Session for work that
// outlives the request, such as a debounced write.
func (s *Session) Detach() *Session {
	return NewSession(s.Cookies())
}

func (s *Session) absorb(resp *http.Response) {
	set := resp.Cookies()
	if len(set) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ck := range set {
		if ck.MaxAge < 0 {
			s.put(&http.Cookie{Name: ck.Name})
		} else {
			s.put(ck)
		}
		s.rotated[ck.Name] = ck
	}
}

func (s *Session) markExpired() {
	s.mu.Lock()
	s.expired = true
	s.mu.Unlock()
}

// refreshOnce runs fn, sharing a single in-flight call between concurrent
// callers of the same session.
func (s *Session) refreshOnce(ctx context.Context, fn func(context.Context) error) error {
	_, err, _ := s.refresh.Do("refresh", func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		s.markExpired()
	}
	return err
}
