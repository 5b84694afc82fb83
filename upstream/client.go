// Package upstream talks JSON over HTTP to the guild, progress and
// recruitment services on behalf of a browser session.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Refresher renews an expired session.
type Refresher interface {
	Refresh(ctx context.Context, sess *Session) error
}

// Client is a typed JSON client for one upstream service.
type Client struct {
	name      string
	baseURL   *url.URL
	http      *http.Client
	refresher Refresher
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRefresher delegates session refresh to another service. By default a
// client refreshes against its own /auth/refresh.
func WithRefresher(r Refresher) Option {
	return func(c *Client) { c.refresher = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the service rooted at baseURL.
func New(name, baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("upstream %s: parse base url: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %s: base url %q must be absolute", name, baseURL)
	}
	c := &Client{
		name:    name,
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.refresher == nil {
		c.refresher = c
	}
	return c, nil
}

// Name returns the service name used in errors and logs.
func (c *Client) Name() string { return c.name }

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, sess *Session, path string, out interface{}) error {
	return c.Do(ctx, sess, http.MethodGet, path, nil, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, sess *Session, path string, body, out interface{}) error {
	return c.Do(ctx, sess, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, sess *Session, path string, body, out interface{}) error {
	return c.Do(ctx, sess, http.MethodPut, path, nil, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, sess *Session, path string, out interface{}) error {
	return c.Do(ctx, sess, http.MethodDelete, path, nil, nil, out)
}

// Do sends one request to path, which must already be escaped. A 401 triggers exactly one session refresh and, if
// that succeeds, exactly one retry.
func (c *Client) Do(ctx context.Context, sess *Session, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("upstream %s: encode body: %w", c.name, err)
		}
	}

	resp, err := c.send(ctx, sess, method, path, query, payload)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && sess != nil {
		drain(resp)
		if rerr := sess.refreshOnce(ctx, func(ctx context.Context) error {
			return c.refresher.Refresh(ctx, sess)
		}); rerr != nil {
			c.logger.Debug("session refresh failed",
				zap.String("service", c.name), zap.String("path", path), zap.Error(rerr))
			return &APIError{Service: c.name, Status: http.StatusUnauthorized, Message: "Not authenticated"}
		}
		if resp, err = c.send(ctx, sess, method, path, query, payload); err != nil {
			return err
		}
	}
	return c.decode(resp, out)
}

// Refresh renews the session against this service's /auth/refresh. It is
// never retried.
func (c *Client) Refresh(ctx context.Context, sess *Session) error {
	resp, err := c.send(ctx, sess, http.MethodPost, "/auth/refresh", nil, nil)
	if err != nil {
		return err
	}
	return c.decode(resp, nil)
}

// Ping checks the service's /health endpoint without credentials.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, nil, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	return c.decode(resp, nil)
}

func (c *Client) send(ctx context.Context, sess *Session, method, path string, query url.Values, payload []byte) (*http.Response, error) {
	u := *c.baseURL
	u.RawPath = c.baseURL.EscapedPath() + path
	unescaped, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: bad path %q: %w", c.name, path, err)
	}
	u.Path = unescaped
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	traceID := TraceID(ctx)
	if traceID != "" {
		req.Header.Set(TraceHeader, traceID)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		for _, ck := range sess.Cookies() {
			req.AddCookie(ck)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("upstream request failed",
			zap.String("service", c.name), zap.String("method", method),
			zap.String("path", path), zap.String("trace_id", traceID), zap.Error(err))
		return nil, fmt.Errorf("upstream %s: %s %s: %w", c.name, method, path, err)
	}
	c.logger.Debug("upstream",
		zap.String("service", c.name), zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.String("trace_id", traceID))
	if sess != nil {
		sess.absorb(resp)
	}
	return resp, nil
}

func (c *Client) decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("upstream %s: read body: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Service: c.name, Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("upstream %s: decode body: %w", c.name, err)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
