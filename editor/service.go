// Package editor holds each caller's working state for the progress and
// recruitment pages: optimistic toggles that apply before the upstream
// confirms them, and debounced field edits that save once typing settles.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hoolgg/hool/gateway/cache"
	"github.com/hoolgg/hool/gateway/debounce"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the edited item is not in the caller's
// working state even after a reload.
var ErrNotFound = errors.New("editor: item not found")

// API is the slice of an upstream service the editors write through.
type API interface {
	Get(ctx context.Context, sess *upstream.Session, path string, out interface{}) error
	Post(ctx context.Context, sess *upstream.Session, path string, body, out interface{}) error
	Put(ctx context.Context, sess *upstream.Session, path string, body, out interface{}) error
	Do(ctx context.Context, sess *upstream.Session, method, path string, query url.Values, body, out interface{}) error
}

// Options tunes the editors.
type Options struct {
	Window       time.Duration
	WriteTimeout time.Duration
	CrestCap     int
	StateTTL     time.Duration
}

// Service owns the working state of every caller.
type Service struct {
	progress    API
	recruitment API
	state       cache.Cache
	debouncer   *debounce.Debouncer
	opts        Options
	logger      *zap.Logger

	// mu serializes read-modify-write of cached working state.
	mu  sync.Mutex
	now func() time.Time
	// rev orders drafts. It starts at the wall clock so revisions stored in
	// a shared cache keep increasing across restarts.
	rev atomic.Int64
}

// New creates a Service. Call Close on shutdown to flush pending edits.
func New(progress, recruitment API, state cache.Cache, opts Options, logger *zap.Logger) *Service {
	s := &Service{
		progress:    progress,
		recruitment: recruitment,
		state:       state,
		debouncer:   debounce.New(opts.Window, logger),
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
	s.rev.Store(time.Now().UnixNano())
	return s
}

// Close writes every pending debounced edit and waits for in-flight writes.
func (s *Service) Close() {
	s.debouncer.Close()
}

func stateKey(owner int64, parts ...string) string {
	return fmt.Sprintf("ws:%d:%s", owner, strings.Join(parts, ":"))
}

func escape(id string) string { return url.PathEscape(id) }

func (s *Service) load(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := s.state.Get(ctx, key)
	if err != nil {
		if cache.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Service) store(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.state.Set(ctx, key, string(data), s.opts.StateTTL)
}

// mutate loads key into a fresh T, runs fn on it and stores the result,
// all under the state lock. fn returning false leaves the state untouched.
func mutate[T any](ctx context.Context, s *Service, key string, fn func(*T) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v T
	ok, err := s.load(ctx, key, &v)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	changed, err := fn(&v)
	if err != nil || !changed {
		return err
	}
	return s.store(ctx, key, &v)
}
