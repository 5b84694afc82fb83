package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hoolgg/hool/gateway/cache"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
)

// DraftStatus tracks a debounced edit from keystroke to upstream.
type DraftStatus string

const (
	DraftPending DraftStatus = "pending"
	DraftSaved   DraftStatus = "saved"
	DraftFailed  DraftStatus = "failed"
)

// Draft is the latest value typed into one field.
type Draft struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Status    DraftStatus     `json:"status"`
	Error     string          `json:"error,omitempty"`
	Rev       int64           `json:"rev"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func draftsKey(owner int64) string { return stateKey(owner, "drafts") }

func debounceKey(owner int64, key string) string { return fmt.Sprintf("%d:%s", owner, key) }

// edit records value as the pending draft for key and schedules write. A
// newer edit to the same key replaces this one before it is written.
func (s *Service) edit(ctx context.Context, sess *upstream.Session, owner int64, key string, value interface{}, write func(context.Context, *upstream.Session) error) (Draft, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return Draft{}, err
	}
	now := s.now().UTC()
	d := Draft{Key: key, Value: raw, Status: DraftPending, Rev: s.rev.Add(1), UpdatedAt: now}
	if err := s.putDraft(ctx, owner, d); err != nil {
		return Draft{}, err
	}

	detached := sess.Detach()
	s.debouncer.Schedule(debounceKey(owner, key), func() {
		wctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		defer cancel()
		werr := write(wctx, detached)
		s.settle(wctx, owner, d, werr)
	})
	return d, nil
}

// settle records the result of writing d, unless a newer edit superseded it
// while the write was in flight.
func (s *Service) settle(ctx context.Context, owner int64, d Draft, werr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok, err := s.getDraft(ctx, owner, d.Key)
	if err != nil || !ok || current.Rev != d.Rev {
		return
	}
	d.Status = DraftSaved
	if werr != nil {
		d.Status = DraftFailed
		d.Error = upstream.UserMessage(werr)
		s.logger.Warn("debounced write failed",
			zap.Int64("owner", owner), zap.String("key", d.Key), zap.Error(werr))
	}
	if err := s.putDraftLocked(ctx, owner, d); err != nil {
		s.logger.Warn("draft state write failed", zap.String("key", d.Key), zap.Error(err))
	}
}

// Commit writes the pending edit for key immediately. It reports whether an
// edit was pending, and returns the draft as it stands afterwards.
func (s *Service) Commit(ctx context.Context, owner int64, key string) (Draft, bool, error) {
	flushed := s.debouncer.Flush(debounceKey(owner, key))
	d, ok, err := s.getDraft(ctx, owner, key)
	if err != nil {
		return Draft{}, flushed, err
	}
	if !ok {
		return Draft{}, flushed, ErrNotFound
	}
	return d, flushed, nil
}

// Drafts lists the caller's drafts, oldest first.
func (s *Service) Drafts(ctx context.Context, owner int64) ([]Draft, error) {
	all, err := s.state.HGetAll(ctx, draftsKey(owner))
	if err != nil {
		return nil, err
	}
	out := make([]Draft, 0, len(all))
	for _, raw := range all {
		var d Draft
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rev < out[j].Rev })
	return out, nil
}

// Pending reports whether key still has an unwritten edit.
func (s *Service) Pending(owner int64, key string) bool {
	return s.debouncer.Pending(debounceKey(owner, key))
}

func (s *Service) putDraft(ctx context.Context, owner int64, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putDraftLocked(ctx, owner, d)
}

func (s *Service) putDraftLocked(ctx context.Context, owner int64, d Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	key := draftsKey(owner)
	if err := s.state.HSet(ctx, key, d.Key, string(data)); err != nil {
		return err
	}
	if s.opts.StateTTL > 0 {
		return s.state.Expire(ctx, key, s.opts.StateTTL)
	}
	return nil
}

func (s *Service) getDraft(ctx context.Context, owner int64, key string) (Draft, bool, error) {
	raw, err := s.state.HGet(ctx, draftsKey(owner), key)
	if err != nil {
		if cache.IsNotFound(err) {
			return Draft{}, false, nil
		}
		return Draft{}, false, err
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Draft{}, false, err
	}
	return d, true, nil
}

// Discard drops the pending edit for key without writing it.
func (s *Service) Discard(ctx context.Context, owner int64, key string) error {
	s.debouncer.Cancel(debounceKey(owner, key))
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.HDel(ctx, draftsKey(owner), key)
}
