// Package audit records who changed what in a guild. Entries are written
// asynchronously in batches to the structured log and to a capped per-guild
// list in the shared cache.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hoolgg/hool/gateway/cache"
	"go.uber.org/zap"
)

const (
	batchSize     = 100
	flushInterval = 2 * time.Second
	// DefaultKeep is how many recent entries are kept per guild.
	DefaultKeep = 200
)

// Entry is one audited action.
type Entry struct {
	TraceID    string          `json:"trace_id,omitempty"`
	GuildID    string          `json:"guild_id"`
	ActorID    int64           `json:"actor_id"`
	ActorName  string          `json:"actor_name,omitempty"`
	Action     string          `json:"action"`
	Target     string          `json:"target,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Error      string          `json:"error,omitempty"`
	IP         string          `json:"ip,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	At         time.Time       `json:"at"`
}

// Service logs audit entries asynchronously in batches.
type Service struct {
	store  cache.Cache
	keep   int64
	ch     chan Entry
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(store cache.Cache, logger *zap.Logger) *Service {
	svc := &Service{
		store:  store,
		keep:   DefaultKeep,
		ch:     make(chan Entry, 1024),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

func listKey(guildID string) string { return "audit:" + guildID }

// Log enqueues an entry. detail is encoded as JSON; entries are dropped with
// a warning when the queue is full.
func (svc *Service) Log(e Entry, detail interface{}) {
	if detail != nil {
		if raw, err := json.Marshal(detail); err == nil {
			e.Detail = raw
		}
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case <-svc.stopCh:
		svc.logger.Warn("audit stopped, dropping entry", zap.String("action", e.Action))
		return
	default:
	}
	select {
	case svc.ch <- e:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", e.Action))
	}
}

// Recent returns up to limit of a guild's latest entries, newest first.
func (svc *Service) Recent(ctx context.Context, guildID string, limit int) ([]Entry, error) {
	if limit <= 0 || int64(limit) > svc.keep {
		limit = int(svc.keep)
	}
	raws, err := svc.store.LRange(ctx, listKey(guildID), 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	svc.once.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		svc.write(batch)
		batch = batch[:0]
	}

	for {
		select {
		case e := <-svc.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case e := <-svc.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// write logs a batch and appends it to each guild's list, oldest first so
// the newest entry ends up at the head.
func (svc *Service) write(batch []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	byGuild := make(map[string][]string)
	var order []string
	for _, e := range batch {
		svc.logger.Info("audit",
			zap.String("trace_id", e.TraceID),
			zap.String("guild_id", e.GuildID),
			zap.Int64("actor_id", e.ActorID),
			zap.String("action", e.Action),
			zap.String("target", e.Target),
			zap.ByteString("detail", e.Detail),
			zap.String("error", e.Error),
			zap.String("ip", e.IP),
			zap.Int64("duration_ms", e.DurationMs))
		if e.GuildID == "" {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if _, ok := byGuild[e.GuildID]; !ok {
			order = append(order, e.GuildID)
		}
		byGuild[e.GuildID] = append(byGuild[e.GuildID], string(data))
	}
	for _, gid := range order {
		key := listKey(gid)
		if err := svc.store.LPush(ctx, key, byGuild[gid]...); err != nil {
			svc.logger.Error("audit batch write failed", zap.String("guild_id", gid), zap.Error(err))
			continue
		}
		if err := svc.store.LTrim(ctx, key, 0, svc.keep-1); err != nil {
			svc.logger.Warn("audit trim failed", zap.String("guild_id", gid), zap.Error(err))
		}
	}
}
