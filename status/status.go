// Package status probes the upstream services in the background so the
// dashboard can show which ones are reachable without waiting on them.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hoolgg/hool/gateway/cache"
	"github.com/hoolgg/hool/gateway/scheduler"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	hashKey   = "upstream:status"
	leaderKey = "upstream:status:leader"
	taskName  = "upstream_probe"
)

// NotChecked is the error of a target no probe has reached yet.
const NotChecked = "Not checked yet"

// Target is an upstream that answers a health check.
type Target interface {
	Name() string
	Ping(ctx context.Context) error
}

// ServiceStatus is the last probe result for one upstream.
type ServiceStatus struct {
	Name      string    `json:"name"`
	Reachable bool      `json:"reachable"`
	Error     string    `json:"error,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report is the reachability of every upstream.
type Report struct {
	Healthy  bool            `json:"healthy"`
	Services []ServiceStatus `json:"services"`
}

// Options tunes the prober.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Prober checks every target on an interval and keeps the results in the
// shared cache. With several gateway replicas only the one holding the
// leader lock probes in a given interval.
type Prober struct {
	targets  []Target
	store    cache.Cache
	opts     Options
	instance string
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Prober.
func New(store cache.Cache, targets []Target, opts Options, logger *zap.Logger) *Prober {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Prober{
		targets:  targets,
		store:    store,
		opts:     opts,
		instance: uuid.NewString(),
		logger:   logger,
		now:      time.Now,
	}
}

// Start probes once right away and then on every interval.
func (p *Prober) Start(s *scheduler.Scheduler) {
	s.AddDelay(taskName+"_initial", 0, p.tick)
	s.AddTicker(taskName, p.opts.Interval, p.tick)
}

func (p *Prober) tick(ctx context.Context) {
	lead, err := p.store.SetNX(ctx, leaderKey, p.instance, p.opts.Interval/2)
	if err != nil {
		p.logger.Warn("status leader lock failed", zap.Error(err))
		return
	}
	if !lead {
		return
	}
	if _, err := p.Probe(ctx); err != nil {
		p.logger.Warn("status probe not stored", zap.Error(err))
	}
}

// Probe checks every target concurrently and stores the results.
func (p *Prober) Probe(ctx context.Context) (Report, error) {
	results := make([]ServiceStatus, len(p.targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range p.targets {
		g.Go(func() error {
			results[i] = p.check(gctx, t)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := p.store.HSet(ctx, hashKey, r.Name, string(data)); err != nil {
			errs = append(errs, err)
		}
		if !r.Reachable {
			p.logger.Warn("upstream unreachable", zap.String("service", r.Name), zap.String("error", r.Error))
		}
	}
	return newReport(results), errors.Join(errs...)
}

func (p *Prober) check(ctx context.Context, t Target) ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	start := p.now()
	err := t.Ping(ctx)
	st := ServiceStatus{
		Name:      t.Name(),
		Reachable: err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
		CheckedAt: start.UTC(),
	}
	if err != nil {
		st.Error = upstream.UserMessage(err)
	}
	return st
}

// Report returns the last stored result for every target. A target that was
// never probed is reported unreachable.
func (p *Prober) Report(ctx context.Context) (Report, error) {
	all, err := p.store.HGetAll(ctx, hashKey)
	if err != nil {
		return Report{}, err
	}
	results := make([]ServiceStatus, 0, len(p.targets))
	for _, t := range p.targets {
		st := ServiceStatus{Name: t.Name(), Error: NotChecked}
		if raw, ok := all[t.Name()]; ok {
			st = ServiceStatus{Name: t.Name()}
			if err := json.Unmarshal([]byte(raw), &st); err != nil {
				p.logger.Warn("status entry unreadable", zap.String("service", t.Name()), zap.Error(err))
			}
		}
		results = append(results, st)
	}
	return newReport(results), nil
}

func newReport(results []ServiceStatus) Report {
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	healthy := len(results) > 0
	for _, r := range results {
		healthy = healthy && r.Reachable
	}
	return Report{Healthy: healthy, Services: results}
}
