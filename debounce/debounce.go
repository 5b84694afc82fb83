// Package debounce delays writes until input settles. Each key holds at most
// one pending write; scheduling again cancels and restarts the delay, and
// Flush writes immediately.
package debounce

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// WriteFn performs one debounced write.
type WriteFn func()

type entry struct {
	timer *time.Timer
	fn    WriteFn
}

// Debouncer runs the last write scheduled for each key once the key has been
// quiet for the window.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*entry
	closed  bool
	running sync.WaitGroup
	logger  *zap.Logger
}

// New creates a Debouncer.
func New(window time.Duration, logger *zap.Logger) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*entry),
		logger:  logger,
	}
}

// Window returns the quiet period before a write fires.
func (d *Debouncer) Window() time.Duration { return d.window }

// Schedule replaces the pending write for key with fn and restarts its
// delay. After Close, fn runs immediately.
func (d *Debouncer) Schedule(key string, fn WriteFn) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.run(key, fn)
		return
	}
	if old, ok := d.pending[key]; ok && old.timer.Stop() {
		d.running.Done()
	}
	e := &entry{fn: fn}
	d.running.Add(1)
	e.timer = time.AfterFunc(d.window, func() {
		defer d.running.Done()
		d.fire(key, e)
	})
	d.pending[key] = e
	d.mu.Unlock()
}

// Flush cancels the delay for key and runs its pending write now, on the
// caller's goroutine. It reports whether a write was pending.
func (d *Debouncer) Flush(key string) bool {
	e := d.take(key)
	if e == nil {
		return false
	}
	d.run(key, e.fn)
	return true
}

// Cancel drops the pending write for key without running it.
func (d *Debouncer) Cancel(key string) bool {
	return d.take(key) != nil
}

// Pending reports whether key has a write waiting.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Len returns the number of keys with a pending write.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close flushes every pending write and waits for in-flight ones.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	keys := make([]string, 0, len(d.pending))
	for key := range d.pending {
		keys = append(keys, key)
	}
	d.mu.Unlock()

	for _, key := range keys {
		d.Flush(key)
	}
	d.running.Wait()
}

// take removes key's entry and stops its timer. A stopped timer never runs
// its func, so the WaitGroup slot is released here.
func (d *Debouncer) take(key string) *entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.pending[key]
	if !ok {
		return nil
	}
	delete(d.pending, key)
	if e.timer.Stop() {
		d.running.Done()
	}
	return e
}

func (d *Debouncer) fire(key string, e *entry) {
	d.mu.Lock()
	if d.pending[key] != e {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()
	d.run(key, e.fn)
}

func (d *Debouncer) run(key string, fn WriteFn) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("debounced write panicked",
				zap.String("key", key), zap.Any("recover", r))
		}
	}()
	fn()
}
