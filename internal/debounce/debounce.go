// Package debounce provides a keyed trailing-edge debouncer.
//
// Each key owns one pending call. Triggering a key again before its delay
// elapses replaces the pending call and restarts the delay, so only the
// last call of a burst runs.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays calls per key.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*entry
	seq     uint64
	stopped bool
}

type entry struct {
	timer *time.Timer
	fn    func()
	gen   uint64
}

// New creates a debouncer with the given delay. A non-positive delay runs
// calls on the next timer tick.
func New(delay time.Duration) *Debouncer {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*entry),
	}
}

// Delay returns the current delay.
func (d *Debouncer) Delay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delay
}

// SetDelay changes the delay for calls triggered afterwards.
func (d *Debouncer) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	d.delay = delay
}

// Trigger schedules fn for key, replacing any pending call for the same
// key. It is a no-op after Stop.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.seq++
	gen := d.seq
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		e.gen = gen
		e.fn = fn
		e.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
		return
	}

	e := &entry{fn: fn, gen: gen}
	e.timer = time.AfterFunc(d.delay, func() { d.fire(key, gen) })
	d.pending[key] = e
}

// fire runs the pending call for key if gen still matches. A stale timer
// that lost the race with Trigger finds a newer generation and returns.
func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if !ok || e.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	fn := e.fn
	d.mu.Unlock()

	fn()
}

// Cancel drops the pending call for key. It reports whether a call was
// pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(d.pending, key)
	return true
}

// Flush runs every pending call immediately, in no particular order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.pending))
	for key, e := range d.pending {
		e.timer.Stop()
		fns = append(fns, e.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// FlushKey runs the pending call for key immediately. It reports whether a
// call was pending.
func (d *Debouncer) FlushKey(key string) bool {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		e.fn()
	}
	return ok
}

// Pending returns the number of pending calls.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// IsPending reports whether key has a pending call.
func (d *Debouncer) IsPending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels every pending call and rejects future triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
}
