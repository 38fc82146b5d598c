// Package debounce coalesces bursts of calls into a single call that runs
// after a quiet period.
package debounce

import (
	"sync"
	"time"
)

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed calls.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

type call struct {
	timer Timer
	fn    func()
}

// Debouncer delays keyed calls until no new call for the same key arrived
// during the wait period. Only the last scheduled function of a burst runs.
type Debouncer struct {
	mu         sync.Mutex
	wait       time.Duration
	clock      Clock
	pending    map[string]*call
	onCoalesce func(key string)

	// running counts calls between leaving pending and returning. It is
	// only incremented under mu while stopped is false.
	running sync.WaitGroup
	stopped bool
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(d *Debouncer) { d.clock = c }
}

// OnCoalesce registers a hook called whenever a pending call is replaced.
func OnCoalesce(fn func(key string)) Option {
	return func(d *Debouncer) { d.onCoalesce = fn }
}

// New creates a Debouncer with the given quiet period.
func New(wait time.Duration, opts ...Option) *Debouncer {
	d := &Debouncer{
		wait:    wait,
		clock:   SystemClock,
		pending: make(map[string]*call),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add schedules fn under key, replacing any call still waiting for that key.
// After Stop, fn runs right away instead.
func (d *Debouncer) Add(key string, fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		fn()
		return
	}
	defer d.mu.Unlock()

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
		if d.onCoalesce != nil {
			d.onCoalesce(key)
		}
	}
	c := &call{fn: fn}
	d.pending[key] = c
	c.timer = d.clock.AfterFunc(d.wait, func() { d.fire(key, c) })
}

func (d *Debouncer) fire(key string, c *call) {
	d.mu.Lock()
	if d.pending[key] != c {
		// superseded after the timer already started running
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	c.fn()
}

// Flush runs the pending call for key right away. It reports whether there was one.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	c := d.take(key)
	if c != nil {
		d.running.Add(1)
	}
	d.mu.Unlock()
	if c == nil {
		return false
	}

	defer d.running.Done()
	c.fn()
	return true
}

// Cancel drops the pending call for key without running it.
func (d *Debouncer) Cancel(key string) bool {
	_, ok := d.Take(key)
	return ok
}

// Take removes the pending call for key and hands it back without running
// it, so the caller can run it or Add it again later.
func (d *Debouncer) Take(key string) (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.take(key)
	if c == nil {
		return nil, false
	}
	return c.fn, true
}

// take must be called with mu held.
func (d *Debouncer) take(key string) *call {
	c, ok := d.pending[key]
	if !ok {
		return nil
	}
	c.timer.Stop()
	delete(d.pending, key)
	return c
}

// drain empties pending and marks the calls as running. mu must be held.
func (d *Debouncer) drain() []*call {
	calls := make([]*call, 0, len(d.pending))
	for key, c := range d.pending {
		c.timer.Stop()
		calls = append(calls, c)
		delete(d.pending, key)
	}
	d.running.Add(len(calls))
	return calls
}

func (d *Debouncer) run(calls []*call) {
	for _, c := range calls {
		c.fn()
		d.running.Done()
	}
}

// FlushAll runs every pending call right away.
func (d *Debouncer) FlushAll() int {
	d.mu.Lock()
	calls := d.drain()
	d.mu.Unlock()

	d.run(calls)
	return len(calls)
}

// Stop runs every pending call and waits until calls fired by their timers
// have returned. Later Adds run synchronously.
func (d *Debouncer) Stop() int {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return 0
	}
	d.stopped = true
	calls := d.drain()
	d.mu.Unlock()

	d.run(calls)
	d.running.Wait()
	return len(calls)
}

// Pending reports whether a call for key is waiting.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Len returns the number of waiting calls.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
