package presence

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// debouncer coalesces bursts with a quiet window: the stored func runs only
// once the window elapses with no further calls, and it is always the most
// recently supplied func. Values superseded inside the window are never
// published, not even transiently.
type debouncer struct {
	clock  quartz.Clock
	window time.Duration

	mu      sync.Mutex
	timer   *quartz.Timer
	pending func()
	stopped bool
}

func newDebouncer(clock quartz.Clock, window time.Duration) *debouncer {
	return &debouncer{clock: clock, window: window}
}

func (d *debouncer) call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = fn
	if d.timer != nil {
		d.timer.Reset(d.window)
		return
	}
	d.timer = d.clock.AfterFunc(d.window, d.fire, "presence-debounce")
}

func (d *debouncer) fire() {
	d.mu.Lock()
	// read the latest pending value at fire time, never one captured when
	// the window opened
	fn := d.pending
	d.pending = nil
	d.timer = nil
	stopped := d.stopped
	d.mu.Unlock()

	if stopped || fn == nil {
		return
	}
	fn()
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// throttle caps cadence: the first call in an interval runs immediately,
// later calls overwrite a single trailing slot that fires when the interval
// ends. Intermediate values are dropped, never queued.
type throttle struct {
	clock    quartz.Clock
	interval time.Duration

	mu      sync.Mutex
	lastRun time.Time
	timer   *quartz.Timer
	pending func()
	stopped bool
}

func newThrottle(clock quartz.Clock, interval time.Duration) *throttle {
	return &throttle{clock: clock, interval: interval}
}

func (t *throttle) call(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()
	if t.timer == nil && (t.lastRun.IsZero() || now.Sub(t.lastRun) >= t.interval) {
		t.lastRun = now
		t.mu.Unlock()
		fn()
		return
	}

	// last-write-wins trailing slot
	t.pending = fn
	if t.timer == nil {
		wait := t.interval - now.Sub(t.lastRun)
		if wait <= 0 {
			wait = t.interval
		}
		t.timer = t.clock.AfterFunc(wait, t.fire, "presence-throttle")
	}
	t.mu.Unlock()
}

func (t *throttle) fire() {
	t.mu.Lock()
	fn := t.pending
	t.pending = nil
	t.timer = nil
	if fn != nil && !t.stopped {
		t.lastRun = t.clock.Now()
	}
	stopped := t.stopped
	t.mu.Unlock()

	if stopped || fn == nil {
		return
	}
	fn()
}

func (t *throttle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
