// Package render rate-limits how often partial answer text reaches the
// presentation layer during streaming.
package render

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between throttled renders.
const DefaultInterval = 50 * time.Millisecond

// Throttler coalesces a burst of scheduled renders into at most one per
// interval. Each Schedule replaces any pending render, so the callback that
// eventually fires always observes the newest state. Flush and Discard exist
// for the end-of-stream and error paths, which must not wait out the
// interval.
type Throttler struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

// NewThrottler creates a throttler. A non-positive interval falls back to
// DefaultInterval.
func NewThrottler(interval time.Duration) *Throttler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttler{interval: interval}
}

// Schedule arranges for fn to run after the interval, replacing any render
// still waiting to fire.
func (t *Throttler) Schedule(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.pending = true
	t.timer = time.AfterFunc(t.interval, func() {
		t.mu.Lock()
		if !t.pending {
			t.mu.Unlock()
			return
		}
		t.pending = false
		t.mu.Unlock()
		fn()
	})
}

// Flush cancels any pending render and runs fn synchronously.
func (t *Throttler) Flush(fn func()) {
	t.Discard()
	fn()
}

// Discard cancels any pending render without running it.
func (t *Throttler) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
}

// Pending reports whether a render is waiting to fire.
func (t *Throttler) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
