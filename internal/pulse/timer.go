package pulse

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Timer is a single-shot delivery trigger. The first activity of a burst arms it;
// further activity while armed does not push the deadline back. When the delay
// elapses fire runs, and the timer returns to idle once fire returns.
type Timer struct {
	clock quartz.Clock
	fire  func(context.Context)
	// ctx is passed to fire for scheduled deliveries.
	ctx context.Context

	mu      sync.Mutex
	delay   time.Duration
	armed   bool
	stopped bool
	pending *quartz.Timer
	// inflight counts a scheduled or running fire.
	inflight sync.WaitGroup
}

// NewTimer returns an idle Timer. Scheduled calls to fire receive ctx.
func NewTimer(ctx context.Context, clock quartz.Clock, delay time.Duration, fire func(context.Context)) *Timer {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Timer{
		clock: clock,
		fire:  fire,
		ctx:   ctx,
		delay: delay,
	}
}

// SetDelay changes the delay used the next time the timer arms.
func (t *Timer) SetDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.delay = d
	t.mu.Unlock()
}

// Delay returns the current arming delay.
func (t *Timer) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// OnActivity arms the timer if it is idle and reports whether it did.
func (t *Timer) OnActivity() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed || t.stopped {
		return false
	}
	t.armed = true
	t.inflight.Add(1)
	t.pending = t.clock.AfterFunc(t.delay, t.onFire, "Timer", "OnActivity")
	return true
}

func (t *Timer) onFire() {
	defer t.inflight.Done()
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()

	t.fire(t.ctx)

	t.mu.Lock()
	t.armed = false
	t.mu.Unlock()
}

// Armed reports whether a delivery is scheduled or running.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Flush cancels a scheduled fire, waits for a running one, then runs fire once with ctx.
func (t *Timer) Flush(ctx context.Context) {
	t.cancelPending()
	t.inflight.Wait()
	t.fire(ctx)
}

// Stop cancels a scheduled fire, waits for a running one and disables further arming.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.cancelPending()
	t.inflight.Wait()
}

func (t *Timer) cancelPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil && t.pending.Stop() {
		t.pending = nil
		t.armed = false
		t.inflight.Done()
	}
}
