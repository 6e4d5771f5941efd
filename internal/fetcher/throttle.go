package fetcher

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum spacing between requests to the same host. The
// gap is measured from the end of the previous request when Done is called,
// and from its start otherwise.
type Throttle struct {
	delay  time.Duration
	jitter bool
	sleep  SleepFunc
	now    func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostSlot
}

type hostSlot struct {
	mu        sync.Mutex
	lastFetch time.Time
}

// NewThrottle creates a per-host throttle. A zero delay disables it.
func NewThrottle(delay time.Duration, jitter bool) *Throttle {
	return &Throttle{
		delay:  delay,
		jitter: jitter,
		sleep:  Sleep,
		now:    time.Now,
		hosts:  make(map[string]*hostSlot),
	}
}

func (t *Throttle) slot(host string) *hostSlot {
	t.mu.Lock()
	defer t.mu.Unlock()
	slot, ok := t.hosts[host]
	if !ok {
		slot = &hostSlot{}
		t.hosts[host] = slot
	}
	return slot
}

// Wait blocks until a request to host may be sent and reserves the slot.
func (t *Throttle) Wait(ctx context.Context, host string) error {
	if t == nil || t.delay <= 0 {
		return ctx.Err()
	}

	slot := t.slot(host)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	delay := t.delay
	if t.jitter {
		delay = RandomDelay(delay)
	}
	if !slot.lastFetch.IsZero() {
		if wait := delay - t.now().Sub(slot.lastFetch); wait > 0 {
			if err := t.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	slot.lastFetch = t.now()
	return nil
}

// Done marks the end of a request to host.
func (t *Throttle) Done(host string) {
	if t == nil || t.delay <= 0 {
		return
	}
	slot := t.slot(host)
	slot.mu.Lock()
	slot.lastFetch = t.now()
	slot.mu.Unlock()
}
