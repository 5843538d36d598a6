package report

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultStatusInterval = 15 * time.Second
	DefaultStatusDebounce = 250 * time.Millisecond
)

// Watchdog pushes the device status every interval and whenever Trigger is
// called. Triggers arriving within debounce of the last push are coalesced
// into a single push once the gap has passed.
type Watchdog struct {
	interval time.Duration
	debounce time.Duration
	snapshot func() Status

	mu        sync.Mutex
	listeners []func(Status)
	force     chan struct{}
}

// NewWatchdog creates a watchdog. snapshot builds the status at push time.
func NewWatchdog(interval, debounce time.Duration, snapshot func() Status) *Watchdog {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	if debounce < 0 {
		debounce = 0
	}
	return &Watchdog{
		interval: interval,
		debounce: debounce,
		snapshot: snapshot,
		force:    make(chan struct{}, 1),
	}
}

// OnStatus registers a listener called with every pushed status. Listeners
// run on the watchdog goroutine and must not block.
func (w *Watchdog) OnStatus(fn func(Status)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Trigger requests a forced push. Never blocks.
func (w *Watchdog) Trigger() {
	select {
	case w.force <- struct{}{}:
	default:
	}
}

// Run pushes statuses until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		last    time.Time
		pending bool
		delay   *time.Timer
		delayC  <-chan time.Time
	)
	defer func() {
		if delay != nil {
			delay.Stop()
		}
	}()

	push := func(forced bool) {
		last = time.Now()
		ticker.Reset(w.interval)
		w.push(forced)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !pending {
				push(false)
			}
		case <-w.force:
			if pending {
				continue
			}
			wait := w.debounce - time.Since(last)
			if last.IsZero() || wait <= 0 {
				push(true)
				continue
			}
			pending = true
			if delay == nil {
				delay = time.NewTimer(wait)
			} else {
				delay.Reset(wait)
			}
			delayC = delay.C
		case <-delayC:
			pending = false
			delayC = nil
			push(true)
		}
	}
}

func (w *Watchdog) push(forced bool) {
	if w.snapshot == nil {
		return
	}
	s := w.snapshot()
	s.Forced = forced
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}

	w.mu.Lock()
	listeners := make([]func(Status), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
