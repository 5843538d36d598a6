package sample

import (
	"fmt"
	"strings"
	"sync"
)

// AppendResult is the outcome of Exchange.Append.
type AppendResult int

const (
	Accepted AppendResult = iota
	Full
	Rejected
)

// String returns the result name.
func (r AppendResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Full:
		return "full"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// StallPolicy decides what a swap does when the processing side has not
// copied the previous window yet. Neither policy blocks the sampler.
type StallPolicy int

const (
	// StallOverwrite swaps anyway; the undrained window is lost.
	StallOverwrite StallPolicy = iota
	// StallKeepPending keeps the undrained window and restarts collection,
	// discarding the newest samples instead.
	StallKeepPending
)

// String returns the policy name as used in configuration.
func (p StallPolicy) String() string {
	switch p {
	case StallOverwrite:
		return "overwrite"
	case StallKeepPending:
		return "keep_pending"
	default:
		return "unknown"
	}
}

// ParseStallPolicy parses a configuration value.
func ParseStallPolicy(s string) (StallPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return StallOverwrite, nil
	case "keep_pending", "keep-pending", "keep":
		return StallKeepPending, nil
	default:
		return StallOverwrite, fmt.Errorf("unknown stall policy %q", s)
	}
}

// Stats are cumulative exchange counters.
type Stats struct {
	Swaps      uint64 // Completed role exchanges
	Overwrites uint64 // Ready windows lost to a swap before being drained
	Discards   uint64 // Collected windows dropped under StallKeepPending
	Generation uint64 // Generation of the current processing window
}

// Exchange is a double buffer handing full windows from the sampler to the
// processor. One window collects while the other is being processed; a
// single mutex guards both and is held only for the append, swap and drain
// critical sections.
type Exchange struct {
	mu         sync.Mutex
	windows    [2]Window
	collecting int    // index of the collecting window
	gen        uint64 // bumped on every swap
	drained    bool   // processing window of gen has been copied out
	policy     StallPolicy
	stats      Stats

	ready chan struct{}
}

// NewExchange creates an exchange with the given stall policy.
func NewExchange(policy StallPolicy) *Exchange {
	return &Exchange{
		policy: policy,
		ready:  make(chan struct{}, 1),
	}
}

// Policy returns the configured stall policy.
func (e *Exchange) Policy() StallPolicy {
	return e.policy
}

// Ready returns the wake signal. It holds at most one pending notification;
// several swaps before the receiver wakes coalesce into one.
func (e *Exchange) Ready() <-chan struct{} {
	return e.ready
}

// Append adds s to the collecting window. A full window is left untouched.
func (e *Exchange) Append(s Sample) AppendResult {
	if !s.Valid() {
		return Rejected
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.windows[e.collecting].push(s) {
		return Full
	}
	return Accepted
}

// Swap exchanges the collecting and processing roles. The new collecting
// window is emptied, the new processing window is marked ready and returned.
// lost reports that a window was dropped: the undrained processing window
// under StallOverwrite, or the just-collected one under StallKeepPending
// (in which case the still-pending window is returned).
//
// The returned window is owned by the exchange; other goroutines must use
// Drain to read it.
func (e *Exchange) Swap() (w *Window, lost bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	processing := &e.windows[1-e.collecting]
	pending := processing.Ready && !e.drained

	if pending && e.policy == StallKeepPending {
		e.windows[e.collecting].Reset()
		e.stats.Discards++
		return processing, true
	}

	if pending {
		e.stats.Overwrites++
		lost = true
	}

	e.collecting = 1 - e.collecting
	e.windows[e.collecting].Reset()

	w = &e.windows[1-e.collecting]
	w.Ready = true

	e.gen++
	e.drained = false
	e.stats.Swaps++
	e.stats.Generation = e.gen

	select {
	case e.ready <- struct{}{}:
	default:
	}

	return w, lost
}

// Drain copies the ready processing window into dst. It succeeds at most once
// per swap and only when the window is ready and fully occupied. The returned
// generation is passed to Release once processing is done.
func (e *Exchange) Drain(dst *Window) (gen uint64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := &e.windows[1-e.collecting]
	if e.drained || !w.Valid() {
		return e.gen, false
	}

	*dst = *w
	e.drained = true
	return e.gen, true
}

// Release marks the window of generation gen consumed. It is a no-op when a
// newer swap has already replaced that window.
func (e *Exchange) Release(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		return
	}
	w := &e.windows[1-e.collecting]
	w.Reset()
	e.drained = true
}

// Reset empties both windows and forgets any pending window.
func (e *Exchange) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.windows[0].Reset()
	e.windows[1].Reset()
	e.drained = false

	select {
	case <-e.ready:
	default:
	}
}

// Collected returns the number of samples in the collecting window.
func (e *Exchange) Collected() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.windows[e.collecting].Count
}

// Pending reports whether a ready window is waiting to be drained.
func (e *Exchange) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.windows[1-e.collecting].Ready && !e.drained
}

// Stats returns a snapshot of the counters.
func (e *Exchange) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
