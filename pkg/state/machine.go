package state

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidTransition is returned when an event is not allowed in the current mode.
var ErrInvalidTransition = errors.New("invalid transition")

// Event is a named trigger of the state machine.
type Event int

const (
	EventLinkUp Event = iota
	EventStart
	EventStop
	EventBeginProcessing
	EventEndProcessing
	EventFail
	EventReset
	// EventForce marks a raw Transition call.
	EventForce
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventLinkUp:
		return "link_up"
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventBeginProcessing:
		return "begin_processing"
	case EventEndProcessing:
		return "end_processing"
	case EventFail:
		return "fail"
	case EventReset:
		return "reset"
	case EventForce:
		return "force"
	default:
		return "unknown"
	}
}

type rule struct {
	from []Mode // modes the event moves out of
	noop []Mode // modes in which the event is accepted but changes nothing
	to   Mode
}

var rules = map[Event]rule{
	EventLinkUp:          {from: []Mode{Init}, noop: []Mode{Idle, Collecting, Processing}, to: Idle},
	EventStart:           {from: []Mode{Idle}, noop: []Mode{Collecting, Processing}, to: Collecting},
	EventStop:            {from: []Mode{Collecting, Processing}, noop: []Mode{Idle}, to: Idle},
	EventBeginProcessing: {from: []Mode{Collecting}, noop: []Mode{Processing}, to: Processing},
	EventEndProcessing:   {from: []Mode{Processing}, noop: []Mode{Collecting}, to: Collecting},
	EventFail:            {from: []Mode{Init, Idle, Collecting, Processing}, noop: []Mode{Error}, to: Error},
	EventReset:           {from: []Mode{Error}, noop: []Mode{Init}, to: Init},
}

// Change describes one mode change delivered to hooks.
type Change struct {
	From   Mode
	To     Mode
	Event  Event
	Intent Intent
	At     time.Time
}

// Hook observes mode changes. Hooks run on the goroutine that fired the
// event, outside the machine's lock, and must not block.
type Hook func(Change)

// Machine owns the operating mode. Reads are lock-free; writers are
// serialized so every change is observed exactly once by the hooks.
type Machine struct {
	mode atomic.Int32

	mu      sync.Mutex
	hooks   []Hook
	lastErr error
	changed time.Time
}

// New creates a machine in Init mode.
func New() *Machine {
	m := &Machine{changed: time.Now()}
	m.mode.Store(int32(Init))
	return m
}

// OnChange registers a hook called after every mode change.
func (m *Machine) OnChange(h Hook) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.hooks = append(m.hooks, h)
	m.mu.Unlock()
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	return Mode(m.mode.Load())
}

// Intent returns the intent of the current mode.
func (m *Machine) Intent() Intent {
	return IntentFor(m.Mode())
}

// IsCollecting reports whether acquisition should sample. True while
// processing so no samples are lost while a window drains.
func (m *Machine) IsCollecting() bool {
	return m.Mode().IsCollecting()
}

// Since returns the time of the last mode change.
func (m *Machine) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// Err returns the fault that put the machine into Error, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Fire applies a named event. changed is false when the event is accepted
// but the machine already is where the event leads.
func (m *Machine) Fire(ev Event) (changed bool, err error) {
	r, ok := rules[ev]
	if !ok {
		return false, fmt.Errorf("%w: unknown event %d", ErrInvalidTransition, ev)
	}

	m.mu.Lock()
	cur := m.Mode()
	switch {
	case slices.Contains(r.noop, cur):
		m.mu.Unlock()
		return false, nil
	case !slices.Contains(r.from, cur):
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, ev, cur)
	}
	if ev == EventReset {
		m.lastErr = nil
	}
	c, hooks := m.apply(cur, r.to, ev)
	m.mu.Unlock()

	notify(hooks, c)
	return true, nil
}

// Fail records err and moves to Error from any mode.
func (m *Machine) Fail(err error) bool {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()

	changed, _ := m.Fire(EventFail)
	return changed
}

// Transition moves to mode to unconditionally. Same-mode transitions are no-ops.
func (m *Machine) Transition(to Mode) bool {
	m.mu.Lock()
	cur := m.Mode()
	if cur == to {
		m.mu.Unlock()
		return false
	}
	c, hooks := m.apply(cur, to, EventForce)
	m.mu.Unlock()

	notify(hooks, c)
	return true
}

// apply must be called with mu held.
func (m *Machine) apply(from, to Mode, ev Event) (Change, []Hook) {
	now := time.Now()
	m.mode.Store(int32(to))
	m.changed = now

	return Change{
		From:   from,
		To:     to,
		Event:  ev,
		Intent: IntentFor(to),
		At:     now,
	}, slices.Clone(m.hooks)
}

func notify(hooks []Hook, c Change) {
	for _, h := range hooks {
		h(c)
	}
}
