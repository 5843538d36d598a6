package state

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentFor(t *testing.T) {
	tests := []struct {
		mode Mode
		want Intent
	}{
		{Init, IntentFault},
		{Idle, IntentIdle},
		{Collecting, IntentCollecting},
		{Processing, IntentProcessing},
		{Error, IntentFault},
		{Mode(42), IntentFault},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, IntentFor(tt.mode))
		})
	}
}

func TestModeString(t *testing.T) {
	for i, m := range Modes {
		assert.Equal(t, Mode(i), m)
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseMode("sleeping")
	assert.Error(t, err)
}

func TestIsCollecting(t *testing.T) {
	assert.False(t, Init.IsCollecting())
	assert.False(t, Idle.IsCollecting())
	assert.True(t, Collecting.IsCollecting())
	assert.True(t, Processing.IsCollecting())
	assert.False(t, Error.IsCollecting())
}

func TestMachine_Lifecycle(t *testing.T) {
	m := New()
	require.Equal(t, Init, m.Mode())

	var changes []Change
	m.OnChange(func(c Change) { changes = append(changes, c) })

	steps := []struct {
		ev      Event
		want    Mode
		changed bool
	}{
		{EventLinkUp, Idle, true},
		{EventStart, Collecting, true},
		{EventStart, Collecting, false},
		{EventBeginProcessing, Processing, true},
		{EventStart, Processing, false},
		{EventEndProcessing, Collecting, true},
		{EventStop, Idle, true},
		{EventStop, Idle, false},
	}

	for _, s := range steps {
		changed, err := m.Fire(s.ev)
		require.NoError(t, err, s.ev.String())
		assert.Equal(t, s.changed, changed, s.ev.String())
		assert.Equal(t, s.want, m.Mode(), s.ev.String())
	}

	require.Len(t, changes, 5)
	assert.Equal(t, Change{From: Init, To: Idle, Event: EventLinkUp, Intent: IntentIdle, At: changes[0].At}, changes[0])
	assert.Equal(t, IntentProcessing, changes[2].Intent)
	assert.Equal(t, Idle, changes[4].To)
}

func TestMachine_InvalidEvents(t *testing.T) {
	tests := []struct {
		name string
		from Mode
		ev   Event
	}{
		{"start before link", Init, EventStart},
		{"start in error", Error, EventStart},
		{"process when idle", Idle, EventBeginProcessing},
		{"end processing when idle", Idle, EventEndProcessing},
		{"reset when idle", Idle, EventReset},
		{"link up in error", Error, EventLinkUp},
		{"unknown", Idle, Event(99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Transition(tt.from)

			changed, err := m.Fire(tt.ev)
			assert.False(t, changed)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, tt.from, m.Mode())
		})
	}
}

func TestMachine_FailAndReset(t *testing.T) {
	m := New()
	m.Transition(Collecting)

	fault := errors.New("sensor not found")
	assert.True(t, m.Fail(fault))
	assert.Equal(t, Error, m.Mode())
	assert.Equal(t, IntentFault, m.Intent())
	assert.False(t, m.IsCollecting())
	assert.Equal(t, fault, m.Err())

	assert.False(t, m.Fail(fault), "already in error")

	changed, err := m.Fire(EventReset)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, Init, m.Mode())
	assert.NoError(t, m.Err())
}

func TestMachine_SameModeTransitionIsNoop(t *testing.T) {
	m := New()
	calls := 0
	m.OnChange(func(Change) { calls++ })

	for _, mode := range Modes {
		m.Transition(mode)
	}
	assert.Equal(t, len(Modes)-1, calls)

	before := m.Since()
	assert.False(t, m.Transition(m.Mode()))
	assert.Equal(t, before, m.Since())
	assert.Equal(t, len(Modes)-1, calls)
}

func TestMachine_HookMayFireEvents(t *testing.T) {
	m := New()
	m.OnChange(func(c Change) {
		// A hook re-entering the machine must not deadlock.
		if c.To == Error {
			_, _ = m.Fire(EventReset)
		}
	})

	m.Fail(errors.New("boom"))
	assert.Equal(t, Init, m.Mode())
}

func TestMachine_ConcurrentReaders(t *testing.T) {
	m := New()
	m.Transition(Collecting)

	var changes atomic.Int32
	m.OnChange(func(Change) { changes.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = m.IsCollecting()
				_ = m.Intent()
			}
		}()
	}

	for i := 0; i < 100; i++ {
		_, _ = m.Fire(EventBeginProcessing)
		_, _ = m.Fire(EventEndProcessing)
	}
	wg.Wait()

	assert.Equal(t, int32(200), changes.Load())
	assert.Equal(t, Collecting, m.Mode())
}
