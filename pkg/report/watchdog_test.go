package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWatchdog(t *testing.T, interval, debounce time.Duration) (*Watchdog, <-chan Status) {
	t.Helper()
	statuses := make(chan Status, 64)
	w := NewWatchdog(interval, debounce, func() Status {
		return Status{DeviceID: "dev-1", DeviceState: "IDLE"}
	})
	w.OnStatus(func(s Status) { statuses <- s })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, statuses
}

func receive(t *testing.T, ch <-chan Status, within time.Duration) Status {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(within):
		t.Fatal("no status pushed")
		return Status{}
	}
}

func TestWatchdog_Periodic(t *testing.T) {
	_, statuses := runWatchdog(t, 30*time.Millisecond, 0)

	for i := 0; i < 3; i++ {
		s := receive(t, statuses, time.Second)
		assert.False(t, s.Forced)
		assert.Equal(t, "dev-1", s.DeviceID)
		assert.NotZero(t, s.Timestamp)
	}
}

func TestWatchdog_TriggerPushesImmediately(t *testing.T) {
	w, statuses := runWatchdog(t, time.Hour, 100*time.Millisecond)

	w.Trigger()
	s := receive(t, statuses, time.Second)
	assert.True(t, s.Forced)
}

func TestWatchdog_BurstIsCoalesced(t *testing.T) {
	w, statuses := runWatchdog(t, time.Hour, 100*time.Millisecond)

	w.Trigger()
	first := time.Now()
	receive(t, statuses, time.Second)

	for i := 0; i < 5; i++ {
		w.Trigger()
	}
	s := receive(t, statuses, time.Second)
	assert.True(t, s.Forced)
	assert.GreaterOrEqual(t, time.Since(first), 90*time.Millisecond, "second push waits for the debounce gap")

	select {
	case <-statuses:
		t.Fatal("burst produced more than one push")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestWatchdog_NilSnapshot(t *testing.T) {
	w := NewWatchdog(0, -1, nil)
	require.Equal(t, DefaultStatusInterval, w.interval)
	require.Equal(t, time.Duration(0), w.debounce)
	assert.NotPanics(t, func() {
		w.Trigger()
		w.Trigger()
		w.push(true)
	})
}
