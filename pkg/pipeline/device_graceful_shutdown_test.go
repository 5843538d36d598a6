package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDevice_Run tests that the running loops produce reports and stop on
// cancel.
func TestDevice_Run(t *testing.T) {
	d, rec := newDevice(t, newMockSource(t))
	collecting(d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(rec.all()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return within timeout")
	}

	// No reports after the loops have stopped.
	n := len(rec.all())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.all(), n)

	reports := rec.all()
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i].Sequence, reports[i-1].Sequence)
	}
}

// TestDevice_GracefulShutdownIdle tests that Run returns promptly when
// nothing is being collected.
func TestDevice_GracefulShutdownIdle(t *testing.T) {
	d, rec := newDevice(t, newMockSource(t))
	d.LinkUp()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return within timeout")
	}
	assert.Empty(t, rec.all())
}
