package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goppg/pkg/metrics"
)

type published struct {
	kind     Kind
	deviceID string
	payload  []byte
}

type recordingSink struct {
	name  string
	err   error
	panic bool
	delay time.Duration

	mu     sync.Mutex
	got    []published
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(ctx context.Context, kind Kind, deviceID string, payload []byte) error {
	if s.panic {
		panic("sink exploded")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.got = append(s.got, published{kind: kind, deviceID: deviceID, payload: payload})
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestDispatcher_FanOut(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("backend down")}
	healthy := &recordingSink{name: "healthy"}
	exploding := &recordingSink{name: "exploding", panic: true}

	d := NewDispatcher([]Sink{failing, exploding, healthy}, 4, time.Second, nil, metrics.New())
	require.NoError(t, d.Start(context.Background()))

	d.Push(Report{DeviceID: "dev-1", Sequence: 1, HeartRate: 72})
	d.PushStatus(Status{DeviceID: "dev-1", DeviceState: "IDLE"})

	require.Eventually(t, func() bool { return healthy.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, failing.count(), "a failing sink still sees every payload")

	healthy.mu.Lock()
	first := healthy.got[0]
	second := healthy.got[1]
	healthy.mu.Unlock()

	assert.Equal(t, KindData, first.kind)
	assert.Equal(t, "dev-1", first.deviceID)
	var r Report
	require.NoError(t, json.Unmarshal(first.payload, &r))
	assert.Equal(t, float32(72), r.HeartRate)
	assert.Equal(t, KindStatus, second.kind)

	last, ok := d.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(1), last.Sequence)

	require.NoError(t, d.Stop())
	assert.True(t, healthy.isClosed())
	assert.True(t, failing.isClosed())
	assert.Equal(t, []string{"failing", "exploding", "healthy"}, d.Sinks())
}

func TestDispatcher_QueueFullDrops(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	d := NewDispatcher([]Sink{sink}, 2, time.Second, nil, nil)

	// Not started yet: the queue fills and the rest is dropped without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Push(Report{Sequence: uint64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a full queue")
	}

	require.NoError(t, d.Start(context.Background()))
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, sink.count())

	require.NoError(t, d.Stop())
}

func TestDispatcher_PublishTimeout(t *testing.T) {
	slow := &recordingSink{name: "slow", delay: time.Hour}
	fast := &recordingSink{name: "fast"}

	d := NewDispatcher([]Sink{slow, fast}, 4, 20*time.Millisecond, nil, nil)
	require.NoError(t, d.Start(context.Background()))
	d.Push(Report{})

	require.Eventually(t, func() bool { return fast.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, slow.count())
	require.NoError(t, d.Stop())
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := NewDispatcher(nil, 0, 0, nil, nil)
	require.NoError(t, d.Start(context.Background()))
	d.Push(Report{Sequence: 4})
	d.PushStatus(Status{})

	last, ok := d.Last()
	assert.True(t, ok)
	assert.Equal(t, uint64(4), last.Sequence)
	require.NoError(t, d.Stop())
}

func TestDispatcher_PushAfterStop(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	d := NewDispatcher([]Sink{sink}, 4, time.Second, nil, nil)
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop())

	assert.NotPanics(t, func() { d.Push(Report{}) })
	assert.Error(t, d.Start(context.Background()))
	assert.NoError(t, d.Stop(), "second stop is a no-op")
	assert.Equal(t, 0, sink.count())
}
