package sample

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, e *Exchange, base float32) {
	t.Helper()
	for i := 0; i < WindowSize; i++ {
		require.Equal(t, Accepted, e.Append(Sample{Red: base + float32(i), IR: base + float32(i)}))
	}
}

func TestExchange_AppendRejectsInvalid(t *testing.T) {
	e := NewExchange(StallOverwrite)
	assert.Equal(t, Rejected, e.Append(Sample{Red: 0, IR: 100}))
	assert.Equal(t, Rejected, e.Append(Sample{Red: 100, IR: -5}))
	assert.Equal(t, 0, e.Collected())
}

func TestExchange_FullIsIdempotent(t *testing.T) {
	e := NewExchange(StallOverwrite)
	fill(t, e, 1)

	before := e.windows[e.collecting]
	for i := 0; i < 5; i++ {
		assert.Equal(t, Full, e.Append(Sample{Red: 999, IR: 999}))
	}
	assert.Equal(t, before, e.windows[e.collecting], "full window must not be mutated")
	assert.Equal(t, WindowSize, e.Collected())
}

func TestExchange_SwapRoundTrip(t *testing.T) {
	e := NewExchange(StallOverwrite)
	var dst Window

	for cycle := 0; cycle < 5; cycle++ {
		base := float32(cycle*1000 + 1)
		fill(t, e, base)

		w, lost := e.Swap()
		require.NotNil(t, w)
		assert.False(t, lost)
		assert.True(t, w.Ready)
		assert.Equal(t, WindowSize, w.Count)
		assert.Equal(t, base, w.Samples[0].Red)
		assert.Equal(t, 0, e.Collected())
		assert.False(t, e.windows[e.collecting].Ready)

		select {
		case <-e.Ready():
		default:
			t.Fatal("swap did not signal")
		}

		gen, ok := e.Drain(&dst)
		require.True(t, ok)
		assert.Equal(t, base, dst.Samples[0].Red)
		assert.Equal(t, base+WindowSize-1, dst.Samples[WindowSize-1].Red)
		e.Release(gen)
		assert.False(t, e.Pending())
	}

	stats := e.Stats()
	assert.Equal(t, uint64(5), stats.Swaps)
	assert.Equal(t, uint64(0), stats.Overwrites)
}

func TestExchange_DrainOncePerSwap(t *testing.T) {
	e := NewExchange(StallOverwrite)
	var dst Window

	_, ok := e.Drain(&dst)
	assert.False(t, ok, "nothing swapped yet")

	fill(t, e, 1)
	e.Swap()

	gen, ok := e.Drain(&dst)
	require.True(t, ok)
	_, ok = e.Drain(&dst)
	assert.False(t, ok, "second drain of the same generation")

	e.Release(gen)
	_, ok = e.Drain(&dst)
	assert.False(t, ok)
}

func TestExchange_SwapUnderfilledDoesNotValidate(t *testing.T) {
	e := NewExchange(StallOverwrite)
	e.Append(Sample{Red: 1, IR: 1})
	w, _ := e.Swap()
	assert.True(t, w.Ready)

	var dst Window
	_, ok := e.Drain(&dst)
	assert.False(t, ok, "under-filled window must fail validation")
}

func TestExchange_OverwriteOnStall(t *testing.T) {
	e := NewExchange(StallOverwrite)
	fill(t, e, 1)
	e.Swap()
	fill(t, e, 5000)

	w, lost := e.Swap()
	assert.True(t, lost)
	assert.Equal(t, float32(5000), w.Samples[0].Red)

	stats := e.Stats()
	assert.Equal(t, uint64(2), stats.Swaps)
	assert.Equal(t, uint64(1), stats.Overwrites)

	// Signals coalesce into one pending notification.
	assert.Len(t, e.ready, 1)

	var dst Window
	_, ok := e.Drain(&dst)
	require.True(t, ok)
	assert.Equal(t, float32(5000), dst.Samples[0].Red, "newest window wins")
}

func TestExchange_KeepPendingOnStall(t *testing.T) {
	e := NewExchange(StallKeepPending)
	fill(t, e, 1)
	e.Swap()
	fill(t, e, 5000)

	w, lost := e.Swap()
	assert.True(t, lost)
	assert.Equal(t, float32(1), w.Samples[0].Red, "pending window kept")
	assert.Equal(t, 0, e.Collected(), "collection restarted")

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Swaps)
	assert.Equal(t, uint64(1), stats.Discards)
	assert.Equal(t, uint64(0), stats.Overwrites)

	var dst Window
	_, ok := e.Drain(&dst)
	require.True(t, ok)
	assert.Equal(t, float32(1), dst.Samples[0].Red)
}

func TestExchange_SwapAfterDrainIsNotLoss(t *testing.T) {
	e := NewExchange(StallKeepPending)
	fill(t, e, 1)
	e.Swap()

	var dst Window
	gen, ok := e.Drain(&dst)
	require.True(t, ok)

	// The processor holds its own copy; a swap before Release loses nothing.
	fill(t, e, 5000)
	_, lost := e.Swap()
	assert.False(t, lost)

	// Stale release must not consume the newer window.
	e.Release(gen)
	assert.True(t, e.Pending())

	_, ok = e.Drain(&dst)
	require.True(t, ok)
	assert.Equal(t, float32(5000), dst.Samples[0].Red)
}

func TestExchange_Reset(t *testing.T) {
	e := NewExchange(StallOverwrite)
	fill(t, e, 1)
	e.Swap()
	e.Append(Sample{Red: 1, IR: 1})

	e.Reset()
	assert.Equal(t, 0, e.Collected())
	assert.False(t, e.Pending())
	assert.Len(t, e.ready, 0)
}

func TestParseStallPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    StallPolicy
		wantErr bool
	}{
		{in: "", want: StallOverwrite},
		{in: "overwrite", want: StallOverwrite},
		{in: "KEEP_PENDING", want: StallKeepPending},
		{in: "keep-pending", want: StallKeepPending},
		{in: "block", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStallPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.String(), tt.want.String())
		})
	}
}

// TestExchange_ConcurrentProducerConsumer runs a fast producer against a
// slower consumer and checks every drained window is internally consistent.
func TestExchange_ConcurrentProducerConsumer(t *testing.T) {
	e := NewExchange(StallOverwrite)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for cycle := 1; cycle <= 50; cycle++ {
			for i := 0; i < WindowSize; i++ {
				s := Sample{Red: float32(cycle), IR: float32(cycle)}
				if e.Append(s) == Full {
					e.Swap()
					e.Append(s)
				}
			}
		}
		close(done)
	}()

	var dst Window
	processed := 0
	for {
		select {
		case <-e.Ready():
			gen, ok := e.Drain(&dst)
			if !ok {
				continue
			}
			first := dst.Samples[0].Red
			for i := 1; i < WindowSize; i++ {
				require.Equal(t, first, dst.Samples[i].Red, "torn window")
			}
			processed++
			e.Release(gen)
		case <-done:
			wg.Wait()
			assert.Greater(t, processed, 0)
			stats := e.Stats()
			assert.Equal(t, stats.Swaps, uint64(processed)+stats.Overwrites+pendingCount(e))
			return
		case <-time.After(2 * time.Second):
			t.Fatal("consumer stalled")
		}
	}
}

func pendingCount(e *Exchange) uint64 {
	if e.Pending() {
		return 1
	}
	return 0
}
