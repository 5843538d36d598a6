package pipeline

import (
	"context"
	"time"

	"github.com/itohio/goppg/pkg/metrics"
	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/sensor"
	"github.com/itohio/goppg/pkg/state"
)

// DefaultSamplePeriod is one tick at 40 Hz.
const DefaultSamplePeriod = 25 * time.Millisecond

// Acquisition samples the source at a fixed period while the machine is
// collecting and feeds the exchange. A tick does no I/O beyond the
// non-blocking source read.
type Acquisition struct {
	machine  *state.Machine
	source   sensor.Source
	exchange *sample.Exchange
	metrics  *metrics.Metrics
	period   time.Duration
}

// NewAcquisition creates the sampling loop.
func NewAcquisition(m *state.Machine, src sensor.Source, ex *sample.Exchange, period time.Duration, mt *metrics.Metrics) *Acquisition {
	if period <= 0 {
		period = DefaultSamplePeriod
	}
	return &Acquisition{
		machine:  m,
		source:   src,
		exchange: ex,
		metrics:  mt,
		period:   period,
	}
}

// Period returns the tick period.
func (a *Acquisition) Period() time.Duration {
	return a.period
}

// Run ticks until ctx is done.
func (a *Acquisition) Run(ctx context.Context) {
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick()
		}
	}
}

// Tick performs one acquisition step.
func (a *Acquisition) Tick() {
	if !a.machine.IsCollecting() {
		return
	}

	s, ok := a.source.Read()
	if !ok {
		a.metrics.Sample("miss")
		return
	}

	res := a.exchange.Append(s)
	if res == sample.Full {
		_, lost := a.exchange.Swap()
		a.metrics.Swap(lost, a.exchange.Policy() == sample.StallOverwrite)
		// The sample that found the window full starts the next one.
		res = a.exchange.Append(s)
	}
	a.metrics.Sample(res.String())
}
