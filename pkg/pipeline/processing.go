package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/activity"
	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/metrics"
	"github.com/itohio/goppg/pkg/report"
	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/state"
	"github.com/itohio/goppg/pkg/vitals"
)

// Result is everything produced from one window.
type Result struct {
	Window   sample.Window
	Vitals   vitals.Result
	Activity activity.Result
	Report   report.Report
	Duration time.Duration
}

// Processing waits for ready windows and turns each into a report.
type Processing struct {
	deviceID   string
	machine    *state.Machine
	exchange   *sample.Exchange
	extractor  *vitals.Extractor
	classifier *activity.Classifier
	reporter   report.Reporter
	logger     *zap.Logger
	metrics    *metrics.Metrics

	window     sample.Window // private copy of the drained window
	sequence   uint64
	overwrites uint64

	mu    sync.Mutex
	hooks []func(Result)
}

// NewProcessing creates the processing loop. reporter may be nil.
func NewProcessing(deviceID string, m *state.Machine, ex *sample.Exchange, e *vitals.Extractor, c *activity.Classifier, r report.Reporter, logger *zap.Logger, mt *metrics.Metrics) *Processing {
	return &Processing{
		deviceID:   deviceID,
		machine:    m,
		exchange:   ex,
		extractor:  e,
		classifier: c,
		reporter:   r,
		logger:     logging.OrNop(logger).Named("processing"),
		metrics:    mt,
	}
}

// OnResult registers a callback run on the processing goroutine after every
// processed window. Callbacks must not block.
func (p *Processing) OnResult(fn func(Result)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	p.hooks = append(p.hooks, fn)
	p.mu.Unlock()
}

// Run processes windows until ctx is done.
func (p *Processing) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.exchange.Ready():
			p.Process()
		}
	}
}

// Process handles one wake-up. It reports whether a window was processed.
func (p *Processing) Process() (Result, bool) {
	if p.machine.Mode() == state.Error {
		if gen, ok := p.exchange.Drain(&p.window); ok {
			p.exchange.Release(gen)
		}
		p.metrics.Window("halted")
		return Result{}, false
	}

	// Both events are refused outside Collecting/Processing, e.g. after a
	// STOP or a fault while the window was in flight.
	p.machine.Fire(state.EventBeginProcessing)
	defer p.machine.Fire(state.EventEndProcessing)

	gen, ok := p.exchange.Drain(&p.window)
	if !ok {
		p.metrics.Window("skipped")
		p.logger.Debug("no valid window to process")
		return Result{}, false
	}

	start := time.Now()
	samples := p.window.Slice()
	v := p.extractor.Extract(samples)
	a := p.classifier.Classify(samples)

	p.sequence++
	mode := p.machine.Mode()
	r := report.Report{
		DeviceID:     p.deviceID,
		Sequence:     p.sequence,
		HeartRate:    v.HeartRate,
		OxygenLevel:  v.OxygenSaturation,
		ActionClass:  a.Class,
		ActivityName: a.Name(),
		Confidence:   a.Confidence,
		Timestamp:    time.Now().UnixMilli(),
		DeviceState:  mode.String(),
		IsCollecting: mode.IsCollecting(),
		IsProcessing: mode == state.Processing,
		HRMethod:     v.Method.String(),
		Source:       a.Source.String(),
	}
	if p.reporter != nil {
		p.reporter.Push(r)
	}
	p.exchange.Release(gen)

	res := Result{
		Window:   p.window,
		Vitals:   v,
		Activity: a,
		Report:   r,
		Duration: time.Since(start),
	}
	p.observe(res)

	p.mu.Lock()
	hooks := make([]func(Result), len(p.hooks))
	copy(hooks, p.hooks)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(res)
	}

	return res, true
}

func (p *Processing) observe(res Result) {
	p.metrics.Window("processed")
	p.metrics.Processed(res.Duration, res.Vitals.HeartRate, res.Vitals.OxygenSaturation,
		res.Vitals.Method.String(), res.Activity.Class, res.Activity.Source.String())

	if st := p.exchange.Stats(); st.Overwrites > p.overwrites {
		p.logger.Warn("windows lost to processing stall",
			zap.Uint64("lost", st.Overwrites-p.overwrites),
			zap.Uint64("total", st.Overwrites),
		)
		p.overwrites = st.Overwrites
	}
	if res.Activity.Err != nil {
		p.logger.Debug("classifier fell back to heuristic", zap.Error(res.Activity.Err))
	}

	p.logger.Info("window processed",
		zap.Uint64("sequence", res.Report.Sequence),
		zap.Float32("heart_rate", res.Vitals.HeartRate),
		zap.String("hr_method", res.Vitals.Method.String()),
		zap.Float32("spo2", res.Vitals.OxygenSaturation),
		zap.String("activity", res.Activity.Name()),
		zap.Float32("confidence", res.Activity.Confidence),
		zap.String("source", res.Activity.Source.String()),
		zap.Duration("duration", res.Duration),
	)
}
