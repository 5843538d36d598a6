package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/activity"
	"github.com/itohio/goppg/pkg/command"
	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/metrics"
	"github.com/itohio/goppg/pkg/report"
	"github.com/itohio/goppg/pkg/sample"
	"github.com/itohio/goppg/pkg/sensor"
	"github.com/itohio/goppg/pkg/state"
	"github.com/itohio/goppg/pkg/vitals"
)

// Indicator renders the device intent, typically as an LED pattern.
type Indicator interface {
	SetIntent(i state.Intent) error
}

// Connector is a sensor link that RESET reopens if it was lost.
type Connector interface {
	Connect() error
	IsConnected() bool
}

// Device ties the acquisition and processing loops to one state machine and
// answers commands.
type Device struct {
	opts        Options
	machine     *state.Machine
	exchange    *sample.Exchange
	classifier  *activity.Classifier
	acquisition *Acquisition
	processing  *Processing
	logger      *zap.Logger
	metrics     *metrics.Metrics

	mu        sync.Mutex
	indicator Indicator
	sensor    Connector
	linkUp    bool
	last      report.Report
	hasLast   bool

	// showMu orders indicator updates so the last one matches the mode.
	showMu sync.Mutex
}

var _ command.Handler = (*Device)(nil)

// New creates a device in Init mode reading from src. Every report is
// forwarded to r, which may be nil.
func New(opts Options, src sensor.Source, r report.Reporter, logger *zap.Logger, mt *metrics.Metrics) *Device {
	logger = logging.OrNop(logger)
	d := &Device{
		opts:       opts,
		machine:    state.New(),
		exchange:   sample.NewExchange(opts.StallPolicy),
		classifier: activity.New(opts.Activity, opts.Engine),
		logger:     logger.Named("device"),
		metrics:    mt,
	}

	d.acquisition = NewAcquisition(d.machine, src, d.exchange, opts.SamplePeriod, mt)
	d.processing = NewProcessing(opts.DeviceID, d.machine, d.exchange,
		vitals.New(opts.Vitals), d.classifier,
		report.ReporterFunc(func(rep report.Report) {
			d.mu.Lock()
			d.last, d.hasLast = rep, true
			d.mu.Unlock()
			if r != nil {
				r.Push(rep)
			}
		}),
		logger, mt)

	d.machine.OnChange(d.onChange)
	mt.Mode(int(state.Init), state.Init.String())

	return d
}

// Machine returns the device state machine.
func (d *Device) Machine() *state.Machine {
	return d.machine
}

// Exchange returns the window exchange between the loops.
func (d *Device) Exchange() *sample.Exchange {
	return d.exchange
}

// Processing returns the processing loop, e.g. to observe results.
func (d *Device) Processing() *Processing {
	return d.processing
}

// SetIndicator attaches the intent indicator and shows the current intent.
func (d *Device) SetIndicator(ind Indicator) {
	d.mu.Lock()
	d.indicator = ind
	d.mu.Unlock()
	d.refreshIntent()
}

// SetSensor attaches the sensor link that RESET reconnects.
func (d *Device) SetSensor(c Connector) {
	d.mu.Lock()
	d.sensor = c
	d.mu.Unlock()
}

// LinkUp is called when the command link is established.
func (d *Device) LinkUp() {
	d.mu.Lock()
	d.linkUp = true
	d.mu.Unlock()

	if _, err := d.machine.Fire(state.EventLinkUp); err != nil {
		d.logger.Warn("link up ignored", zap.Error(err))
		return
	}
	d.refreshIntent()
}

// LinkDown is called when the command link is lost. The mode is kept.
func (d *Device) LinkDown() {
	d.mu.Lock()
	d.linkUp = false
	d.mu.Unlock()

	d.showMu.Lock()
	defer d.showMu.Unlock()
	if d.machine.Mode() != state.Error {
		d.setIntent(state.IntentDisconnected)
	}
}

// Fail moves the device into Error.
func (d *Device) Fail(err error) {
	if d.machine.Fail(err) {
		d.logger.Error("device fault", zap.Error(err))
	}
}

// Run runs both loops until ctx is done.
func (d *Device) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		d.acquisition.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		d.processing.Run(ctx)
	}()
	wg.Wait()
}

// Last returns the most recent report.
func (d *Device) Last() (report.Report, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

// Status returns a status snapshot.
func (d *Device) Status() report.Status {
	mode := d.machine.Mode()
	s := report.Status{
		DeviceID:     d.opts.DeviceID,
		DeviceState:  mode.String(),
		IsCollecting: mode.IsCollecting(),
		IsProcessing: mode == state.Processing,
		Intent:       state.IntentFor(mode).String(),
		Timestamp:    time.Now().UnixMilli(),
	}
	if err := d.machine.Err(); err != nil {
		s.Error = err.Error()
	}
	if last, ok := d.Last(); ok {
		s.Last = &last
	}
	return s
}

// HandleCommand executes one textual command and returns the response line.
func (d *Device) HandleCommand(cmd string) string {
	name := strings.ToUpper(strings.TrimSpace(cmd))

	var resp string
	switch name {
	case "START":
		resp = d.start()
	case "STOP":
		resp = d.stop()
	case "STATUS":
		resp = d.status()
	case "STATES":
		resp = d.states()
	case "LED_TEST":
		resp = d.ledTest()
	case "RESET":
		resp = d.reset()
	default:
		name = "UNKNOWN"
		resp = "ERROR: Unknown command"
	}

	ok := strings.HasPrefix(resp, "OK:")
	d.metrics.Command(name, ok)
	d.logger.Info("command handled",
		zap.String("command", strings.TrimSpace(cmd)),
		zap.String("response", resp),
	)
	return resp
}

func (d *Device) start() string {
	if d.machine.Mode() == state.Idle {
		// Nothing samples while idle; start from empty windows.
		d.exchange.Reset()
	}

	changed, err := d.machine.Fire(state.EventStart)
	switch {
	case err != nil:
		return d.refused()
	case changed:
		return "OK: Collection started"
	default:
		return "OK: Already collecting"
	}
}

func (d *Device) stop() string {
	changed, err := d.machine.Fire(state.EventStop)
	switch {
	case err != nil:
		return d.refused()
	case changed:
		return "OK: Collection stopped"
	default:
		return "OK: Already idle"
	}
}

func (d *Device) refused() string {
	mode := d.machine.Mode()
	if mode == state.Error {
		return "ERROR: Device in error state"
	}
	return fmt.Sprintf("ERROR: Not ready (%s)", mode)
}

func (d *Device) status() string {
	mode := d.machine.Mode()

	var b strings.Builder
	fmt.Fprintf(&b, "OK: State: %s, Collecting: %s, Processing: %s, Buffer: %d/%d, Model: %s",
		mode, upper(mode.IsCollecting()), upper(mode == state.Processing),
		d.exchange.Collected(), sample.WindowSize, d.modelStatus())

	if last, ok := d.Last(); ok {
		fmt.Fprintf(&b, ", HR: %.1f bpm, SpO2: %.1f%%, Activity: %s (%.2f)",
			last.HeartRate, last.OxygenLevel, last.ActivityName, last.Confidence)
	}
	return b.String()
}

func (d *Device) modelStatus() string {
	switch {
	case d.opts.Activity.Disabled:
		return "Disabled"
	case d.classifier.HasEngine():
		return "Ready"
	default:
		return "Not loaded"
	}
}

func (d *Device) states() string {
	parts := make([]string, 0, len(state.Modes))
	for _, m := range state.Modes {
		parts = append(parts, fmt.Sprintf("%s=%d", m, int(m)))
	}
	return fmt.Sprintf("OK: States: %s, Current: %s", strings.Join(parts, ", "), d.machine.Mode())
}

func (d *Device) ledTest() string {
	d.showMu.Lock()
	defer d.showMu.Unlock()

	d.mu.Lock()
	ind := d.indicator
	d.mu.Unlock()

	if ind == nil {
		return "ERROR: No indicator attached"
	}
	if err := ind.SetIntent(state.IntentTest); err != nil {
		return fmt.Sprintf("ERROR: LED test failed: %v", err)
	}
	return "OK: LED test started"
}

func (d *Device) reset() string {
	if d.machine.Mode() == state.Error {
		if err := d.reconnect(); err != nil {
			d.machine.Fail(err)
			d.logger.Error("reset failed", zap.Error(err))
			return fmt.Sprintf("ERROR: Reset failed: %v", err)
		}
	}
	if _, err := d.machine.Fire(state.EventReset); err != nil {
		return "ERROR: Reset only allowed in ERROR state"
	}
	d.exchange.Reset()

	d.mu.Lock()
	up := d.linkUp
	d.mu.Unlock()
	if up {
		if _, err := d.machine.Fire(state.EventLinkUp); err != nil {
			d.logger.Warn("link up ignored", zap.Error(err))
		}
	}
	return fmt.Sprintf("OK: Reset, State: %s", d.machine.Mode())
}

// reconnect reopens the sensor if its link was lost.
func (d *Device) reconnect() error {
	d.mu.Lock()
	c := d.sensor
	d.mu.Unlock()

	if c == nil || c.IsConnected() {
		return nil
	}
	if err := c.Connect(); err != nil && !errors.Is(err, sensor.ErrAlreadyConnected) {
		return fmt.Errorf("failed to reconnect sensor: %w", err)
	}
	d.logger.Info("sensor reconnected")
	return nil
}

func (d *Device) onChange(c state.Change) {
	d.metrics.Mode(int(c.To), c.To.String())
	d.logger.Info("mode changed",
		zap.Stringer("from", c.From),
		zap.Stringer("to", c.To),
		zap.Stringer("event", c.Event),
		zap.Stringer("intent", c.Intent),
	)
	d.refreshIntent()
}

// refreshIntent shows the intent of the current mode. Hooks of concurrent
// transitions may run out of order, so the mode is read again under showMu
// rather than taken from the change.
func (d *Device) refreshIntent() {
	d.showMu.Lock()
	defer d.showMu.Unlock()

	d.setIntent(d.machine.Intent())
}

// setIntent must be called with showMu held.
func (d *Device) setIntent(i state.Intent) {
	d.mu.Lock()
	ind := d.indicator
	d.mu.Unlock()

	if ind == nil {
		return
	}
	if err := ind.SetIntent(i); err != nil {
		d.logger.Debug("failed to set indicator", zap.Stringer("intent", i), zap.Error(err))
	}
}

func upper(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
