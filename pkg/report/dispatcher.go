package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/goppg/pkg/logging"
	"github.com/itohio/goppg/pkg/metrics"
)

const (
	// DefaultQueueSize bounds the number of payloads waiting for the sinks.
	DefaultQueueSize = 16
	// DefaultPublishTimeout bounds a single sink publish.
	DefaultPublishTimeout = 5 * time.Second
)

var errDispatcherStopped = errors.New("dispatcher stopped")

// Sink delivers encoded payloads to one backend.
type Sink interface {
	Name() string
	Publish(ctx context.Context, kind Kind, deviceID string, payload []byte) error
	Close() error
}

type job struct {
	kind     Kind
	deviceID string
	payload  []byte
}

// Dispatcher fans reports and statuses out to every sink on a background
// goroutine. Push never blocks; a full queue drops the payload.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	queue chan job
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	last    *Report
}

var _ Reporter = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over sinks.
func NewDispatcher(sinks []Sink, queueSize int, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logging.OrNop(logger).Named("report"),
		metrics: m,
		queue:   make(chan job, queueSize),
	}
}

// Sinks returns the configured sink names.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Start launches the publishing loop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return errDispatcherStopped
	}
	if d.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.started = true

	d.wg.Add(1)
	go d.run(runCtx)

	d.logger.Info("dispatcher started", zap.Strings("sinks", d.Sinks()))
	return nil
}

// Stop stops the loop, publishes what is still queued and closes the sinks.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()

	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s sink: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Push queues a per-window report.
func (d *Dispatcher) Push(r Report) {
	d.mu.Lock()
	last := r
	d.last = &last
	d.mu.Unlock()

	d.enqueue(KindData, r.DeviceID, r)
}

// PushStatus queues a status push.
func (d *Dispatcher) PushStatus(s Status) {
	d.enqueue(KindStatus, s.DeviceID, s)
}

// Last returns the most recent pushed report, if any.
func (d *Dispatcher) Last() (Report, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return Report{}, false
	}
	return *d.last, true
}

func (d *Dispatcher) enqueue(kind Kind, deviceID string, v any) {
	if len(d.sinks) == 0 {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("failed to marshal payload", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		d.metrics.Report(string(kind), false)
		return
	}

	select {
	case d.queue <- job{kind: kind, deviceID: deviceID, payload: payload}:
		d.metrics.Report(string(kind), true)
	default:
		d.metrics.Report(string(kind), false)
		d.logger.Warn("report queue full, dropping payload", zap.String("kind", string(kind)))
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			d.flush()
			return
		case j := <-d.queue:
			d.publish(j)
		}
	}
}

// flush publishes whatever is left in the queue.
func (d *Dispatcher) flush() {
	for {
		select {
		case j := <-d.queue:
			d.publish(j)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(j job) {
	for _, s := range d.sinks {
		d.publishOne(s, j)
	}
}

func (d *Dispatcher) publishOne(s Sink, j job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in sink publish", zap.String("sink", s.Name()), zap.Any("panic", r))
			d.metrics.SinkPublish(s.Name(), 0, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	err := s.Publish(ctx, j.kind, j.deviceID, j.payload)
	d.metrics.SinkPublish(s.Name(), time.Since(start), err)
	if err != nil {
		d.logger.Warn("sink publish failed",
			zap.String("sink", s.Name()),
			zap.String("kind", string(j.kind)),
			zap.Error(err),
		)
	}
}
